package domain

import (
	"testing"
	"time"
)

func TestHasNotificationOn(t *testing.T) {
	day := time.Date(2025, 1, 26, 7, 0, 0, 0, time.UTC)
	rec := &ClientRecord{
		NotificationLog: []NotificationEntry{
			{RelatedDate: "Jan 27, 2025", DateType: "Renewal", SentAt: day.Add(2 * time.Minute)},
		},
	}

	tests := []struct {
		name        string
		relatedDate string
		dateType    string
		day         time.Time
		want        bool
	}{
		{"same date, type and day", "Jan 27, 2025", "Renewal", day, true},
		{"same day, later hour", "Jan 27, 2025", "Renewal", day.Add(10 * time.Hour), true},
		{"different day", "Jan 27, 2025", "Renewal", day.AddDate(0, 0, 1), false},
		{"different type", "Jan 27, 2025", "Expiration", day, false},
		{"different date", "Jan 28, 2025", "Renewal", day, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rec.HasNotificationOn(tt.relatedDate, tt.dateType, tt.day); got != tt.want {
				t.Errorf("HasNotificationOn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCCList(t *testing.T) {
	rec := &ClientRecord{CCAddresses: []EmailAddress{
		{Entity: "Landlord", Email: "landlord@example.com"},
		{Entity: "Broker", Email: "  "},
		{Entity: "Counsel", Email: "counsel@example.com"},
	}}
	got := rec.CCList()
	if len(got) != 2 || got[0] != "landlord@example.com" || got[1] != "counsel@example.com" {
		t.Errorf("CCList() = %v, want the two non-empty addresses", got)
	}
}
