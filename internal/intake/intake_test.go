package intake

import (
	"archive/zip"
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agreedhq/backoffice/internal/domain"
	"github.com/agreedhq/backoffice/internal/events"
	"github.com/agreedhq/backoffice/internal/storage"
)

func makeDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	doc := `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	for _, p := range paragraphs {
		doc += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	doc += `</w:body></w:document>`
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractText_DOCX(t *testing.T) {
	data := makeDOCX(t, "Master Service Agreement", "Renewal Date: Jan 26, 2026")
	text, err := ExtractText("contract.docx", data)
	require.NoError(t, err)
	assert.Contains(t, text, "Master Service Agreement")
	assert.Contains(t, text, "Renewal Date: Jan 26, 2026")
}

func TestExtractText_Unsupported(t *testing.T) {
	_, err := ExtractText("contract.txt", []byte("plain"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractText_CorruptDOCX(t *testing.T) {
	_, err := ExtractText("contract.docx", []byte("not a zip"))
	assert.Error(t, err)
}

// scriptedGen answers structured extraction first, intake email second.
type scriptedGen struct {
	mu      sync.Mutex
	answers []string
}

func (g *scriptedGen) Generate(context.Context, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.answers[0]
	if len(g.answers) > 1 {
		g.answers = g.answers[1:]
	}
	return out, nil
}

type intakeStore struct {
	created *domain.ClientRecord
}

func (s *intakeStore) Create(_ context.Context, rec *domain.ClientRecord) error {
	s.created = rec
	return nil
}
func (s *intakeStore) FindAll(context.Context) ([]domain.ClientRecord, error) { return nil, nil }
func (s *intakeStore) FindByID(context.Context, string) (*domain.ClientRecord, error) {
	return nil, storage.ErrNotFound
}
func (s *intakeStore) FindByAccessToken(context.Context, string) (*domain.ClientRecord, error) {
	return nil, storage.ErrNotFound
}
func (s *intakeStore) AppendNotification(context.Context, string, domain.NotificationEntry) error {
	return nil
}
func (s *intakeStore) AppendCallContent(context.Context, string, domain.CallContentEntry) error {
	return nil
}
func (s *intakeStore) SetVideoLink(context.Context, string, string) error { return nil }

type memDocs struct {
	keys map[string][]byte
}

func (d *memDocs) PutDocument(_ context.Context, key string, body []byte, _ string) error {
	if d.keys == nil {
		d.keys = map[string][]byte{}
	}
	d.keys[key] = body
	return nil
}

func TestProcess(t *testing.T) {
	data := makeDOCX(t, "Agreement with Northwind LLC", "Contact: Ana Ruiz", "Renewal Date: Jan 26, 2026")
	gen := &scriptedGen{answers: []string{
		"```json\n{\"clientName\":\"Northwind LLC\",\"contactPerson\":\"Ana Ruiz\",\"cost\":\"$2,500\",\"dates\":[{\"dateValue\":\"Jan 26, 2026\",\"dateType\":\"Renewal Date\"}],\"emailAddresses\":[{\"entity\":\"Legal\",\"email\":\"legal@northwind.example\"}],\"phoneNumbers\":[{\"entity\":\"Office\",\"phoneNumber\":\"+15550001111\"}]}\n```",
		"Dear Ana,\n\nPlease review and finalize the agreement.",
	}}
	store := &intakeStore{}
	docs := &memDocs{}

	svc := NewService(store, docs, gen, events.NopPublisher{})
	rec, err := svc.Process(context.Background(), "northwind.docx", data, "ana@northwind.example")
	require.NoError(t, err)

	assert.Equal(t, "Northwind LLC", rec.ClientName)
	assert.Equal(t, "Ana Ruiz", rec.ContactPerson)
	assert.Equal(t, "$2,500", rec.Cost)
	assert.Equal(t, "ana@northwind.example", rec.RecipientEmail)
	require.Len(t, rec.Dates, 1)
	assert.Equal(t, "Renewal Date", rec.Dates[0].DateType)
	require.Len(t, rec.CCAddresses, 1)
	require.Len(t, rec.PhoneNumbers, 1)
	assert.Equal(t, "+15550001111", rec.PhoneNumbers[0].Number)
	assert.Contains(t, rec.EmailContent, "finalize")
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.AccessToken, 32)

	require.NotNil(t, store.created)
	assert.Equal(t, rec.ID, store.created.ID)
	assert.Contains(t, rec.DocumentKey, "contracts/"+rec.ID+"/")
	assert.NotEmpty(t, docs.keys[rec.DocumentKey])
}

func TestProcess_ExtractionFailureStillCreatesRecord(t *testing.T) {
	data := makeDOCX(t, "Agreement text")
	gen := &scriptedGen{answers: []string{
		"this is not json",
		"Dear client, please finalize.",
	}}
	store := &intakeStore{}

	svc := NewService(store, nil, gen, events.NopPublisher{})
	rec, err := svc.Process(context.Background(), "deal.docx", data, "x@example.com")
	require.NoError(t, err)

	// Name falls back to the filename.
	assert.Equal(t, "deal", rec.ClientName)
	assert.Empty(t, rec.Dates)
	assert.NotNil(t, store.created)
}

func TestProcess_EmptyUpload(t *testing.T) {
	svc := NewService(&intakeStore{}, nil, &scriptedGen{answers: []string{"{}"}}, events.NopPublisher{})
	_, err := svc.Process(context.Background(), "a.pdf", nil, "x@example.com")
	assert.Error(t, err)
}
