package genai

import (
	"strings"
	"testing"
)

func TestReminderEmailPromptEmbedsEventDetails(t *testing.T) {
	p, err := ReminderEmailPrompt("lease text here", "Renewal", "Jan 27, 2025")
	if err != nil {
		t.Fatalf("ReminderEmailPrompt() error: %v", err)
	}
	for _, want := range []string{"lease text here", "Renewal", "Jan 27, 2025", "Subject:"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestCallScriptPromptIsVoiceSpecific(t *testing.T) {
	p, err := CallScriptPrompt("contract", "Expiration", "Feb 1, 2025")
	if err != nil {
		t.Fatalf("CallScriptPrompt() error: %v", err)
	}
	if !strings.Contains(p, "call script") {
		t.Error("call prompt should ask for a call script")
	}
	if !strings.Contains(p, "Expiration") || !strings.Contains(p, "Feb 1, 2025") {
		t.Error("call prompt missing event details")
	}
}

func TestChatQuestionPrompt(t *testing.T) {
	p, err := ChatQuestionPrompt("the rent is $1000", "what is the rent?")
	if err != nil {
		t.Fatalf("ChatQuestionPrompt() error: %v", err)
	}
	if !strings.Contains(p, "the rent is $1000") || !strings.Contains(p, "what is the rent?") {
		t.Error("chat prompt missing context or question")
	}
}
