package flow

import (
	"strings"
	"testing"
	"time"

	"github.com/hannahlabs/leadflow/internal/models"
)

func TestBuildPromptLeadProfile(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	prompt := buildPrompt(profileConversationSMS, promptInput{
		Conversation: "Hi\nHello! How can I help?",
		LeadSnapshot: `{"firstName":"Sam"}`,
		NewMessage:   "Can I tour tomorrow?",
		UserPhone:    "+15551234567",
		CompanyPhone: "+18177655422",
		Availability: `[{"start":"2024-06-03 09:00:00"}]`,
		Now:          now,
	})

	for _, want := range []string{
		"This is the previous conversation: Hi\nHello! How can I help?.\n",
		`Observe the leads data here: {"firstName":"Sam"}.` + "\n",
		"Look at the new inbound message which you will be responding to: [Can I tour tomorrow?].\n",
		"Here's today's date: 2024-06-01 10:30:00. Be mindful of this when conversing.\n",
		"User's phone number: +15551234567",
		"Here's a list of available time slots: [{\"start\":\"2024-06-03 09:00:00\"}]",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "Company's phone number") {
		t.Error("lead profiles must not include the company phone line")
	}
}

func TestBuildPromptAgentProfile(t *testing.T) {
	prompt := buildPrompt(profileAgentFAQ, promptInput{
		Conversation: "",
		NewMessage:   "When does the pool open?",
		UserPhone:    "+19036467318",
		CompanyPhone: "+18177655444",
		Now:          time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
	})
	if !strings.Contains(prompt, "Company's phone number: +18177655444") {
		t.Errorf("agent prompt missing company phone line:\n%s", prompt)
	}
	if strings.Contains(prompt, "Observe the leads data here") {
		t.Error("agent prompt must not include a lead snapshot")
	}
	if !strings.Contains(prompt, "Be mindful of this when setting dates.") {
		t.Errorf("agent date hint missing:\n%s", prompt)
	}
}

func TestJoinContents(t *testing.T) {
	history := []models.ConversationMessage{
		{Content: "Hi", Direction: models.DirectionInbound},
		{Content: "Hello! How can I help?", Direction: models.DirectionOutbound},
	}
	if got := joinContents(history); got != "Hi\nHello! How can I help?" {
		t.Errorf("joinContents = %q", got)
	}
	if got := joinContents(nil); got != "" {
		t.Errorf("joinContents(nil) = %q", got)
	}
}
