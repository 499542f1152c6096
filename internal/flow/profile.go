// Package flow routes inbound messages to a conversation profile and runs the
// full exchange: resolve the lead and tenant, consult the assistant, persist
// the transcript, execute any requested action and reply to the sender.
package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/hannahlabs/leadflow/internal/models"
)

// Profile is one parameterized conversation strategy. All pathways share the
// same exchange mechanics and differ only in which assistant answers, the date
// hint in the prompt and whether a fresh availability snapshot is injected.
type Profile struct {
	Name               string
	AssistantID        string
	DateHint           string
	InjectAvailability bool
}

var (
	profileAptAmigo = Profile{
		Name:        "apt-amigo",
		AssistantID: "asst_qMCh6j8JTeiTdlsiC1RRhKdy",
		DateHint:    "Be mindful of this when booking the appointment.",
	}
	profilePathfinders = Profile{
		Name:        "pathfinders",
		AssistantID: "asst_ZwRXQCVdDiykfTj7p53kdjNB",
		DateHint:    "Be mindful of this when conversing.",
	}
	profileLeadDetailsConfirmation = Profile{
		Name:               "lead-details-confirmation",
		AssistantID:        "asst_gGp5KGyeslXh42Zq4SMDyoXc",
		DateHint:           "Be mindful of this when booking the appointment.",
		InjectAvailability: true,
	}
	profileConversationSMS = Profile{
		Name:               "conversation-sms",
		AssistantID:        "asst_AcjjAxUTmAlMUisRIj33hCGz",
		DateHint:           "Be mindful of this when conversing.",
		InjectAvailability: true,
	}
	profileAppointmentSetting = Profile{
		Name:        "appointment-setting",
		AssistantID: "asst_SR6AfOGkXgCF8a9pkpkqT0OC",
		DateHint:    "Be mindful of this when conversing.",
	}
	profileAgentFAQ = Profile{
		Name:        "agent-faq",
		AssistantID: "asst_P7t29BxJnGqzeJLXnE6Cpc5o",
		DateHint:    "Be mindful of this when setting dates.",
	}
)

// promptInput carries everything a profile prompt can reference.
type promptInput struct {
	Conversation string
	LeadSnapshot string
	NewMessage   string
	UserPhone    string
	CompanyPhone string
	Availability string
	Now          time.Time
}

// buildPrompt renders the single context message submitted to the assistant.
func buildPrompt(p Profile, in promptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "This is the previous conversation: %s.\n", in.Conversation)
	if in.LeadSnapshot != "" {
		fmt.Fprintf(&b, "Observe the leads data here: %s.\n", in.LeadSnapshot)
	}
	fmt.Fprintf(&b, "Look at the new inbound message which you will be responding to: [%s].\n", in.NewMessage)
	fmt.Fprintf(&b, "Here's today's date: %s. %s\n", in.Now.Format("2006-01-02 15:04:05"), p.DateHint)
	fmt.Fprintf(&b, "User's phone number: %s", in.UserPhone)
	if p == profileAgentFAQ {
		fmt.Fprintf(&b, "\nCompany's phone number: %s", in.CompanyPhone)
	}
	if p.InjectAvailability && in.Availability != "" {
		fmt.Fprintf(&b, "\nHere's a list of available time slots: %s", in.Availability)
	}
	return b.String()
}

// joinContents concatenates a conversation log into the plain-text history
// block the prompt embeds.
func joinContents(history []models.ConversationMessage) string {
	parts := make([]string, 0, len(history))
	for _, msg := range history {
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, "\n")
}
