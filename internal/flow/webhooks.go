package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hannahlabs/leadflow/internal/models"
	"github.com/hannahlabs/leadflow/internal/phone"
)

// WebLeadForm is a website form submission.
type WebLeadForm struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	PhoneNumberTo   string `json:"phoneNumberTo"`
	MoveInDate      string `json:"moveInDate"`
	Budget          string `json:"budget"`
	DesiredLocation string `json:"desiredLocation"`
	HowDidYouHear   string `json:"howDidYouHear"`
	CompanyName     string `json:"companyName"`
	BedsBath        string `json:"bedsBath"`
	Subscribed      string `json:"subscribed"`
	CriminalHistory string `json:"criminalHistory"`
}

// CallAnalysis is the structured analysis attached to a completed call.
type CallAnalysis struct {
	FirstName              string `json:"firstName"`
	LastName               string `json:"lastName"`
	Email                  string `json:"email"`
	MoveInDate             string `json:"moveInDate"`
	Budget                 string `json:"budget"`
	DesiredLocation        string `json:"desiredLocation"`
	HowDidYouHear          string `json:"howDidYouHear"`
	Beds                   int    `json:"beds,omitempty"`
	Baths                  int    `json:"baths,omitempty"`
	WantsToBookAppointment bool   `json:"wants_to_book_appointment"`
	CriminalHistory        string `json:"criminalHistory"`
	IsInterested           bool   `json:"isInterested"`
	Subscribed             string `json:"subscribed"`
	CompanyName            string `json:"companyName"`
}

// CallEnded is a call-completion webhook payload.
type CallEnded struct {
	From     string       `json:"from"`
	To       string       `json:"to"`
	Summary  string       `json:"summary"`
	Analysis CallAnalysis `json:"analysis"`
}

// HandleWebLead ingests a website form: upsert the lead under pathway
// "website", greet the lead with the company's templated first text and notify
// the owner. A missing company is logged, not an error; the form was still
// received.
func (o *Orchestrator) HandleWebLead(ctx context.Context, form WebLeadForm) (string, error) {
	leadPhone := phone.Normalize(form.Phone)
	if leadPhone == "" || form.PhoneNumberTo == "" ||
		len(leadPhone) < models.MinPhoneNumberLength || len(form.PhoneNumberTo) < models.MinPhoneNumberLength {
		return "", fmt.Errorf("%w: phone and phoneNumberTo", models.ErrShortPhoneNumber)
	}

	patch := map[string]any{
		"firstName":         form.FirstName,
		"lastName":          form.LastName,
		"email":             form.Email,
		"phoneNumber":       leadPhone,
		"moveInDate":        form.MoveInDate,
		"budget":            form.Budget,
		"desiredLocation":   form.DesiredLocation,
		"howDidYouHear":     form.HowDidYouHear,
		"companyName":       form.CompanyName,
		"bedsBath":          form.BedsBath,
		"subscribed":        form.Subscribed,
		"criminalHistory":   form.CriminalHistory,
		"needsApartment":    true,
		"pathway":           string(models.PathwayWebsite),
		"appointmentTime":   "",
		"transcriptSummary": "",
	}

	lead, err := o.store.GetLeadByPhone(ctx, leadPhone)
	if err != nil {
		return "", fmt.Errorf("fetch lead: %w", err)
	}
	var leadID string
	if lead != nil {
		leadID = lead.ID
		if err := o.store.PatchLead(ctx, leadID, patch); err != nil {
			return "", fmt.Errorf("update lead: %w", err)
		}
	} else {
		if leadID, err = o.store.CreateLead(ctx, models.Lead{
			PhoneNumber:        leadPhone,
			CompanyPhoneNumber: form.PhoneNumberTo,
			Pathway:            models.PathwayWebsite,
		}); err != nil {
			return "", fmt.Errorf("create lead: %w", err)
		}
		if err := o.store.PatchLead(ctx, leadID, patch); err != nil {
			return "", fmt.Errorf("fill lead: %w", err)
		}
	}

	company, err := o.store.GetCompanyByWebNumber(ctx, form.PhoneNumberTo)
	if err != nil {
		return "", fmt.Errorf("fetch company: %w", err)
	}
	if company == nil {
		slog.Info("Orchestrator.HandleWebLead: company not found", "to", form.PhoneNumberTo)
		return "Webhook received and processed", nil
	}

	if err := o.store.AddLeadToCompany(ctx, company.ID, leadID); err != nil {
		return "", fmt.Errorf("link lead to company: %w", err)
	}
	if err := o.store.PatchLead(ctx, leadID, map[string]any{"leadOwnerId": company.OwnerID}); err != nil {
		return "", fmt.Errorf("assign lead owner: %w", err)
	}

	var agentPhone string
	if company.OwnerID != "" {
		owner, err := o.store.GetOwnerByID(ctx, company.OwnerID)
		if err != nil {
			return "", fmt.Errorf("fetch owner: %w", err)
		}
		if owner != nil {
			agentPhone = owner.PhoneNumber
			if err := o.store.AddLeadToOwner(ctx, company.OwnerID, leadID); err != nil {
				return "", fmt.Errorf("link lead to owner: %w", err)
			}
		}
	}

	firstText := company.FirstText
	if firstText == "" {
		firstText = "Default Text"
	}
	firstText = strings.ReplaceAll(firstText, "[-]", form.FirstName)

	if err := o.messenger.SendMessage(ctx, leadPhone, firstText); err != nil {
		slog.Error("Orchestrator.HandleWebLead: greeting send failed", "error", err, "to", leadPhone)
	}

	if agentPhone != "" {
		heardFrom := form.HowDidYouHear
		if heardFrom == "" {
			heardFrom = "an unknown source"
		}
		agentMessage := fmt.Sprintf(
			"Hi %s Here! You have a new lead from your website: %s %s\nPhone Number: %s\nBudget: %s\nMove In Date: %s\nThey heard of you from: %s",
			form.CompanyName, form.FirstName, form.LastName, leadPhone, form.Budget, form.MoveInDate, heardFrom)
		if err := o.messenger.SendMessage(ctx, agentPhone, agentMessage); err != nil {
			slog.Error("Orchestrator.HandleWebLead: agent notification failed", "error", err, "to", agentPhone)
		}
	} else {
		slog.Info("Orchestrator.HandleWebLead: agent phone number is missing")
	}

	greeting := models.ConversationMessage{
		Content:   firstText,
		Direction: models.DirectionOutbound,
		Timestamp: o.now().Format(time.RFC3339Nano),
		Automated: true,
	}
	if err := o.store.AppendLeadMessage(ctx, leadID, greeting); err != nil {
		return "", fmt.Errorf("persist greeting: %w", err)
	}

	return "Webhook received and processed", nil
}

// EmailScraping is a scraped-email webhook payload: a task extracted from an
// email sent to one of the tenant's addresses.
type EmailScraping struct {
	FromEmail   string `json:"fromEmail"`
	PhoneNumber string `json:"phoneNumber"`
	Task        string `json:"task"`
}

// HandleEmailScraping resolves the tenant by email address and feeds the
// extracted task through the regular lead exchange on the tenant's text line.
func (o *Orchestrator) HandleEmailScraping(ctx context.Context, req EmailScraping) (string, error) {
	company, err := o.store.GetCompanyByEmail(ctx, req.FromEmail)
	if err != nil {
		return "", fmt.Errorf("fetch company: %w", err)
	}
	if company == nil {
		return "", fmt.Errorf("%w: no company for %s", models.ErrCompanyNotFound, req.FromEmail)
	}
	return o.HandleInboundMessage(ctx, req.PhoneNumber, company.TextNumber, req.Task)
}

// HandleCallEnded ingests a call-completion summary: upsert the lead under
// pathway "call" with the transcript summary and analysis fields, and link it
// to the tenant that took the call.
func (o *Orchestrator) HandleCallEnded(ctx context.Context, payload CallEnded) error {
	from := phone.Normalize(payload.From)
	if from == "" || payload.To == "" ||
		len(from) < models.MinPhoneNumberLength || len(payload.To) < models.MinPhoneNumberLength {
		return fmt.Errorf("%w: from and to", models.ErrShortPhoneNumber)
	}

	patch := map[string]any{
		"firstName":         payload.Analysis.FirstName,
		"lastName":          payload.Analysis.LastName,
		"email":             payload.Analysis.Email,
		"moveInDate":        payload.Analysis.MoveInDate,
		"budget":            payload.Analysis.Budget,
		"desiredLocation":   payload.Analysis.DesiredLocation,
		"howDidYouHear":     payload.Analysis.HowDidYouHear,
		"beds":              payload.Analysis.Beds,
		"baths":             payload.Analysis.Baths,
		"criminalHistory":   payload.Analysis.CriminalHistory,
		"isInterested":      payload.Analysis.IsInterested,
		"subscribed":        payload.Analysis.Subscribed,
		"companyName":       payload.Analysis.CompanyName,
		"needsApartment":    payload.Analysis.WantsToBookAppointment,
		"pathway":           string(models.PathwayCall),
		"transcriptSummary": payload.Summary,
	}

	lead, err := o.store.GetLeadByPhone(ctx, from)
	if err != nil {
		return fmt.Errorf("fetch lead: %w", err)
	}
	var leadID string
	if lead != nil {
		leadID = lead.ID
		if err := o.store.PatchLead(ctx, leadID, patch); err != nil {
			return fmt.Errorf("update lead: %w", err)
		}
	} else {
		if leadID, err = o.store.CreateLead(ctx, models.Lead{
			PhoneNumber:        from,
			CompanyPhoneNumber: payload.To,
			Pathway:            models.PathwayCall,
		}); err != nil {
			return fmt.Errorf("create lead: %w", err)
		}
		if err := o.store.PatchLead(ctx, leadID, patch); err != nil {
			return fmt.Errorf("fill lead: %w", err)
		}
	}

	company, err := o.store.GetCompanyByWebNumber(ctx, payload.To)
	if err != nil {
		return fmt.Errorf("fetch company: %w", err)
	}
	if company == nil {
		slog.Info("Orchestrator.HandleCallEnded: company not found", "to", payload.To)
		return nil
	}
	if err := o.store.AddLeadToCompany(ctx, company.ID, leadID); err != nil {
		return fmt.Errorf("link lead to company: %w", err)
	}
	if err := o.store.PatchLead(ctx, leadID, map[string]any{"leadOwnerId": company.OwnerID}); err != nil {
		return fmt.Errorf("assign lead owner: %w", err)
	}
	if company.OwnerID != "" {
		if err := o.store.AddLeadToOwner(ctx, company.OwnerID, leadID); err != nil {
			return fmt.Errorf("link lead to owner: %w", err)
		}
	}

	slog.Info("Orchestrator.HandleCallEnded: call summary stored", "lead_id", leadID, "company_id", company.ID)
	return nil
}
