// Package dispatch executes the side-effecting actions an assistant reply asks
// for. Actions are matched case-insensitively; anything unrecognized is logged
// and ignored so a creative assistant cannot break the messaging loop.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hannahlabs/leadflow/internal/email"
	"github.com/hannahlabs/leadflow/internal/messaging"
	"github.com/hannahlabs/leadflow/internal/models"
	"github.com/hannahlabs/leadflow/internal/store"
	"github.com/hannahlabs/leadflow/internal/timeutil"
)

// Opts holds configuration options for the dispatcher.
type Opts struct {
	NotifyNumber string
}

// Option defines a configuration option for the dispatcher.
type Option func(*Opts)

// WithNotifyNumber sets the staff number that receives status notifications
// for lead and event actions.
func WithNotifyNumber(phone string) Option {
	return func(o *Opts) { o.NotifyNumber = phone }
}

// Dispatcher maps an action label to its datastore and gateway effects.
type Dispatcher struct {
	store     store.Store
	messenger messaging.Service
	email     email.Sender
	notify    string
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(st store.Store, messenger messaging.Service, sender email.Sender, opts ...Option) *Dispatcher {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{store: st, messenger: messenger, email: sender, notify: cfg.NotifyNumber}
}

// Execute runs the action described by task. ownerID and companyID scope the
// writes to the tenant that received the message; requesterPhone is where
// human-readable results are texted. Gateway failures are returned but leave
// completed datastore writes in place.
func (d *Dispatcher) Execute(ctx context.Context, task models.TaskData, ownerID, companyID, requesterPhone string) error {
	action := task.NormalizedAction()
	switch action {
	case "create lead", "update lead":
		return d.upsertLead(ctx, task, ownerID, companyID)
	case "get lead":
		return d.getLead(ctx, task, requesterPhone)
	case "guest card":
		return d.guestCard(ctx, task, requesterPhone)
	case "create event", "update event":
		return d.upsertEvent(ctx, task, ownerID)
	default:
		slog.Warn("Dispatcher.Execute: unknown action, ignoring", "action", action)
		return nil
	}
}

func (d *Dispatcher) upsertLead(ctx context.Context, task models.TaskData, ownerID, companyID string) error {
	if task.PhoneNumber == "" {
		return fmt.Errorf("%w: phoneNumber", models.ErrMissingField)
	}

	existing, err := d.store.GetLeadByPhone(ctx, task.PhoneNumber)
	if err != nil {
		return fmt.Errorf("look up lead %s: %w", task.PhoneNumber, err)
	}

	var status string
	if existing != nil {
		patch := map[string]any{"leadOwnerId": ownerID}
		if task.FirstName != "" {
			patch["firstName"] = task.FirstName
		}
		if task.LastName != "" {
			patch["lastName"] = task.LastName
		}
		if task.Email != "" {
			patch["email"] = task.Email
		}
		if task.Status != "" {
			patch["status"] = task.Status
		}
		if err := d.store.PatchLead(ctx, existing.ID, patch); err != nil {
			return fmt.Errorf("update lead %s: %w", existing.ID, err)
		}
		status = fmt.Sprintf("Lead with phone number %s has been updated successfully.", task.PhoneNumber)
	} else {
		lead := models.Lead{
			FirstName:   task.FirstName,
			LastName:    task.LastName,
			PhoneNumber: task.PhoneNumber,
			Email:       task.Email,
			LeadOwnerID: ownerID,
			Status:      task.Status,
		}
		if lead.Status == "" {
			lead.Status = "Unknown"
		}
		leadID, err := d.store.CreateLead(ctx, lead)
		if err != nil {
			return fmt.Errorf("create lead: %w", err)
		}
		if err := d.store.AddLeadToOwner(ctx, ownerID, leadID); err != nil {
			return fmt.Errorf("link lead to owner: %w", err)
		}
		if err := d.store.AddLeadToCompany(ctx, companyID, leadID); err != nil {
			return fmt.Errorf("link lead to company: %w", err)
		}
		status = fmt.Sprintf("New lead with phone number %s has been created successfully.", task.PhoneNumber)
	}

	slog.Info("Dispatcher.upsertLead: done", "phone", task.PhoneNumber, "created", existing == nil)
	return d.notifyStaff(ctx, status)
}

func (d *Dispatcher) getLead(ctx context.Context, task models.TaskData, requesterPhone string) error {
	if task.PhoneNumber == "" {
		return fmt.Errorf("%w: phoneNumber", models.ErrMissingField)
	}

	lead, err := d.store.GetLeadByPhone(ctx, task.PhoneNumber)
	if err != nil {
		return fmt.Errorf("look up lead %s: %w", task.PhoneNumber, err)
	}
	if lead == nil {
		return d.messenger.SendMessage(ctx, requesterPhone,
			fmt.Sprintf("No lead found with phone number: %s", task.PhoneNumber))
	}

	details := fmt.Sprintf("Lead Details:\nName: %s\nPhone: %s\nEmail: %s\nStatus: %s",
		lead.FullName(), lead.PhoneNumber, lead.Email, lead.Status)
	return d.messenger.SendMessage(ctx, requesterPhone, details)
}

func (d *Dispatcher) guestCard(ctx context.Context, task models.TaskData, requesterPhone string) error {
	if task.PhoneNumber == "" {
		return fmt.Errorf("%w: phoneNumber", models.ErrMissingField)
	}

	lead, err := d.store.GetLeadByPhone(ctx, task.PhoneNumber)
	if err != nil {
		return fmt.Errorf("look up lead %s: %w", task.PhoneNumber, err)
	}
	if lead == nil {
		return d.messenger.SendMessage(ctx, requesterPhone,
			fmt.Sprintf("I wasn't able to find a lead with %s", task.PhoneNumber))
	}

	body := fmt.Sprintf("Guest Card Info\nClient Name: %s\nClient Email: %s\nClient Phone Number: %s",
		lead.FullName(), lead.Email, lead.PhoneNumber)
	emailErr := d.email.SendEmail(ctx, task.Email, "guestcard", body)

	confirmation := "Your guest card has been successfully emailed! ✅"
	if emailErr != nil {
		slog.Error("Dispatcher.guestCard: email send failed", "error", emailErr, "to", task.Email)
		confirmation = "Sorry, there was a problem sending your guest card email. ❌"
	}
	if err := d.messenger.SendMessage(ctx, requesterPhone, confirmation); err != nil {
		return fmt.Errorf("send guest card confirmation: %w", err)
	}
	return emailErr
}

func (d *Dispatcher) upsertEvent(ctx context.Context, task models.TaskData, ownerID string) error {
	if task.Start == "" {
		return fmt.Errorf("%w: start", models.ErrMissingField)
	}

	start, err := timeutil.LocalToUTC(task.Start)
	if err != nil {
		return fmt.Errorf("convert event start: %w", err)
	}
	end := ""
	if task.End != "" {
		if end, err = timeutil.LocalToUTC(task.End); err != nil {
			return fmt.Errorf("convert event end: %w", err)
		}
	} else {
		duration := task.Duration
		if duration <= 0 {
			duration = models.DefaultEventDurationMinutes
		}
		if end, err = timeutil.AddMinutes(start, duration); err != nil {
			return fmt.Errorf("derive event end: %w", err)
		}
	}

	readable, err := timeutil.FormatReadable(start)
	if err != nil {
		return fmt.Errorf("format event start: %w", err)
	}

	existing, err := d.store.GetEventByOwnerAndStart(ctx, ownerID, start)
	if err != nil {
		return fmt.Errorf("look up event: %w", err)
	}

	var status string
	if existing != nil {
		if task.Title != "" {
			existing.Title = task.Title
		}
		existing.Start = start
		existing.End = end
		if err := d.store.UpdateEvent(ctx, *existing); err != nil {
			return fmt.Errorf("update event %s: %w", existing.ID, err)
		}
		status = fmt.Sprintf("Event with start time %s has been updated successfully.", readable)
	} else {
		ev := models.Event{OwnerID: ownerID, Title: task.Title, Start: start, End: end}
		if _, err := d.store.CreateEvent(ctx, ev); err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		// A new booking invalidates the owner's prior conversation context.
		if err := d.store.PurgeOwnerConversation(ctx, ownerID); err != nil {
			return fmt.Errorf("purge owner conversation: %w", err)
		}
		status = fmt.Sprintf("New event with start time %s has been created successfully.", readable)
	}

	slog.Info("Dispatcher.upsertEvent: done", "owner_id", ownerID, "start", start, "created", existing == nil)
	return d.notifyStaff(ctx, status)
}

// notifyStaff texts the configured notify number, if any. Failures are logged
// and swallowed; status notifications are best-effort.
func (d *Dispatcher) notifyStaff(ctx context.Context, text string) error {
	if d.notify == "" {
		return nil
	}
	if err := d.messenger.SendMessage(ctx, d.notify, text); err != nil {
		slog.Error("Dispatcher.notifyStaff: send failed", "error", err, "to", d.notify)
	}
	return nil
}
