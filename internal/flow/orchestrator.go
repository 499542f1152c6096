package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hannahlabs/leadflow/internal/assistant"
	"github.com/hannahlabs/leadflow/internal/availability"
	"github.com/hannahlabs/leadflow/internal/dispatch"
	"github.com/hannahlabs/leadflow/internal/messaging"
	"github.com/hannahlabs/leadflow/internal/models"
	"github.com/hannahlabs/leadflow/internal/store"
)

// Opts holds configuration options for the orchestrator.
type Opts struct {
	NotifyNumber   string
	BlockedSenders []string
}

// Option defines a configuration option for the orchestrator.
type Option func(*Opts)

// WithNotifyNumber sets the staff number that receives relayed agent-FAQ
// replies.
func WithNotifyNumber(phone string) Option {
	return func(o *Opts) { o.NotifyNumber = phone }
}

// WithBlockedSenders sets numbers whose inbound messages are rejected.
func WithBlockedSenders(phones []string) Option {
	return func(o *Opts) { o.BlockedSenders = phones }
}

// Orchestrator runs one full exchange per inbound message. Partial writes are
// never rolled back; retried requests converge through upsert-by-phone.
type Orchestrator struct {
	store        store.Store
	assistant    *assistant.Client
	availability *availability.Service
	dispatcher   *dispatch.Dispatcher
	messenger    messaging.Service
	router       *Router
	guard        *DuplicateGuard

	notify  string
	blocked map[string]struct{}
	now     func() time.Time
}

// NewOrchestrator wires the exchange pipeline. The duplicate guard is injected
// so its lifecycle (reset on restart) is explicit rather than a package global.
func NewOrchestrator(st store.Store, ai *assistant.Client, avail *availability.Service, disp *dispatch.Dispatcher, messenger messaging.Service, guard *DuplicateGuard, opts ...Option) *Orchestrator {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	blocked := make(map[string]struct{}, len(cfg.BlockedSenders))
	for _, p := range cfg.BlockedSenders {
		blocked[p] = struct{}{}
	}
	return &Orchestrator{
		store:        st,
		assistant:    ai,
		availability: avail,
		dispatcher:   disp,
		messenger:    messenger,
		router:       NewRouter(),
		guard:        guard,
		notify:       cfg.NotifyNumber,
		blocked:      blocked,
		now:          time.Now,
	}
}

// validateInbound applies the shared webhook checks.
func (o *Orchestrator) validateInbound(from, to, body string) error {
	if from == "" || to == "" || body == "" {
		return models.ErrMissingFields
	}
	if len(from) < models.MinPhoneNumberLength || len(to) < models.MinPhoneNumberLength {
		return models.ErrShortPhoneNumber
	}
	if from == to {
		return models.ErrSamePhoneNumber
	}
	if _, ok := o.blocked[from]; ok {
		return fmt.Errorf("%w: %s", models.ErrBlockedSender, from)
	}
	return nil
}

// HandleInboundMessage runs the lead exchange for an inbound text from a lead
// to one of the tenant's intake numbers, returning the reply text that was
// sent back.
func (o *Orchestrator) HandleInboundMessage(ctx context.Context, from, to, body string) (string, error) {
	if err := o.validateInbound(from, to, body); err != nil {
		return "", err
	}
	if err := o.guard.Check(from, body); err != nil {
		return "", err
	}
	slog.Info("Orchestrator.HandleInboundMessage: inbound text received", "from", from, "to", to)

	lead, err := o.store.GetLeadByPhone(ctx, from)
	if err != nil {
		return "", fmt.Errorf("fetch lead: %w", err)
	}
	if lead == nil {
		id, err := o.store.CreateLead(ctx, models.Lead{
			PhoneNumber:        from,
			CompanyPhoneNumber: to,
			Pathway:            models.PathwaySMS,
		})
		if err != nil {
			return "", fmt.Errorf("create lead: %w", err)
		}
		if lead, err = o.store.GetLeadByPhone(ctx, from); err != nil || lead == nil {
			return "", fmt.Errorf("reload lead %s: %w", id, err)
		}
		slog.Info("Orchestrator.HandleInboundMessage: lead created", "lead_id", id)
	}

	company, err := o.store.GetCompanyByTextNumber(ctx, to)
	if err != nil {
		return "", fmt.Errorf("fetch company: %w", err)
	}
	if company == nil {
		return "", fmt.Errorf("%w: no company for %s", models.ErrCompanyNotFound, to)
	}

	if err := o.store.AddLeadToCompany(ctx, company.ID, lead.ID); err != nil {
		return "", fmt.Errorf("link lead to company: %w", err)
	}
	if company.OwnerID != "" {
		if err := o.store.AddLeadToOwner(ctx, company.OwnerID, lead.ID); err != nil {
			return "", fmt.Errorf("link lead to owner: %w", err)
		}
	}

	history, err := o.store.ListLeadConversation(ctx, lead.ID)
	if err != nil {
		return "", fmt.Errorf("load conversation: %w", err)
	}

	profile, err := o.router.Route(to, lead.Pathway)
	if err != nil {
		return "", err
	}

	reply, err := o.converse(ctx, profile, history, lead, body, from, to)
	if err != nil {
		return "", err
	}

	if err := o.persistExchange(ctx, lead.ID, body, reply.ChatResponse); err != nil {
		return "", err
	}

	if reply.TaskData.Work {
		if err := o.dispatcher.Execute(ctx, reply.TaskData, company.OwnerID, company.ID, from); err != nil {
			// Dispatch failures must not block the chat reply.
			slog.Error("Orchestrator.HandleInboundMessage: dispatch failed", "error", err, "action", reply.TaskData.Action)
		}
	}

	if err := o.messenger.SendMessage(ctx, from, reply.ChatResponse); err != nil {
		return "", fmt.Errorf("send reply to %s: %w", from, err)
	}

	patch := models.LeadPatchFromUserData(reply.UserData)
	if patch == nil {
		patch = make(map[string]any)
	}
	patch["companyPhoneNumber"] = to
	patch["lastResponse"] = o.now().UTC().Format(time.RFC3339)
	patch["leadOwnerId"] = company.OwnerID
	patch["leadCreator"] = company.ID
	if err := o.store.PatchLead(ctx, lead.ID, patch); err != nil {
		return "", fmt.Errorf("update lead: %w", err)
	}

	return reply.ChatResponse, nil
}

// HandleAgentFAQ runs the staff FAQ exchange: the sender is a registered owner
// texting the tenant's FAQ number, and the conversation is owner-scoped.
func (o *Orchestrator) HandleAgentFAQ(ctx context.Context, from, to, body string) (string, error) {
	if err := o.validateInbound(from, to, body); err != nil {
		return "", err
	}

	company, err := o.store.GetCompanyByFAQNumber(ctx, to)
	if err != nil {
		return "", fmt.Errorf("fetch company: %w", err)
	}
	owner, err := o.store.GetOwnerByPhone(ctx, from)
	if err != nil {
		return "", fmt.Errorf("fetch owner: %w", err)
	}
	if company == nil || owner == nil {
		return "", fmt.Errorf("%w: not registered with an agency", models.ErrOwnerNotFound)
	}

	history, err := o.store.ListOwnerConversation(ctx, owner.ID)
	if err != nil {
		return "", fmt.Errorf("load conversation: %w", err)
	}

	prompt := buildPrompt(profileAgentFAQ, promptInput{
		Conversation: joinContents(history),
		NewMessage:   body,
		UserPhone:    from,
		CompanyPhone: to,
		Now:          o.now(),
	})
	reply, err := o.assistant.Converse(ctx, profileAgentFAQ.AssistantID,
		[]assistant.Message{{Role: models.DirectionInbound, Content: prompt}}, from, to)
	if err != nil {
		return "", err
	}

	ts := o.now()
	inbound := models.ConversationMessage{Content: body, Direction: models.DirectionInbound, Timestamp: ts.Format(time.RFC3339Nano)}
	outbound := models.ConversationMessage{Content: reply.ChatResponse, Direction: models.DirectionOutbound, Timestamp: ts.Add(time.Millisecond).Format(time.RFC3339Nano)}
	if err := o.store.AppendOwnerMessage(ctx, owner.ID, inbound); err != nil {
		return "", fmt.Errorf("persist inbound message: %w", err)
	}
	if err := o.store.AppendOwnerMessage(ctx, owner.ID, outbound); err != nil {
		return "", fmt.Errorf("persist outbound message: %w", err)
	}

	if reply.TaskData.Work {
		if err := o.dispatcher.Execute(ctx, reply.TaskData, owner.ID, company.ID, from); err != nil {
			slog.Error("Orchestrator.HandleAgentFAQ: dispatch failed", "error", err, "action", reply.TaskData.Action)
		}
	} else if o.notify != "" {
		if err := o.messenger.SendMessage(ctx, o.notify, reply.ChatResponse); err != nil {
			slog.Error("Orchestrator.HandleAgentFAQ: relay failed", "error", err, "to", o.notify)
		}
	}

	return reply.ChatResponse, nil
}

// converse builds the profile prompt and runs the assistant exchange.
func (o *Orchestrator) converse(ctx context.Context, profile Profile, history []models.ConversationMessage, lead *models.Lead, body, from, to string) (models.AIReply, error) {
	var availabilityJSON string
	if profile.InjectAvailability {
		slots, err := o.availability.CompanyAvailability(ctx, to, true)
		if err != nil {
			return models.AIReply{}, fmt.Errorf("fetch availability: %w", err)
		}
		encoded, err := json.Marshal(slots)
		if err != nil {
			return models.AIReply{}, fmt.Errorf("encode availability: %w", err)
		}
		availabilityJSON = string(encoded)
	}

	snapshot, err := json.Marshal(lead)
	if err != nil {
		return models.AIReply{}, fmt.Errorf("encode lead snapshot: %w", err)
	}

	prompt := buildPrompt(profile, promptInput{
		Conversation: joinContents(history),
		LeadSnapshot: string(snapshot),
		NewMessage:   body,
		UserPhone:    from,
		CompanyPhone: to,
		Availability: availabilityJSON,
		Now:          o.now(),
	})
	return o.assistant.Converse(ctx, profile.AssistantID,
		[]assistant.Message{{Role: models.DirectionInbound, Content: prompt}}, from, to)
}

// persistExchange appends the inbound and outbound messages, inbound first.
func (o *Orchestrator) persistExchange(ctx context.Context, leadID, inboundText, outboundText string) error {
	ts := o.now()
	inbound := models.ConversationMessage{Content: inboundText, Direction: models.DirectionInbound, Timestamp: ts.Format(time.RFC3339Nano)}
	outbound := models.ConversationMessage{Content: outboundText, Direction: models.DirectionOutbound, Timestamp: ts.Add(time.Millisecond).Format(time.RFC3339Nano)}
	if err := o.store.AppendLeadMessage(ctx, leadID, inbound); err != nil {
		return fmt.Errorf("persist inbound message: %w", err)
	}
	if err := o.store.AppendLeadMessage(ctx, leadID, outbound); err != nil {
		return fmt.Errorf("persist outbound message: %w", err)
	}
	return nil
}
