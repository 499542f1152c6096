// Package store provides storage backends for LeadFlow.
//
// Records are stored as JSON documents with dedicated columns for the keys the
// system queries on (phone numbers, owner ids, event start times). Multi-record
// updates such as lead/owner/company linkage are NOT transactional: the system
// relies on idempotent upsert-by-key semantics instead, so a retried request
// converges rather than duplicating records.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hannahlabs/leadflow/internal/models"
)

// Store is the document datastore contract consumed by the orchestrator,
// dispatcher and availability engine. Lookups return (nil, nil) when no record
// matches; errors are reserved for storage failures.
type Store interface {
	// Leads
	GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error)
	CreateLead(ctx context.Context, lead models.Lead) (string, error)
	PatchLead(ctx context.Context, id string, patch map[string]any) error

	// Companies
	GetCompanyByTextNumber(ctx context.Context, phone string) (*models.Company, error)
	GetCompanyByWebNumber(ctx context.Context, phone string) (*models.Company, error)
	GetCompanyByFAQNumber(ctx context.Context, phone string) (*models.Company, error)
	// GetCompanyByAnyNumber matches the text, web and FAQ intake numbers in turn.
	GetCompanyByAnyNumber(ctx context.Context, phone string) (*models.Company, error)
	GetCompanyByEmail(ctx context.Context, email string) (*models.Company, error)
	AddLeadToCompany(ctx context.Context, companyID, leadID string) error
	// UpsertCompany provisions or replaces a tenant record.
	UpsertCompany(ctx context.Context, c models.Company) (string, error)

	// Owners
	GetOwnerByID(ctx context.Context, id string) (*models.Owner, error)
	GetOwnerByPhone(ctx context.Context, phone string) (*models.Owner, error)
	AddLeadToOwner(ctx context.Context, ownerID, leadID string) error
	// UpsertOwner provisions or replaces a staff record.
	UpsertOwner(ctx context.Context, o models.Owner) (string, error)

	// Conversations. Lead- and owner-scoped logs are kept separately because
	// the agent-FAQ channel converses with staff, not leads.
	AppendLeadMessage(ctx context.Context, leadID string, msg models.ConversationMessage) error
	ListLeadConversation(ctx context.Context, leadID string) ([]models.ConversationMessage, error)
	AppendOwnerMessage(ctx context.Context, ownerID string, msg models.ConversationMessage) error
	ListOwnerConversation(ctx context.Context, ownerID string) ([]models.ConversationMessage, error)
	PurgeOwnerConversation(ctx context.Context, ownerID string) error

	// Events
	GetEventByOwnerAndStart(ctx context.Context, ownerID, start string) (*models.Event, error)
	CreateEvent(ctx context.Context, ev models.Event) (string, error)
	UpdateEvent(ctx context.Context, ev models.Event) error
	ListOwnerEvents(ctx context.Context, ownerID, from, to string) ([]models.Event, error)

	Close() error
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports which SQL driver a DSN is for: "postgres" or "sqlite3".
// Anything that does not look like a Postgres connection string is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// nowISO returns the server-assigned timestamp used for dateCreated/dateUpdated.
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// unionAppend adds id to ids if absent, reporting whether the slice changed.
func unionAppend(ids []string, id string) ([]string, bool) {
	for _, existing := range ids {
		if existing == id {
			return ids, false
		}
	}
	return append(ids, id), true
}

// InMemoryStore is a map-backed Store used by tests and local development.
type InMemoryStore struct {
	mu        sync.RWMutex
	leads     map[string]*models.Lead
	leadDocs  map[string]map[string]any
	companies map[string]*models.Company
	owners    map[string]*models.Owner
	leadConvo map[string][]models.ConversationMessage
	ownConvo  map[string][]models.ConversationMessage
	events    map[string]*models.Event
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		leads:     make(map[string]*models.Lead),
		leadDocs:  make(map[string]map[string]any),
		companies: make(map[string]*models.Company),
		owners:    make(map[string]*models.Owner),
		leadConvo: make(map[string][]models.ConversationMessage),
		ownConvo:  make(map[string][]models.ConversationMessage),
		events:    make(map[string]*models.Event),
	}
}

func (s *InMemoryStore) GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.leads {
		if l.PhoneNumber == phone {
			copied := *l
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) CreateLead(ctx context.Context, lead models.Lead) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	lead.DateCreated = nowISO()
	copied := lead
	s.leads[lead.ID] = &copied
	doc, err := leadToDoc(lead)
	if err != nil {
		return "", err
	}
	s.leadDocs[lead.ID] = doc
	return lead.ID, nil
}

func (s *InMemoryStore) PatchLead(ctx context.Context, id string, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.leadDocs[id]
	if !ok {
		return models.ErrLeadNotFound
	}
	for k, v := range patch {
		doc[k] = v
	}
	doc["dateUpdated"] = nowISO()
	lead, err := leadFromDoc(id, doc)
	if err != nil {
		return err
	}
	s.leads[id] = lead
	return nil
}

func (s *InMemoryStore) companyWhere(match func(*models.Company) bool) *models.Company {
	for _, c := range s.companies {
		if match(c) {
			copied := *c
			return &copied
		}
	}
	return nil
}

func (s *InMemoryStore) GetCompanyByTextNumber(ctx context.Context, phone string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.companyWhere(func(c *models.Company) bool { return c.TextNumber == phone }), nil
}

func (s *InMemoryStore) GetCompanyByWebNumber(ctx context.Context, phone string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.companyWhere(func(c *models.Company) bool { return c.WebNumber == phone }), nil
}

func (s *InMemoryStore) GetCompanyByFAQNumber(ctx context.Context, phone string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.companyWhere(func(c *models.Company) bool { return c.FAQNumber == phone }), nil
}

func (s *InMemoryStore) GetCompanyByEmail(ctx context.Context, email string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.companyWhere(func(c *models.Company) bool { return c.Email == email }), nil
}

func (s *InMemoryStore) GetCompanyByAnyNumber(ctx context.Context, phone string) (*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.companyWhere(func(c *models.Company) bool {
		return c.TextNumber == phone || c.WebNumber == phone || c.FAQNumber == phone
	}), nil
}

func (s *InMemoryStore) AddLeadToCompany(ctx context.Context, companyID, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.companies[companyID]
	if !ok {
		return models.ErrCompanyNotFound
	}
	c.Leads, _ = unionAppend(c.Leads, leadID)
	return nil
}

func (s *InMemoryStore) GetOwnerByID(ctx context.Context, id string) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[id]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (s *InMemoryStore) GetOwnerByPhone(ctx context.Context, phone string) (*models.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.owners {
		if o.PhoneNumber == phone {
			copied := *o
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) AddLeadToOwner(ctx context.Context, ownerID, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[ownerID]
	if !ok {
		return models.ErrOwnerNotFound
	}
	o.Leads, _ = unionAppend(o.Leads, leadID)
	return nil
}

func (s *InMemoryStore) AppendLeadMessage(ctx context.Context, leadID string, msg models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leadConvo[leadID] = append(s.leadConvo[leadID], msg)
	return nil
}

func (s *InMemoryStore) ListLeadConversation(ctx context.Context, leadID string) ([]models.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedByTimestamp(s.leadConvo[leadID]), nil
}

func (s *InMemoryStore) AppendOwnerMessage(ctx context.Context, ownerID string, msg models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownConvo[ownerID] = append(s.ownConvo[ownerID], msg)
	return nil
}

func (s *InMemoryStore) ListOwnerConversation(ctx context.Context, ownerID string) ([]models.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedByTimestamp(s.ownConvo[ownerID]), nil
}

func (s *InMemoryStore) PurgeOwnerConversation(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ownConvo, ownerID)
	return nil
}

func (s *InMemoryStore) GetEventByOwnerAndStart(ctx context.Context, ownerID, start string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.OwnerID == ownerID && ev.Start == start {
			copied := *ev
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) CreateEvent(ctx context.Context, ev models.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	copied := ev
	s.events[ev.ID] = &copied
	return ev.ID, nil
}

func (s *InMemoryStore) UpdateEvent(ctx context.Context, ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; !ok {
		return models.ErrEventNotFound
	}
	copied := ev
	s.events[ev.ID] = &copied
	return nil
}

func (s *InMemoryStore) ListOwnerEvents(ctx context.Context, ownerID, from, to string) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Event
	for _, ev := range s.events {
		if ev.OwnerID != ownerID {
			continue
		}
		if (from == "" || ev.Start >= from) && (to == "" || ev.Start <= to) {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) UpsertCompany(ctx context.Context, c models.Company) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	copied := c
	s.companies[c.ID] = &copied
	return c.ID, nil
}

func (s *InMemoryStore) UpsertOwner(ctx context.Context, o models.Owner) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	copied := o
	s.owners[o.ID] = &copied
	return o.ID, nil
}

func sortedByTimestamp(msgs []models.ConversationMessage) []models.ConversationMessage {
	out := make([]models.ConversationMessage, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
