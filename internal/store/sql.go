package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hannahlabs/leadflow/internal/models"
)

// sqlStore implements Store on database/sql. SQLite and Postgres share the
// schema and all queries; only placeholder style differs.
type sqlStore struct {
	db       *sql.DB
	postgres bool
}

// rebind converts ?-style placeholders to $n for Postgres.
func (s *sqlStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) GetLeadByPhone(ctx context.Context, phone string) (*models.Lead, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, data, created_at, updated_at FROM leads WHERE phone_number = ?`), phone)
	var id, data, createdAt string
	var updatedAt sql.NullString
	if err := row.Scan(&id, &data, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query lead by phone %s: %w", phone, err)
	}
	var lead models.Lead
	if err := decodeDoc(data, &lead); err != nil {
		return nil, err
	}
	lead.ID = id
	lead.PhoneNumber = phone
	lead.DateCreated = createdAt
	lead.DateUpdated = updatedAt.String
	return &lead, nil
}

func (s *sqlStore) CreateLead(ctx context.Context, lead models.Lead) (string, error) {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	id := lead.ID
	createdAt := nowISO()
	lead.DateCreated = createdAt
	data, err := encodeDoc(lead)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO leads (id, phone_number, data, created_at) VALUES (?, ?, ?, ?)`),
		id, lead.PhoneNumber, data, createdAt)
	if err != nil {
		return "", fmt.Errorf("insert lead %s: %w", lead.PhoneNumber, err)
	}
	slog.Debug("store.CreateLead: lead created", "lead_id", id, "phone", lead.PhoneNumber)
	return id, nil
}

func (s *sqlStore) PatchLead(ctx context.Context, id string, patch map[string]any) error {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM leads WHERE id = ?`), id)
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return models.ErrLeadNotFound
		}
		return fmt.Errorf("query lead %s: %w", id, err)
	}
	updatedAt := nowISO()
	merged, err := mergeDoc(data, patch)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE leads SET data = ?, updated_at = ? WHERE id = ?`), merged, updatedAt, id); err != nil {
		return fmt.Errorf("update lead %s: %w", id, err)
	}
	return nil
}

func (s *sqlStore) companyByColumn(ctx context.Context, column, phone string) (*models.Company, error) {
	// column comes from a fixed internal set, never user input.
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, data FROM companies WHERE `+column+` = ?`), phone)
	var id, data string
	if err := row.Scan(&id, &data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query company by %s: %w", column, err)
	}
	var c models.Company
	if err := decodeDoc(data, &c); err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}

func (s *sqlStore) GetCompanyByTextNumber(ctx context.Context, phone string) (*models.Company, error) {
	return s.companyByColumn(ctx, "text_number", phone)
}

func (s *sqlStore) GetCompanyByWebNumber(ctx context.Context, phone string) (*models.Company, error) {
	return s.companyByColumn(ctx, "web_number", phone)
}

func (s *sqlStore) GetCompanyByFAQNumber(ctx context.Context, phone string) (*models.Company, error) {
	return s.companyByColumn(ctx, "faq_number", phone)
}

func (s *sqlStore) GetCompanyByEmail(ctx context.Context, email string) (*models.Company, error) {
	return s.companyByColumn(ctx, "email", email)
}

func (s *sqlStore) GetCompanyByAnyNumber(ctx context.Context, phone string) (*models.Company, error) {
	for _, column := range []string{"text_number", "web_number", "faq_number"} {
		c, err := s.companyByColumn(ctx, column, phone)
		if err != nil || c != nil {
			return c, err
		}
	}
	return nil, nil
}

func (s *sqlStore) AddLeadToCompany(ctx context.Context, companyID, leadID string) error {
	c, err := s.companyDoc(ctx, companyID)
	if err != nil {
		return err
	}
	leads, changed := unionAppend(c.Leads, leadID)
	if !changed {
		return nil
	}
	c.Leads = leads
	return s.writeCompanyDoc(ctx, companyID, c)
}

func (s *sqlStore) companyDoc(ctx context.Context, id string) (*models.Company, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT data FROM companies WHERE id = ?`), id)
	var data string
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrCompanyNotFound
		}
		return nil, fmt.Errorf("query company %s: %w", id, err)
	}
	var c models.Company
	if err := decodeDoc(data, &c); err != nil {
		return nil, err
	}
	c.ID = id
	return &c, nil
}

func (s *sqlStore) writeCompanyDoc(ctx context.Context, id string, c *models.Company) error {
	c.ID = ""
	data, err := encodeDoc(c)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE companies SET data = ? WHERE id = ?`), data, id); err != nil {
		return fmt.Errorf("update company %s: %w", id, err)
	}
	return nil
}

func (s *sqlStore) UpsertCompany(ctx context.Context, c models.Company) (string, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	id := c.ID
	text, web, faq, email := c.TextNumber, c.WebNumber, c.FAQNumber, c.Email
	c.ID = ""
	data, err := encodeDoc(c)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO companies (id, text_number, web_number, faq_number, email, data) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET text_number = excluded.text_number,
		 web_number = excluded.web_number, faq_number = excluded.faq_number,
		 email = excluded.email, data = excluded.data`),
		id, text, web, faq, email, data)
	if err != nil {
		return "", fmt.Errorf("upsert company %s: %w", id, err)
	}
	return id, nil
}

func (s *sqlStore) GetOwnerByID(ctx context.Context, id string) (*models.Owner, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT phone_number, data FROM owners WHERE id = ?`), id)
	var phone, data string
	if err := row.Scan(&phone, &data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query owner %s: %w", id, err)
	}
	var o models.Owner
	if err := decodeDoc(data, &o); err != nil {
		return nil, err
	}
	o.ID = id
	o.PhoneNumber = phone
	return &o, nil
}

func (s *sqlStore) GetOwnerByPhone(ctx context.Context, phone string) (*models.Owner, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT id, data FROM owners WHERE phone_number = ?`), phone)
	var id, data string
	if err := row.Scan(&id, &data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query owner by phone: %w", err)
	}
	var o models.Owner
	if err := decodeDoc(data, &o); err != nil {
		return nil, err
	}
	o.ID = id
	o.PhoneNumber = phone
	return &o, nil
}

func (s *sqlStore) AddLeadToOwner(ctx context.Context, ownerID, leadID string) error {
	o, err := s.GetOwnerByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if o == nil {
		return models.ErrOwnerNotFound
	}
	leads, changed := unionAppend(o.Leads, leadID)
	if !changed {
		return nil
	}
	o.Leads = leads
	id, phone := o.ID, o.PhoneNumber
	o.ID = ""
	data, err := encodeDoc(o)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE owners SET phone_number = ?, data = ? WHERE id = ?`), phone, data, id); err != nil {
		return fmt.Errorf("update owner %s: %w", id, err)
	}
	return nil
}

func (s *sqlStore) UpsertOwner(ctx context.Context, o models.Owner) (string, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	id, phone := o.ID, o.PhoneNumber
	o.ID = ""
	data, err := encodeDoc(o)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO owners (id, phone_number, data) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET phone_number = excluded.phone_number, data = excluded.data`),
		id, phone, data)
	if err != nil {
		return "", fmt.Errorf("upsert owner %s: %w", id, err)
	}
	return id, nil
}

func (s *sqlStore) appendMessage(ctx context.Context, scope, scopeID string, msg models.ConversationMessage) error {
	automated := 0
	if msg.Automated {
		automated = 1
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO conversation_messages (id, scope, scope_id, content, direction, automated, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), scope, scopeID, msg.Content, string(msg.Direction), automated, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("append %s message: %w", scope, err)
	}
	return nil
}

func (s *sqlStore) listMessages(ctx context.Context, scope, scopeID string) ([]models.ConversationMessage, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT content, direction, automated, ts FROM conversation_messages
		 WHERE scope = ? AND scope_id = ? ORDER BY ts`), scope, scopeID)
	if err != nil {
		return nil, fmt.Errorf("query %s conversation: %w", scope, err)
	}
	defer rows.Close()

	var msgs []models.ConversationMessage
	for rows.Next() {
		var m models.ConversationMessage
		var direction string
		var automated int
		if err := rows.Scan(&m.Content, &direction, &automated, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		m.Direction = models.Direction(direction)
		m.Automated = automated != 0
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return msgs, nil
}

func (s *sqlStore) AppendLeadMessage(ctx context.Context, leadID string, msg models.ConversationMessage) error {
	return s.appendMessage(ctx, "lead", leadID, msg)
}

func (s *sqlStore) ListLeadConversation(ctx context.Context, leadID string) ([]models.ConversationMessage, error) {
	return s.listMessages(ctx, "lead", leadID)
}

func (s *sqlStore) AppendOwnerMessage(ctx context.Context, ownerID string, msg models.ConversationMessage) error {
	return s.appendMessage(ctx, "owner", ownerID, msg)
}

func (s *sqlStore) ListOwnerConversation(ctx context.Context, ownerID string) ([]models.ConversationMessage, error) {
	return s.listMessages(ctx, "owner", ownerID)
}

func (s *sqlStore) PurgeOwnerConversation(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM conversation_messages WHERE scope = 'owner' AND scope_id = ?`), ownerID)
	if err != nil {
		return fmt.Errorf("purge owner conversation %s: %w", ownerID, err)
	}
	slog.Debug("store.PurgeOwnerConversation: conversation cleared", "owner_id", ownerID)
	return nil
}

func (s *sqlStore) GetEventByOwnerAndStart(ctx context.Context, ownerID, start string) (*models.Event, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, title, end_at FROM events WHERE owner_id = ? AND start_at = ?`), ownerID, start)
	var ev models.Event
	var title, endAt sql.NullString
	if err := row.Scan(&ev.ID, &title, &endAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query event by owner/start: %w", err)
	}
	ev.OwnerID = ownerID
	ev.Start = start
	ev.Title = title.String
	ev.End = endAt.String
	return &ev, nil
}

func (s *sqlStore) CreateEvent(ctx context.Context, ev models.Event) (string, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO events (id, owner_id, title, start_at, end_at) VALUES (?, ?, ?, ?, ?)`),
		ev.ID, ev.OwnerID, ev.Title, ev.Start, ev.End)
	if err != nil {
		return "", fmt.Errorf("insert event: %w", err)
	}
	return ev.ID, nil
}

func (s *sqlStore) UpdateEvent(ctx context.Context, ev models.Event) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE events SET title = ?, start_at = ?, end_at = ? WHERE id = ?`),
		ev.Title, ev.Start, ev.End, ev.ID)
	if err != nil {
		return fmt.Errorf("update event %s: %w", ev.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrEventNotFound
	}
	return nil
}

func (s *sqlStore) ListOwnerEvents(ctx context.Context, ownerID, from, to string) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, title, start_at, end_at FROM events
		 WHERE owner_id = ? AND start_at >= ? AND start_at <= ? ORDER BY start_at`), ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query owner events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var title, endAt sql.NullString
		if err := rows.Scan(&ev.ID, &title, &ev.Start, &endAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ev.OwnerID = ownerID
		ev.Title = title.String
		ev.End = endAt.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
