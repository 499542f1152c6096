package store

import (
	"context"
	"testing"

	"github.com/hannahlabs/leadflow/internal/models"
)

func TestLeadCreateAndLookup(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	id, err := s.CreateLead(ctx, models.Lead{PhoneNumber: "+15551234567", Pathway: models.PathwaySMS})
	if err != nil {
		t.Fatalf("CreateLead failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty lead id")
	}

	lead, err := s.GetLeadByPhone(ctx, "+15551234567")
	if err != nil {
		t.Fatalf("GetLeadByPhone failed: %v", err)
	}
	if lead == nil {
		t.Fatal("expected lead, got nil")
	}
	if lead.ID != id || lead.Pathway != models.PathwaySMS {
		t.Errorf("unexpected lead: %+v", lead)
	}
	if lead.DateCreated == "" {
		t.Error("expected server-assigned dateCreated")
	}

	missing, err := s.GetLeadByPhone(ctx, "+19998887777")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown phone, got %+v", missing)
	}
}

func TestPatchLead(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	id, _ := s.CreateLead(ctx, models.Lead{PhoneNumber: "+15551234567"})
	if err := s.PatchLead(ctx, id, map[string]any{"firstName": "Ada", "budget": "1500"}); err != nil {
		t.Fatalf("PatchLead failed: %v", err)
	}

	lead, _ := s.GetLeadByPhone(ctx, "+15551234567")
	if lead.FirstName != "Ada" || lead.Budget != "1500" {
		t.Errorf("patch not applied: %+v", lead)
	}
	if lead.PhoneNumber != "+15551234567" {
		t.Errorf("patch clobbered phone number: %q", lead.PhoneNumber)
	}

	if err := s.PatchLead(ctx, "no-such-id", map[string]any{"firstName": "X"}); err == nil {
		t.Error("expected error patching unknown lead")
	}
}

func TestCompanyLookupByAnyNumber(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	companyID, err := s.UpsertCompany(ctx, models.Company{
		OwnerID:    "owner-1",
		TextNumber: "+18177655422",
		WebNumber:  "+18177655433",
		FAQNumber:  "+18177655444",
	})
	if err != nil {
		t.Fatalf("UpsertCompany failed: %v", err)
	}

	for _, phone := range []string{"+18177655422", "+18177655433", "+18177655444"} {
		c, err := s.GetCompanyByAnyNumber(ctx, phone)
		if err != nil {
			t.Fatalf("GetCompanyByAnyNumber(%s) failed: %v", phone, err)
		}
		if c == nil || c.ID != companyID {
			t.Errorf("GetCompanyByAnyNumber(%s) = %+v, want company %s", phone, c, companyID)
		}
	}

	c, _ := s.GetCompanyByTextNumber(ctx, "+18177655433")
	if c != nil {
		t.Error("text-number lookup must not match the web number")
	}
}

func TestArrayUnionIdempotent(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	ownerID, _ := s.UpsertOwner(ctx, models.Owner{PhoneNumber: "+19036467318"})
	companyID, _ := s.UpsertCompany(ctx, models.Company{OwnerID: ownerID, TextNumber: "+18177655422"})

	for i := 0; i < 3; i++ {
		if err := s.AddLeadToCompany(ctx, companyID, "lead-1"); err != nil {
			t.Fatalf("AddLeadToCompany failed: %v", err)
		}
		if err := s.AddLeadToOwner(ctx, ownerID, "lead-1"); err != nil {
			t.Fatalf("AddLeadToOwner failed: %v", err)
		}
	}

	company, _ := s.GetCompanyByTextNumber(ctx, "+18177655422")
	if len(company.Leads) != 1 {
		t.Errorf("expected 1 lead id on company after repeated unions, got %v", company.Leads)
	}
	owner, _ := s.GetOwnerByID(ctx, ownerID)
	if len(owner.Leads) != 1 {
		t.Errorf("expected 1 lead id on owner after repeated unions, got %v", owner.Leads)
	}
}

func TestConversationOrderingAndPurge(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	// Appended out of order; listing must sort by timestamp.
	msgs := []models.ConversationMessage{
		{Content: "second", Direction: models.DirectionOutbound, Timestamp: "2024-06-01T10:00:01Z"},
		{Content: "first", Direction: models.DirectionInbound, Timestamp: "2024-06-01T10:00:00Z"},
	}
	for _, m := range msgs {
		if err := s.AppendOwnerMessage(ctx, "owner-1", m); err != nil {
			t.Fatalf("AppendOwnerMessage failed: %v", err)
		}
	}

	got, err := s.ListOwnerConversation(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListOwnerConversation failed: %v", err)
	}
	if len(got) != 2 || got[0].Content != "first" || got[1].Content != "second" {
		t.Errorf("conversation not ordered by timestamp: %+v", got)
	}

	if err := s.PurgeOwnerConversation(ctx, "owner-1"); err != nil {
		t.Fatalf("PurgeOwnerConversation failed: %v", err)
	}
	got, _ = s.ListOwnerConversation(ctx, "owner-1")
	if len(got) != 0 {
		t.Errorf("expected empty conversation after purge, got %+v", got)
	}
}

func TestEventUpsertByOwnerAndStart(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	id, err := s.CreateEvent(ctx, models.Event{
		OwnerID: "owner-1", Title: "Tour", Start: "2024-06-01T14:00:00Z", End: "2024-06-01T15:00:00Z",
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	existing, err := s.GetEventByOwnerAndStart(ctx, "owner-1", "2024-06-01T14:00:00Z")
	if err != nil {
		t.Fatalf("GetEventByOwnerAndStart failed: %v", err)
	}
	if existing == nil || existing.ID != id {
		t.Fatalf("expected event %s, got %+v", id, existing)
	}

	existing.Title = "Tour (rescheduled)"
	if err := s.UpdateEvent(ctx, *existing); err != nil {
		t.Fatalf("UpdateEvent failed: %v", err)
	}

	events, _ := s.ListOwnerEvents(ctx, "owner-1", "2024-06-01T00:00:00Z", "2024-06-02T00:00:00Z")
	if len(events) != 1 {
		t.Fatalf("expected exactly one event after update, got %d", len(events))
	}
	if events[0].Title != "Tour (rescheduled)" {
		t.Errorf("update not applied: %+v", events[0])
	}
}

func TestListOwnerEventsWindow(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	starts := []string{"2024-06-01T14:00:00Z", "2024-06-03T14:00:00Z", "2024-06-20T14:00:00Z"}
	for _, st := range starts {
		if _, err := s.CreateEvent(ctx, models.Event{OwnerID: "owner-1", Start: st, End: st}); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	events, err := s.ListOwnerEvents(ctx, "owner-1", "2024-06-01T00:00:00Z", "2024-06-08T00:00:00Z")
	if err != nil {
		t.Fatalf("ListOwnerEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(events))
	}
	if events[0].Start > events[1].Start {
		t.Error("events not sorted by start")
	}
}
