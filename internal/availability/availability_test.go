package availability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hannahlabs/leadflow/internal/models"
	"github.com/hannahlabs/leadflow/internal/store"
)

// Monday, 3 June 2024, 08:00.
var monday8am = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func TestFindSlots_EmptyCalendar(t *testing.T) {
	slots, err := findSlotsAt(nil, 0, monday8am)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != DefaultSlotCount {
		t.Fatalf("expected %d slots, got %d", DefaultSlotCount, len(slots))
	}
	if slots[0].Start != "03-06-2024, 09:00" || slots[0].End != "03-06-2024, 09:30" {
		t.Errorf("unexpected first slot: %+v", slots[0])
	}
	if slots[4].Start != "03-06-2024, 11:00" {
		t.Errorf("slots not in chronological half-hour order: %+v", slots)
	}
}

func TestFindSlots_SkipsPastSlots(t *testing.T) {
	now := time.Date(2024, 6, 3, 10, 15, 0, 0, time.UTC)
	slots, err := findSlotsAt(nil, 1, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slots[0].Start != "03-06-2024, 10:30" {
		t.Errorf("expected first future slot 10:30, got %+v", slots[0])
	}
}

func TestFindSlots_SkipsWeekends(t *testing.T) {
	saturday := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	slots, err := findSlotsAt(nil, 1, saturday)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slots[0].Start != "03-06-2024, 09:00" {
		t.Errorf("expected Monday morning slot, got %+v", slots[0])
	}
}

func TestFindSlots_InclusiveBoundaryBlocking(t *testing.T) {
	events := []models.Event{{
		OwnerID: "owner-1",
		Start:   "2024-06-03T09:30:00.000Z",
		End:     "2024-06-03T10:00:00.000Z",
	}}
	slots, err := findSlotsAt(events, 3, monday8am)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 09:00 touches the event start only at its end boundary: open.
	// 09:30 starts inside the event: blocked. 10:00 is open again.
	want := []string{"03-06-2024, 09:00", "03-06-2024, 10:00", "03-06-2024, 10:30"}
	for i, w := range want {
		if slots[i].Start != w {
			t.Errorf("slot %d = %q, want %q (all: %+v)", i, slots[i].Start, w, slots)
		}
	}
}

func TestFindSlots_SlotEndingAtEventEndBlocked(t *testing.T) {
	events := []models.Event{{
		OwnerID: "owner-1",
		Start:   "2024-06-03T09:00:00.000Z",
		End:     "2024-06-03T10:00:00.000Z",
	}}
	slots, err := findSlotsAt(events, 1, monday8am)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Both 09:00 and 09:30 fall within the event (end boundary inclusive).
	if slots[0].Start != "03-06-2024, 10:00" {
		t.Errorf("expected 10:00, got %+v", slots[0])
	}
}

func TestFindSlots_AnyFreeOwnerOpensSlot(t *testing.T) {
	events := []models.Event{
		{OwnerID: "owner-1", Start: "2024-06-03T09:00:00.000Z", End: "2024-06-03T18:00:00.000Z"},
		{OwnerID: "owner-2", Start: "2024-06-03T12:00:00.000Z", End: "2024-06-03T13:00:00.000Z"},
	}
	slots, err := findSlotsAt(events, 1, monday8am)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// owner-2 is free at 09:00 even though owner-1 is booked all day.
	if slots[0].Start != "03-06-2024, 09:00" {
		t.Errorf("expected 09:00 via the free owner, got %+v", slots[0])
	}
}

func TestFindSlots_ExhaustsWindowWithoutError(t *testing.T) {
	// One owner booked solid for every business day in the window.
	var events []models.Event
	for d := 0; d <= ScanWindowDays; d++ {
		day := monday8am.AddDate(0, 0, d)
		events = append(events, models.Event{
			OwnerID: "owner-1",
			Start:   fmt.Sprintf("%sT09:00:00.000Z", day.Format("2006-01-02")),
			End:     fmt.Sprintf("%sT18:00:00.000Z", day.Format("2006-01-02")),
		})
	}
	slots, err := findSlotsAt(events, 200, monday8am)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no open slots, got %d: %+v", len(slots), slots)
	}
}

func TestFindSlots_NoSlotOutsideBusinessRules(t *testing.T) {
	slots, err := findSlotsAt(nil, 200, monday8am)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range slots {
		start, err := time.Parse("02-01-2006, 15:04", s.Start)
		if err != nil {
			t.Fatalf("slot start not in expected format: %q", s.Start)
		}
		if wd := start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("slot on a weekend: %+v", s)
		}
		if start.Hour() < BusinessHourStart || start.Hour() >= BusinessHourEnd {
			t.Errorf("slot outside business hours: %+v", s)
		}
		if start.Before(monday8am) {
			t.Errorf("slot in the past: %+v", s)
		}
	}
}

func TestFindSlots_LocaleFallbackFormat(t *testing.T) {
	events := []models.Event{{
		OwnerID: "owner-1",
		Start:   "06/03/2024, 09:00",
		End:     "06/03/2024, 10:00",
	}}
	slots, err := findSlotsAt(events, 1, monday8am)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if slots[0].Start != "03-06-2024, 10:00" {
		t.Errorf("expected fallback-format event to block the morning, got %+v", slots[0])
	}
}

func TestFindSlots_MalformedTimestamp(t *testing.T) {
	events := []models.Event{{OwnerID: "owner-1", Start: "garbage", End: "more garbage"}}
	_, err := findSlotsAt(events, 1, monday8am)
	if !errors.Is(err, models.ErrMalformedTimestamp) {
		t.Errorf("expected ErrMalformedTimestamp, got %v", err)
	}
}

// failingEventsStore wraps a Store, failing event listing on demand.
type failingEventsStore struct {
	store.Store
	fail bool
}

func (f *failingEventsStore) ListOwnerEvents(ctx context.Context, ownerID, from, to string) ([]models.Event, error) {
	if f.fail {
		return nil, errors.New("datastore unavailable")
	}
	return f.Store.ListOwnerEvents(ctx, ownerID, from, to)
}

func TestService_CompanyNotFound(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	_, err := svc.CompanyAvailability(context.Background(), "+10000000000", true)
	if !errors.Is(err, models.ErrCompanyNotFound) {
		t.Errorf("expected ErrCompanyNotFound, got %v", err)
	}
}

func TestService_FetchErrorIsTyped(t *testing.T) {
	mem := store.NewInMemoryStore()
	ctx := context.Background()
	ownerID, _ := mem.UpsertOwner(ctx, models.Owner{PhoneNumber: "+19036467318"})
	mem.UpsertCompany(ctx, models.Company{OwnerID: ownerID, TextNumber: "+18177655422"})

	svc := NewService(&failingEventsStore{Store: mem, fail: true})
	_, err := svc.CompanyAvailability(ctx, "+18177655422", true)
	if !errors.Is(err, models.ErrAvailabilityFetch) {
		t.Errorf("expected ErrAvailabilityFetch, got %v", err)
	}
}

func TestService_CacheAndForceRefresh(t *testing.T) {
	mem := store.NewInMemoryStore()
	ctx := context.Background()
	ownerID, _ := mem.UpsertOwner(ctx, models.Owner{PhoneNumber: "+19036467318"})
	mem.UpsertCompany(ctx, models.Company{OwnerID: ownerID, TextNumber: "+18177655422"})

	failing := &failingEventsStore{Store: mem}
	svc := NewService(failing)

	first, err := svc.CompanyAvailability(ctx, "+18177655422", false)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected open slots on an empty calendar")
	}

	// Store now fails; the cached result must still be served.
	failing.fail = true
	cached, err := svc.CompanyAvailability(ctx, "+18177655422", false)
	if err != nil {
		t.Fatalf("cached call failed: %v", err)
	}
	if len(cached) != len(first) {
		t.Errorf("cached result differs: %d vs %d slots", len(cached), len(first))
	}

	// Forced refresh bypasses the cache and hits the failing store.
	if _, err := svc.CompanyAvailability(ctx, "+18177655422", true); !errors.Is(err, models.ErrAvailabilityFetch) {
		t.Errorf("expected ErrAvailabilityFetch on forced refresh, got %v", err)
	}
}
