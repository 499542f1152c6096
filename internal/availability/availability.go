// Package availability computes bookable appointment slots for a company's
// staff from existing calendar events.
//
// The engine itself is pure: given events and a slot count it scans the next
// seven days of business hours and returns the first open half-hour windows.
// Service wraps it with the store fetch and a process-wide cache that callers
// can bypass with a forced refresh.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hannahlabs/leadflow/internal/models"
	"github.com/hannahlabs/leadflow/internal/store"
	"github.com/hannahlabs/leadflow/internal/timeutil"
)

const (
	// DefaultSlotCount is how many open slots a scan returns unless asked otherwise.
	DefaultSlotCount = 5
	// BusinessHourStart and BusinessHourEnd bound the scan within each day (local time).
	BusinessHourStart = 9
	BusinessHourEnd   = 18
	// SlotDuration is the booking granularity.
	SlotDuration = 30 * time.Minute
	// ScanWindowDays is how far ahead the scan looks.
	ScanWindowDays = 7
)

// Slot is a candidate appointment window. Boundaries are formatted local-time
// strings (see timeutil.SlotTimeFormat), deliberately not the ISO form the
// events were stored in.
type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type interval struct {
	start time.Time
	end   time.Time
}

// FindSlots scans the next seven days for open half-hour slots during business
// hours, skipping weekends and slots already in the past. A slot is open when
// at least one owner has no event touching it. Returns at most count slots
// (DefaultSlotCount when count <= 0); fewer is not an error.
func FindSlots(events []models.Event, count int) ([]Slot, error) {
	return findSlotsAt(events, count, time.Now())
}

func findSlotsAt(events []models.Event, count int, now time.Time) ([]Slot, error) {
	if count <= 0 {
		count = DefaultSlotCount
	}

	byOwner := make(map[string][]interval)
	for _, ev := range events {
		if ev.OwnerID == "" {
			continue
		}
		start, err := timeutil.ParseEventTime(ev.Start)
		if err != nil {
			return nil, err
		}
		end, err := timeutil.ParseEventTime(ev.End)
		if err != nil {
			return nil, err
		}
		byOwner[ev.OwnerID] = append(byOwner[ev.OwnerID], interval{start: start, end: end})
	}
	for owner := range byOwner {
		ivs := byOwner[owner]
		sort.Slice(ivs, func(i, j int) bool { return ivs[i].start.Before(ivs[j].start) })
	}

	var slots []Slot
	lastDay := now.AddDate(0, 0, ScanWindowDays)
	for day := now; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for hour := BusinessHourStart; hour < BusinessHourEnd; hour++ {
			for _, minute := range []int{0, 30} {
				slotStart := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
				if slotStart.Before(now) {
					continue
				}
				slotEnd := slotStart.Add(SlotDuration)
				if !slotOpen(byOwner, slotStart, slotEnd) {
					continue
				}
				slots = append(slots, Slot{
					Start: slotStart.Format(timeutil.SlotTimeFormat),
					End:   slotEnd.Format(timeutil.SlotTimeFormat),
				})
				if len(slots) >= count {
					return slots, nil
				}
			}
		}
	}
	return slots, nil
}

// slotOpen reports whether at least one owner is free for [slotStart, slotEnd).
// An owner is blocked when the slot starts inside an event, ends inside one
// (boundaries inclusive on both ends), or fully contains one.
func slotOpen(byOwner map[string][]interval, slotStart, slotEnd time.Time) bool {
	if len(byOwner) == 0 {
		return true
	}
	for _, ivs := range byOwner {
		blocked := false
		for _, ev := range ivs {
			startsInside := !slotStart.Before(ev.start) && slotStart.Before(ev.end)
			endsInside := slotEnd.After(ev.start) && !slotEnd.After(ev.end)
			contains := !slotStart.After(ev.start) && !slotEnd.Before(ev.end)
			if startsInside || endsInside || contains {
				blocked = true
				break
			}
		}
		if !blocked {
			return true
		}
	}
	return false
}

// Service resolves a company's owner, fetches the owner's events and runs the
// slot scan. The last computed result is cached process-wide with no TTL;
// callers that need fresh data must pass forceRefresh.
type Service struct {
	store store.Store

	mu     sync.Mutex
	cached []Slot
}

// NewService creates an availability service over the given store.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// CompanyAvailability returns open slots for the company reachable at the
// given intake number. A store failure surfaces as models.ErrAvailabilityFetch
// so callers can tell "no events" from "could not fetch events".
func (s *Service) CompanyAvailability(ctx context.Context, companyPhone string, forceRefresh bool) ([]Slot, error) {
	s.mu.Lock()
	if s.cached != nil && !forceRefresh {
		cached := s.cached
		s.mu.Unlock()
		slog.Debug("availability.CompanyAvailability: serving cached result", "slots", len(cached))
		return cached, nil
	}
	s.mu.Unlock()

	company, err := s.store.GetCompanyByAnyNumber(ctx, companyPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAvailabilityFetch, err)
	}
	if company == nil {
		return nil, fmt.Errorf("%w: no company for %s", models.ErrCompanyNotFound, companyPhone)
	}

	loc, err := time.LoadLocation(timeutil.BusinessZone)
	if err != nil {
		return nil, fmt.Errorf("load business zone: %w", err)
	}
	now := time.Now().In(loc)
	from := now.UTC().Format(time.RFC3339)
	to := now.AddDate(0, 0, ScanWindowDays).UTC().Format(time.RFC3339)

	events, err := s.store.ListOwnerEvents(ctx, company.OwnerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAvailabilityFetch, err)
	}

	slots, err := findSlotsAt(events, DefaultSlotCount, now)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = slots
	s.mu.Unlock()
	slog.Debug("availability.CompanyAvailability: computed slots", "company_id", company.ID, "slots", len(slots))
	return slots, nil
}
