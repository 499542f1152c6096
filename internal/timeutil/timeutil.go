// Package timeutil provides timestamp parsing and timezone conversion helpers.
//
// Appointment times cross three representations: ISO-8601 UTC instants in the
// datastore, naive local timestamps emitted by the assistant, and the
// "DD-MM-YYYY, HH:MM" strings consumed by the availability prompt. The helpers
// here are pure functions shared by the availability engine and the dispatcher.
package timeutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/hannahlabs/leadflow/internal/models"
)

// BusinessZone is the local zone all companies currently operate in.
const BusinessZone = "America/Chicago"

// SlotTimeFormat is the layout of availability slot boundaries handed to the
// assistant. It intentionally differs from the ISO input format; downstream
// consumers depend on it.
const SlotTimeFormat = "02-01-2006, 15:04"

// ReadableFormat is the human-facing layout used in confirmation texts.
const ReadableFormat = "January 02, 2006 03:04 PM"

// eventTimeLayouts are the accepted layouts for stored event timestamps, tried
// in order: ISO-8601 with fractional seconds, plain ISO-8601, and the legacy
// "MM/DD/YYYY, HH:MM" form still present in older calendars.
var eventTimeLayouts = []string{
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006, 15:04",
}

var (
	businessLoc     *time.Location
	businessLocErr  error
	businessLocOnce sync.Once
)

func businessLocation() (*time.Location, error) {
	businessLocOnce.Do(func() {
		businessLoc, businessLocErr = time.LoadLocation(BusinessZone)
	})
	return businessLoc, businessLocErr
}

// ParseEventTime parses a stored event timestamp, tolerating the layouts in
// eventTimeLayouts. It returns models.ErrMalformedTimestamp if none match.
func ParseEventTime(value string) (time.Time, error) {
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", models.ErrMalformedTimestamp, value)
}

// LocalToUTC interprets a naive ISO-8601 timestamp as business-zone local time
// and returns the equivalent UTC instant in RFC 3339 form.
func LocalToUTC(value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%w: empty timestamp", models.ErrMalformedTimestamp)
	}
	loc, err := businessLocation()
	if err != nil {
		return "", fmt.Errorf("load business zone: %w", err)
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc)
	if err != nil {
		// Already-zoned input converts directly.
		t, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return "", fmt.Errorf("%w: %q", models.ErrMalformedTimestamp, value)
		}
	}
	return t.UTC().Format(time.RFC3339), nil
}

// AddMinutes adds a duration in minutes to an ISO-8601 timestamp, preserving
// the UTC instant form.
func AddMinutes(value string, minutes int) (string, error) {
	t, err := ParseEventTime(value)
	if err != nil {
		return "", err
	}
	return t.Add(time.Duration(minutes) * time.Minute).Format(time.RFC3339), nil
}

// FormatReadable renders an ISO-8601 timestamp as a business-zone local string
// for confirmation texts, e.g. "June 01, 2024 09:00 AM CST".
func FormatReadable(value string) (string, error) {
	t, err := ParseEventTime(value)
	if err != nil {
		return "", err
	}
	loc, err := businessLocation()
	if err != nil {
		return "", fmt.Errorf("load business zone: %w", err)
	}
	local := t.In(loc)
	return local.Format(ReadableFormat) + " " + local.Format("MST"), nil
}
