package job

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// timestampLayouts are tried in order when parsing wire timestamps.
// Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// ParseTimestamp parses a wire timestamp into UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// Normalize builds a Resource from one raw JSON frame.
func Normalize(raw []byte) (Resource, error) {
	if err := ValidateShape(raw); err != nil {
		return Resource{}, &ConstructionError{Err: err}
	}

	var w WireJob
	if err := json.Unmarshal(raw, &w); err != nil {
		return Resource{}, &ConstructionError{Err: err}
	}

	return FromWire(w)
}

// FromWire builds a Resource from a decoded frame. It has no side effects.
func FromWire(w WireJob) (Resource, error) {
	required := []struct {
		field string
		value string
	}{
		{"id", w.ID},
		{"position", w.Position},
		{"company", w.Company},
		{"url", w.URL},
		{"created_at", w.CreatedAt},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return Resource{}, &ConstructionError{Field: r.field, Err: ErrMissingField}
		}
	}

	if len(w.Statuses) == 0 {
		return Resource{}, &ConstructionError{Field: "statuses", Err: ErrEmptyStatusHistory}
	}

	createdAt, err := ParseTimestamp(w.CreatedAt)
	if err != nil {
		return Resource{}, &ConstructionError{Field: "created_at", Err: err}
	}

	res := Resource{
		ID:        w.ID,
		Position:  w.Position,
		Company:   w.Company,
		URL:       w.URL,
		Notes:     w.Notes,
		CreatedAt: createdAt,
	}

	if w.UpdatedAt != "" {
		updatedAt, err := ParseTimestamp(w.UpdatedAt)
		if err != nil {
			return Resource{}, &ConstructionError{Field: "updated_at", Err: err}
		}
		res.UpdatedAt = &updatedAt
	}

	if w.ImageFilename != "" || w.ImageURL != "" {
		res.Image = &Image{Filename: w.ImageFilename, URL: w.ImageURL}
	}

	history := make([]StatusEntry, 0, len(w.Statuses))
	for i, s := range w.Statuses {
		if strings.TrimSpace(s.Status) == "" {
			return Resource{}, &ConstructionError{Field: fmt.Sprintf("statuses[%d].status", i), Err: ErrMissingField}
		}
		ts, err := ParseTimestamp(s.CreatedAt)
		if err != nil {
			return Resource{}, &ConstructionError{Field: fmt.Sprintf("statuses[%d].created_at", i), Err: err}
		}
		history = append(history, StatusEntry{Status: s.Status, CreatedAt: ts})
	}

	res.CurrentStatus = CurrentStatus(history).Status

	// Stable sort keeps source order among equal timestamps, so the last
	// element is the same entry CurrentStatus picked.
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})
	res.StatusHistory = history

	return res, nil
}

// CurrentStatus returns the entry with the latest timestamp. On ties the
// entry appearing later in entries wins. entries must not be empty.
func CurrentStatus(entries []StatusEntry) StatusEntry {
	best := entries[0]
	for _, e := range entries[1:] {
		if !e.CreatedAt.Before(best.CreatedAt) {
			best = e
		}
	}
	return best
}
