package job

import (
	"time"
)

// WireStatus is one status entry as sent by the API.
type WireStatus struct {
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// WireJob is the JSON shape of a job frame.
type WireJob struct {
	ID            string       `json:"id"`
	Position      string       `json:"position"`
	Company       string       `json:"company"`
	URL           string       `json:"url"`
	ImageFilename string       `json:"image_filename,omitempty"`
	ImageURL      string       `json:"image_url,omitempty"`
	CreatedAt     string       `json:"created_at"`
	UpdatedAt     string       `json:"updated_at,omitempty"`
	Statuses      []WireStatus `json:"statuses"`
	Notes         string       `json:"notes,omitempty"`
}

// JobsEnvelope is the body of a job listing response.
type JobsEnvelope struct {
	Jobs       []WireJob `json:"jobs"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// ToWire converts a Resource back to its wire shape. Timestamps are
// written as RFC3339 with nanoseconds in UTC.
func ToWire(r Resource) WireJob {
	w := WireJob{
		ID:        r.ID,
		Position:  r.Position,
		Company:   r.Company,
		URL:       r.URL,
		Notes:     r.Notes,
		CreatedAt: FormatTimestamp(r.CreatedAt),
		Statuses:  make([]WireStatus, 0, len(r.StatusHistory)),
	}
	if r.Image != nil {
		w.ImageFilename = r.Image.Filename
		w.ImageURL = r.Image.URL
	}
	if r.UpdatedAt != nil {
		w.UpdatedAt = FormatTimestamp(*r.UpdatedAt)
	}
	for _, s := range r.StatusHistory {
		w.Statuses = append(w.Statuses, WireStatus{
			Status:    s.Status,
			CreatedAt: FormatTimestamp(s.CreatedAt),
		})
	}
	return w
}

// FormatTimestamp renders t the way the API writes timestamps.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
