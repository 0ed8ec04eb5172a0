// Package orders carries a confirmed transcript to the kitchen: a
// SQLite audit trail, a NATS publish, or both.
package orders

import (
	"context"
	"errors"
	"time"
)

// Context is where the order was taken.
type Context struct {
	Table    string
	Seat     string
	Resident string
}

// Draft is one confirmed order ready for submission.
type Draft struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Alerts    []string  `json:"alerts"`
	Table     string    `json:"table,omitempty"`
	Seat      string    `json:"seat,omitempty"`
	Resident  string    `json:"resident,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Submitter interface {
	Submit(ctx context.Context, draft Draft) error
}

// Fanout submits to every sink and joins the failures. A partial
// failure still leaves the successful sinks written.
type Fanout []Submitter

func (f Fanout) Submit(ctx context.Context, draft Draft) error {
	var errs []error
	for _, s := range f {
		if err := s.Submit(ctx, draft); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
