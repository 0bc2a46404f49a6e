package dispatch

import (
	"context"
	"errors"
	"time"
)

// Outcome classifies how a command ended.
type Outcome string

// Command outcomes.
const (
	OutcomeOK        Outcome = "ok"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeMalformed Outcome = "malformed"
)

// Event describes one accepted (non-duplicate, correctly addressed)
// message and the acknowledgement produced for it.
type Event struct {
	Ref        string
	Type       string
	Source     string
	Name       string
	Address    string
	State      string
	Outcome    Outcome
	AckType    string
	AckPayload string
	Duration   time.Duration
	Time       time.Time
}

// Observer receives an Event after each accepted message.
//
// Observers run on the dispatch path; slow ones delay the next message.
// Returned errors are logged and otherwise ignored.
type Observer interface {
	Observe(ctx context.Context, ev Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event) error

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// multiObserver fans out to several observers and joins their errors.
type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, ev Event) error {
	var errs []error
	for _, o := range m {
		if err := o.Observe(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
