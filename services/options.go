package services

import (
	"context"
	"time"

	"github.com/Poneaswaran/College-Management-System-Backend/models"
)

// EventRecorder receives auth audit events. Implementations must not block.
type EventRecorder interface {
	Record(ctx context.Context, event *models.AuthEvent)
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, *models.AuthEvent) {}

// RequestMeta describes the client a lifecycle call came from
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// Option configures a service
type Option func(*options)

type options struct {
	now    func() time.Time
	events EventRecorder
}

// WithClock replaces the wall clock. Pass the same clock as the token codec.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithEventRecorder sends audit events to recorder
func WithEventRecorder(recorder EventRecorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.events = recorder
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, events: noopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) event(action models.AuthAction, meta RequestMeta) *models.AuthEvent {
	e := models.NewAuthEvent(action).WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
	e.Timestamp = o.now().UTC()
	return e
}
