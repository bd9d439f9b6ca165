// Package analytics triggers onboarding analytics events. Delivery is left to
// the configured Publisher.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Event names an analytics event.
type Event string

const (
	LandDirect             Event = "LAND_DIRECT"
	LandSSO                Event = "LAND_SSO"
	ClickRegistrationModal Event = "CLICK_REGISTRATION_MODAL"
	OpenLoginModal         Event = "OPEN_LOGIN_MODAL"
)

// Envelope is a triggered event.
type Envelope struct {
	ID         string    `json:"id"`
	Event      Event     `json:"event"`
	SessionID  string    `json:"session_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEnvelope stamps an event with a fresh id.
func NewEnvelope(event Event, sessionID string, at time.Time) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Event:      event,
		SessionID:  sessionID,
		OccurredAt: at.UTC(),
	}
}

// Publisher hands a triggered event to its transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, env Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) error { return nil }

// Poster is the slice of the remote gateway used for analytics.
type Poster interface {
	PostAnalytics(ctx context.Context, event string) error
}

// GatewayPublisher posts the event name to the remote gateway.
type GatewayPublisher struct {
	Gateway Poster
}

func (p GatewayPublisher) Publish(ctx context.Context, env Envelope) error {
	return p.Gateway.PostAnalytics(ctx, string(env.Event))
}

// NATSPublisher publishes JSON envelopes on a NATS subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher returns a publisher over an established connection.
func NewNATSPublisher(conn *nats.Conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

func (p *NATSPublisher) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("analytics: marshal %s: %w", env.Event, err)
	}
	msg := nats.NewMsg(p.subject + "." + string(env.Event))
	msg.Data = payload
	msg.Header.Set(nats.MsgIdHdr, env.ID)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("analytics: publish %s: %w", env.Event, err)
	}
	return nil
}
