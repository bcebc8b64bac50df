// Package events is the NATS event bus client. Completed calls and flagged
// emergencies are announced here for downstream consumers (dashboards,
// escalation workers); call originations can also arrive over the bus.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// SubjectCallCompleted carries the structured summary of a finished call.
	SubjectCallCompleted = "dispatch.call.completed"
	// SubjectEscalation carries an EscalationSignal for a flagged emergency.
	SubjectEscalation = "dispatch.call.escalated"
	// SubjectCallRequest lets other services originate a driver check-in call.
	SubjectCallRequest = "dispatch.call.request"
)

// EscalationSignal is emitted the moment a completed call carries the
// emergency flag, so a human dispatcher can call the driver back.
type EscalationSignal struct {
	CallID            string `json:"call_id"`
	DriverName        string `json:"driver_name"`
	LoadNumber        string `json:"load_number"`
	EmergencyType     string `json:"emergency_type"`
	EmergencyLocation string `json:"emergency_location"`
}

// CallRequest is the bus payload for originating a call.
type CallRequest struct {
	DriverName  string `json:"driver_name"`
	PhoneNumber string `json:"phone_number"`
	LoadNumber  string `json:"load_number"`
}

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

func (c *Client) Publish(subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.conn.Publish(subject, payload)
}

func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed", "subject", subject)
	return nil
}

func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	c.conn.Close()
}
