package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/maintstack/maint-opt/internal/models"
)

// AdjustmentApplied is emitted after a recommendation's interval changes are
// committed, so downstream planning systems can react.
type AdjustmentApplied struct {
	AnalysisID  int64                       `json:"analysis_id"`
	ComponentID int64                       `json:"component_id"`
	Automated   bool                        `json:"automated"`
	Adjustments []models.IntervalAdjustment `json:"adjustments"`
	AppliedAt   time.Time                   `json:"applied_at"`
}

// Publisher emits adjustment events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	PublishAdjustment(event AdjustmentApplied) error
	Close()
}

// NATSPublisher publishes adjustment events on a single subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("maint-opt"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return &NATSPublisher{conn: conn, subject: subject}, nil
}

func (p *NATSPublisher) PublishAdjustment(event AdjustmentApplied) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode adjustment event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish adjustment event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
	}
}

// Noop satisfies Publisher when eventing is disabled.
type Noop struct{}

func (Noop) PublishAdjustment(AdjustmentApplied) error { return nil }
func (Noop) Close()                                    {}
