package harness

import (
	"encoding/json"
	"time"

	"github.com/fleetops/driver-contract-tests/logging"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// CorrelationKey is the projection of an action's outcome used to match
// later-observed events back to that action. Keys are unique within a
// test unit's time window (they are UUIDs in practice).
type CorrelationKey string

func (k CorrelationKey) String() string { return string(k) }

// MatchField builds a predicate selecting events whose named top-level
// payload field equals the correlation key.
func MatchField(field string, key CorrelationKey) EventPredicate {
	return func(e ObservedEvent) bool {
		s, ok := e.Payload[field].(string)
		return ok && s == string(key)
	}
}

// MatchEventType builds a predicate selecting events by their event_type
// discriminator.
func MatchEventType(eventType string) EventPredicate {
	return func(e ObservedEvent) bool {
		return e.EventType() == eventType
	}
}

// MatchAll combines predicates conjunctively.
func MatchAll(preds ...EventPredicate) EventPredicate {
	return func(e ObservedEvent) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}
}

// BusPublisher is the subset of the bus client used by the bus trigger.
type BusPublisher interface {
	Publish(subject string, data []byte) error
	Flush() error
}

// BusTrigger publishes events the service under test consumes. Each call
// performs exactly one publish and returns the correlation key embedded in
// the payload; it never retries.
type BusTrigger struct {
	bus    BusPublisher
	logger logging.Logger
}

func NewBusTrigger(bus BusPublisher, logger logging.Logger) *BusTrigger {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &BusTrigger{bus: bus, logger: logger}
}

// Publish sends one event on the given subject. The payload is stamped
// with the event_type discriminator and a timestamp; if it has no order_id
// one is generated. The returned key is the payload's order_id, which the
// service echoes into any effects it produces.
func (t *BusTrigger) Publish(subject, eventType string, payload map[string]interface{}) (CorrelationKey, error) {
	stamped := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		stamped[k] = v
	}
	stamped["event_type"] = eventType
	if _, ok := stamped["timestamp"]; !ok {
		stamped["timestamp"] = float64(time.Now().Unix())
	}
	key, _ := stamped["order_id"].(string)
	if key == "" {
		key = uuid.NewString()
		stamped["order_id"] = key
	}

	data, err := json.Marshal(stamped)
	if err != nil {
		return "", err
	}
	t.logger.Printf("publishing %s on %q", eventType, subject)
	if err := t.bus.Publish(subject, data); err != nil {
		return "", err
	}
	if err := t.bus.Flush(); err != nil {
		return "", err
	}
	return CorrelationKey(key), nil
}

// PublishRaw sends the bytes on the subject exactly as given, with no
// stamping and no JSON validation. Used to feed the service input it must
// reject gracefully.
func (t *BusTrigger) PublishRaw(subject string, data []byte) error {
	t.logger.Printf("publishing %d raw bytes on %q", len(data), subject)
	if err := t.bus.Publish(subject, data); err != nil {
		return err
	}
	return t.bus.Flush()
}

var _ BusPublisher = (*nats.Conn)(nil)
