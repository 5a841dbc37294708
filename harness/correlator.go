package harness

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetops/driver-contract-tests/logging"

	"github.com/nats-io/nats.go"
)

const subscriptionBufferSize = 256

// ObservedEvent is one decoded bus message captured by a subscription.
// Events are appended in arrival order; arrival order is the bus delivery
// order for a single subject but carries no guarantee across subjects or
// publishers.
type ObservedEvent struct {
	Subject    string
	Payload    map[string]interface{}
	ReceivedAt time.Time
}

// EventType returns the payload's event_type discriminator, or "" if absent.
func (e ObservedEvent) EventType() string {
	s, _ := e.Payload["event_type"].(string)
	return s
}

// Field returns a top-level payload field by name.
func (e ObservedEvent) Field(name string) interface{} {
	return e.Payload[name]
}

// EventPredicate selects the observed events a collection call is
// interested in.
type EventPredicate func(ObservedEvent) bool

// Unsubscriber detaches one subject subscription from the bus.
type Unsubscriber interface {
	Unsubscribe() error
}

// BusConn is the subset of the bus client used by the correlator. Keeping
// it narrow lets unit tests drive the correlator without a broker.
type BusConn interface {
	// ChanSubscribe delivers raw messages for a subject into ch.
	ChanSubscribe(subject string, ch chan *nats.Msg) (Unsubscriber, error)
	// Flush blocks until the server has acknowledged all pending
	// operations, including subscription registration.
	Flush() error
}

// NATSBus adapts a *nats.Conn to the BusConn interface.
type NATSBus struct {
	Conn *nats.Conn
}

func (b NATSBus) ChanSubscribe(subject string, ch chan *nats.Msg) (Unsubscriber, error) {
	return b.Conn.ChanSubscribe(subject, ch)
}

func (b NATSBus) Flush() error {
	return b.Conn.Flush()
}

// EventCorrelator creates subscriptions that capture bus events so they
// can be matched against the actions that caused them. Subscriptions on
// different subjects are independent and do not interfere.
type EventCorrelator struct {
	bus    BusConn
	logger logging.Logger
}

func NewEventCorrelator(bus BusConn, logger logging.Logger) *EventCorrelator {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &EventCorrelator{bus: bus, logger: logger}
}

// Subscribe establishes a subscription on one or more subjects and flushes
// the bus before returning, so that by the time the caller triggers an
// action, any event that action produces is guaranteed to be delivered to
// the subscription. This ordering is what rules out the publish-before-
// subscribe race.
func (c *EventCorrelator) Subscribe(subjects ...string) (*Subscription, error) {
	s := &Subscription{
		subjects: subjects,
		logger:   c.logger,
		ch:       make(chan *nats.Msg, subscriptionBufferSize),
	}
	for _, subject := range subjects {
		sub, err := c.bus.ChanSubscribe(subject, s.ch)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("subscribing to %q: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := c.bus.Flush(); err != nil {
		s.Close()
		return nil, fmt.Errorf("flushing subscription to %v: %w", subjects, err)
	}
	return s, nil
}

// Subscription is a handle over one or more subject subscriptions. It is
// used by a single test scope; Collect and CollectAll block that scope
// without affecting any other subscription.
type Subscription struct {
	subjects []string
	logger   logging.Logger
	ch       chan *nats.Msg
	subs     []Unsubscriber
	received []ObservedEvent
}

// Collect blocks until at least one event satisfying pred has been
// captured or timeout elapses, then returns every matching event captured
// so far. An empty result is not an error: it means no qualifying event
// was observed inside the window, and the caller decides what that means.
func (s *Subscription) Collect(pred EventPredicate, timeout time.Duration) []ObservedEvent {
	return s.collect(pred, timeout, true)
}

// CollectAll drains events for the full window regardless of how early
// matches arrive. Use it to assert silence, or to gather every qualifying
// event rather than just the first.
func (s *Subscription) CollectAll(pred EventPredicate, window time.Duration) []ObservedEvent {
	return s.collect(pred, window, false)
}

func (s *Subscription) collect(pred EventPredicate, timeout time.Duration, stopOnMatch bool) []ObservedEvent {
	var matched []ObservedEvent
	for _, e := range s.received {
		if pred(e) {
			matched = append(matched, e)
		}
	}
	if stopOnMatch && len(matched) > 0 {
		return matched
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case msg := <-s.ch:
			event, ok := s.decode(msg)
			if !ok {
				continue
			}
			s.received = append(s.received, event)
			if pred(event) {
				matched = append(matched, event)
				if stopOnMatch {
					return matched
				}
			}
		case <-deadline.C:
			return matched
		}
	}
}

// decode parses a raw message into an ObservedEvent. Undecodable payloads
// are dropped and logged; they never terminate the subscription.
func (s *Subscription) decode(msg *nats.Msg) (ObservedEvent, bool) {
	var payload map[string]interface{}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		s.logger.Printf("correlator: dropping undecodable message on %q: %s", msg.Subject, err)
		return ObservedEvent{}, false
	}
	return ObservedEvent{
		Subject:    msg.Subject,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}, true
}

// Close detaches the subscription from the bus. Safe to call more than
// once and after a timed-out collection.
func (s *Subscription) Close() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Printf("correlator: unsubscribe from %v failed: %s", s.subjects, err)
		}
	}
	s.subs = nil
}
