package harness

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fleetops/driver-contract-tests/logging"

	"github.com/gorilla/websocket"
)

const sessionPollInterval = 20 * time.Millisecond

// SessionState is the lifecycle state of one socket session.
type SessionState int

const (
	SessionConnecting SessionState = iota
	SessionOpen
	SessionClosing
	SessionClosed
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "CONNECTING"
	case SessionOpen:
		return "OPEN"
	case SessionClosing:
		return "CLOSING"
	case SessionClosed:
		return "CLOSED"
	case SessionFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// SocketMessage is one JSON text frame received while a session was open.
type SocketMessage struct {
	Type       string
	Payload    map[string]interface{}
	ReceivedAt time.Time
}

// Field returns a top-level payload field by name.
func (m SocketMessage) Field(name string) interface{} {
	return m.Payload[name]
}

// SocketSession is one full-duplex connection to the service. Only the
// owning SessionManager mutates its state; tests read state and the
// private message log.
type SocketSession struct {
	Target string

	logger   logging.Logger
	conn     *websocket.Conn
	state    SessionState
	err      error
	messages []SocketMessage
	done     chan struct{}
	lock     sync.Mutex
	closing  sync.Once
}

// State reports the session's current lifecycle state.
func (s *SocketSession) State() SessionState {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Err returns the failure that moved the session to FAILED, if any.
func (s *SocketSession) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}

// Messages returns a snapshot of every frame received so far, in arrival
// order.
func (s *SocketSession) Messages() []SocketMessage {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]SocketMessage(nil), s.messages...)
}

// Send writes one JSON text frame with the given type discriminator. It
// fails if the session is not open.
func (s *SocketSession) Send(frameType string, fields map[string]interface{}) error {
	s.lock.Lock()
	if s.state != SessionOpen {
		state := s.state
		s.lock.Unlock()
		return fmt.Errorf("cannot send on session to %s in state %s", s.Target, state)
	}
	conn := s.conn
	s.lock.Unlock()

	frame := map[string]interface{}{"type": frameType}
	for k, v := range fields {
		frame[k] = v
	}
	return conn.WriteJSON(frame)
}

// SendText writes the string as a text frame with no JSON framing, so a
// test can feed the service frames it must reject.
func (s *SocketSession) SendText(data string) error {
	s.lock.Lock()
	if s.state != SessionOpen {
		state := s.state
		s.lock.Unlock()
		return fmt.Errorf("cannot send on session to %s in state %s", s.Target, state)
	}
	conn := s.conn
	s.lock.Unlock()

	return conn.WriteMessage(websocket.TextMessage, []byte(data))
}

// AwaitMessage waits until a frame satisfying pred has arrived or timeout
// elapses. It keeps working after the session has closed, since already-
// received frames remain readable.
func (s *SocketSession) AwaitMessage(pred func(SocketMessage) bool, timeout time.Duration) (SocketMessage, bool) {
	deadline := time.Now().Add(timeout)
	seen := 0
	for {
		s.lock.Lock()
		for _, m := range s.messages[seen:] {
			if pred(m) {
				s.lock.Unlock()
				return m, true
			}
		}
		seen = len(s.messages)
		terminal := s.state == SessionClosed || s.state == SessionFailed
		s.lock.Unlock()

		if terminal || time.Now().After(deadline) {
			// Terminal states append no further frames, so there is
			// nothing left to wait for.
			return SocketMessage{}, false
		}
		time.Sleep(sessionPollInterval)
	}
}

// AwaitClosed waits until the session reaches a terminal state (CLOSED or
// FAILED) or timeout elapses.
func (s *SocketSession) AwaitClosed(timeout time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close performs a graceful shutdown of the session. It is safe to call on
// sessions in any state and more than once.
func (s *SocketSession) Close() {
	s.closing.Do(func() {
		s.lock.Lock()
		if s.state != SessionOpen {
			s.lock.Unlock()
			return
		}
		s.state = SessionClosing
		conn := s.conn
		s.lock.Unlock()

		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()

		s.setTerminal(SessionClosed, nil)
	})
}

func (s *SocketSession) setTerminal(state SessionState, err error) {
	s.lock.Lock()
	if s.state == SessionClosed || s.state == SessionFailed {
		s.lock.Unlock()
		return
	}
	s.state = state
	if err != nil {
		s.err = err
	}
	close(s.done)
	s.lock.Unlock()
}

// readLoop is the only writer of the message log. It runs until the
// connection ends, then records the terminal state: CLOSED for a graceful
// close from either side, FAILED for protocol violations or abrupt drops.
func (s *SocketSession) readLoop() {
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				s.State() == SessionClosing || s.State() == SessionClosed {
				s.setTerminal(SessionClosed, nil)
			} else {
				s.logger.Printf("session %s dropped: %s", s.Target, err)
				s.setTerminal(SessionFailed, err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var payload map[string]interface{}
		if err := json.Unmarshal(data, &payload); err != nil {
			s.logger.Printf("session %s: dropping undecodable frame: %s", s.Target, err)
			continue
		}
		frameType, _ := payload["type"].(string)
		s.lock.Lock()
		if s.state == SessionOpen {
			s.messages = append(s.messages, SocketMessage{
				Type:       frameType,
				Payload:    payload,
				ReceivedAt: time.Now(),
			})
		}
		s.lock.Unlock()
	}
}

// SessionManager opens, monitors, and tears down socket sessions. One
// manager instance is owned by a single test scope.
type SessionManager struct {
	dialer   *websocket.Dialer
	logger   logging.Logger
	sessions []*SocketSession
	lock     sync.Mutex
}

func NewSessionManager(logger logging.Logger) *SessionManager {
	if logger == nil {
		logger = logging.NullLogger()
	}
	dialer := &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	return &SessionManager{dialer: dialer, logger: logger}
}

// Open dials one session. Connection refusal or an invalid target yields a
// session in the FAILED state plus the dial error; the manager never
// retries, so FAILED is terminal.
func (m *SessionManager) Open(target string) (*SocketSession, error) {
	s := &SocketSession{
		Target: target,
		logger: m.logger,
		state:  SessionConnecting,
		done:   make(chan struct{}),
	}
	m.lock.Lock()
	m.sessions = append(m.sessions, s)
	m.lock.Unlock()

	conn, resp, err := m.dialer.Dial(target, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		err = fmt.Errorf("dialing %s: %w", target, err)
		s.setTerminal(SessionFailed, err)
		return s, err
	}
	s.lock.Lock()
	s.conn = conn
	s.state = SessionOpen
	s.lock.Unlock()
	m.logger.Printf("session open: %s", target)

	go s.readLoop()
	return s, nil
}

// OpenMany dials every target concurrently and returns a session per
// target, in target order. A failed dial is recorded on its own session
// and never aborts the other opens.
func (m *SessionManager) OpenMany(targets []string) []*SocketSession {
	sessions := make([]*SocketSession, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			s, err := m.Open(target)
			if err != nil {
				m.logger.Printf("session open failed: %s", err)
			}
			sessions[i] = s
		}(i, target)
	}
	wg.Wait()
	return sessions
}

// OpenCount reports how many of the manager's sessions are currently OPEN.
func (m *SessionManager) OpenCount() int {
	m.lock.Lock()
	sessions := append([]*SocketSession(nil), m.sessions...)
	m.lock.Unlock()
	n := 0
	for _, s := range sessions {
		if s.State() == SessionOpen {
			n++
		}
	}
	return n
}

// CloseAll gracefully closes every session the manager opened. It runs on
// scope exit regardless of the test outcome.
func (m *SessionManager) CloseAll() {
	m.lock.Lock()
	sessions := append([]*SocketSession(nil), m.sessions...)
	m.lock.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
