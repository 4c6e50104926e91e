package mail

import (
	"context"
	"sync"

	"github.com/oversift/trustwatch/internal/trust"
)

// Stub records alerts in memory; it backs demo mode and tests.
type Stub struct {
	mu   sync.Mutex
	sent []trust.Alert
	fail error
}

// NewStub builds a Stub.
func NewStub() *Stub {
	return &Stub{}
}

// FailWith makes every subsequent SendAlert return err (nil restores
// success).
func (s *Stub) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// SendAlert records the alert.
func (s *Stub) SendAlert(_ context.Context, alert trust.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, alert)
	return nil
}

// Sent returns a copy of the recorded alerts.
func (s *Stub) Sent() []trust.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]trust.Alert, len(s.sent))
	copy(out, s.sent)
	return out
}
