package mail

import (
	"context"
	"sync"

	"github.com/MrEthical07/rowAuth"
)

// Capture is a Mailer that records messages instead of sending them. Tests
// and dry runs use it. Safe for concurrent use.
type Capture struct {
	mu       sync.Mutex
	sent     []rowAuth.Email
	failWith error
}

// NewCapture returns an empty capture mailer.
func NewCapture() *Capture {
	return &Capture{}
}

// FailWith makes every subsequent send return err. Pass nil to restore
// normal behavior.
func (c *Capture) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

// SendEmail implements rowAuth.Mailer.
func (c *Capture) SendEmail(_ context.Context, email rowAuth.Email) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failWith != nil {
		return c.failWith
	}
	c.sent = append(c.sent, email)
	return nil
}

// Sent returns a copy of every captured message in send order.
func (c *Capture) Sent() []rowAuth.Email {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]rowAuth.Email, len(c.sent))
	copy(out, c.sent)
	return out
}

// Last returns the most recent message, or false when nothing was sent.
func (c *Capture) Last() (rowAuth.Email, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.sent) == 0 {
		return rowAuth.Email{}, false
	}
	return c.sent[len(c.sent)-1], true
}
