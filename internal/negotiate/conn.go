package negotiate

import (
	"errors"
	"io"
	"os/exec"
	"sync"
)

var ErrConnClosed = errors.New("negotiate: connection closed")

// Conn is a negotiated application-data channel backed by a live transport
// client subprocess. Reads never include bytes from before the located
// data boundary; writes go to the client's stdin.
type Conn struct {
	id     string
	client string

	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *stream

	closeOnce sync.Once
	closed    bool
	mu        sync.Mutex
}

// ID is the session correlation id used in logs.
func (c *Conn) ID() string { return c.id }

// ClientName reports which candidate client won the negotiation.
func (c *Conn) ClientName() string { return c.client }

func (c *Conn) Read(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, ErrConnClosed
	}
	return c.out.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, ErrConnClosed
	}
	return c.stdin.Write(p)
}

// Close terminates the subprocess and releases the session.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		_ = c.stdin.Close()
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		_ = c.cmd.Wait()
		c.out.finish(ErrConnClosed)
	})
	return nil
}
