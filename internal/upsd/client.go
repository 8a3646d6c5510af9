// Package upsd implements a client for the Network UPS Tools (upsd) line
// protocol: session establishment with optional authentication, device
// enumeration, variable reads, and a stateless one-shot bulk fetch used by
// the polling fallback path.
package upsd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/upswake/upswake/internal/store"
)

// TransportError wraps connection-level failures so callers can distinguish
// a dead session from a protocol-level refusal.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upsd %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client dials upsd agents. The zero timeouts are replaced by defaults.
type Client struct {
	dialTimeout time.Duration
	cmdTimeout  time.Duration
	logger      *slog.Logger
}

// NewClient creates a upsd client.
func NewClient(dialTimeout, cmdTimeout time.Duration, logger *slog.Logger) *Client {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	if cmdTimeout <= 0 {
		cmdTimeout = 5 * time.Second
	}
	return &Client{
		dialTimeout: dialTimeout,
		cmdTimeout:  cmdTimeout,
		logger:      logger.With("component", "upsd"),
	}
}

// Connect establishes a session with an agent, authenticating when the agent
// record carries credentials.
func (c *Client) Connect(ctx context.Context, agent store.Agent) (*Session, error) {
	dialer := &net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", agent.Addr())
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err}
	}

	s := &Session{
		conn:       conn,
		reader:     bufio.NewReader(conn),
		cmdTimeout: c.cmdTimeout,
		closed:     make(chan struct{}),
		logger:     c.logger.With("agent", agent.Name, "addr", agent.Addr()),
	}

	if agent.Username != "" {
		if err := s.authenticate(ctx, agent.Username, agent.Password); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// FetchAll performs a stateless sweep of one agent: a fresh connection,
// LIST UPS, LIST VAR per device, then logout. It is used by the fallback
// scanner, which must not depend on any long-lived session.
func (c *Client) FetchAll(ctx context.Context, agent store.Agent) (map[string]map[string]string, error) {
	s, err := c.Connect(ctx, agent)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	names, err := s.ListDevices(ctx)
	if err != nil {
		return nil, err
	}

	all := make(map[string]map[string]string, len(names))
	for _, name := range names {
		vars, err := s.GetVariables(ctx, name)
		if err != nil {
			// A single device failing the sweep does not abort the rest.
			c.logger.Warn("bulk fetch skipped device",
				"agent", agent.Name,
				"device", name,
				"error", err,
			)
			continue
		}
		all[name] = vars
	}
	return all, nil
}

// Session is one live connection to a upsd agent. Commands are serialized;
// the session marks itself closed on the first transport failure and signals
// observers through Closed.
type Session struct {
	conn       net.Conn
	reader     *bufio.Reader
	cmdTimeout time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	err       error
}

// Closed returns a channel that is closed when the session dies, whether by
// transport failure or an explicit Close.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Err reports the transport error that killed the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close shuts the connection down. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
	return nil
}

// ListDevices enumerates the UPS devices the agent fronts.
func (s *Session) ListDevices(ctx context.Context) ([]string, error) {
	lines, err := s.list(ctx, "LIST UPS", "UPS")
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(lines))
	for _, line := range lines {
		// UPS <name> "<description>"
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			names = append(names, fields[1])
		}
	}
	return names, nil
}

// GetVariables reads all variables for one device as a name/value map.
func (s *Session) GetVariables(ctx context.Context, deviceName string) (map[string]string, error) {
	lines, err := s.list(ctx, "LIST VAR "+deviceName, "VAR")
	if err != nil {
		return nil, err
	}

	vars := make(map[string]string, len(lines))
	for _, line := range lines {
		// VAR <ups> <varname> "<value>"
		fields := strings.SplitN(line, " ", 4)
		if len(fields) < 4 {
			continue
		}
		vars[fields[2]] = strings.Trim(fields[3], `"`)
	}
	return vars, nil
}

// authenticate runs the USERNAME/PASSWORD exchange.
func (s *Session) authenticate(ctx context.Context, username, password string) error {
	if _, err := s.command(ctx, "USERNAME "+username); err != nil {
		return err
	}
	if _, err := s.command(ctx, "PASSWORD "+password); err != nil {
		return err
	}
	return nil
}

// list runs a LIST command and returns the item lines between BEGIN and END.
func (s *Session) list(ctx context.Context, cmd, itemPrefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLine(ctx, cmd); err != nil {
		return nil, err
	}

	first, err := s.readLine(ctx)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(first, "ERR ") {
		return nil, fmt.Errorf("upsd %q: %s", cmd, strings.TrimPrefix(first, "ERR "))
	}
	if !strings.HasPrefix(first, "BEGIN LIST") {
		return nil, fmt.Errorf("upsd %q: unexpected response %q", cmd, first)
	}

	var items []string
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(line, "END LIST") {
			return items, nil
		}
		if strings.HasPrefix(line, itemPrefix+" ") {
			items = append(items, line)
		}
	}
}

// command sends a single command and expects an OK response.
func (s *Session) command(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeLine(ctx, cmd); err != nil {
		return "", err
	}

	line, err := s.readLine(ctx)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(line, "ERR ") {
		return "", fmt.Errorf("upsd command rejected: %s", strings.TrimPrefix(line, "ERR "))
	}
	return line, nil
}

func (s *Session) writeLine(ctx context.Context, line string) error {
	if err := s.conn.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return s.fail("write", err)
	}
	if _, err := s.conn.Write([]byte(line + "\n")); err != nil {
		return s.fail("write", err)
	}
	return nil
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	if err := s.conn.SetReadDeadline(s.deadline(ctx)); err != nil {
		return "", s.fail("read", err)
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return "", s.fail("read", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Session) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(s.cmdTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

// fail records the transport error, tears the session down, and returns a
// wrapped TransportError. Callers holding the session see Closed fire.
func (s *Session) fail(op string, err error) error {
	s.err = &TransportError{Op: op, Err: err}
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
	s.logger.Warn("session transport failure", "op", op, "error", err)
	return s.err
}
