package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultSubprocessTimeout bounds one invocation when the context has no
// deadline.
const DefaultSubprocessTimeout = 60 * time.Second

// SubprocessConfig configures a Subprocess transport.
type SubprocessConfig struct {
	// Path is the executable run for each request.
	Path string

	// Arguments are passed before the request.
	Arguments []string

	// Timeout bounds one invocation.
	Timeout time.Duration
}

// Subprocess is a Transport that runs one process per request. The request
// is written to the process's stdin; each non-empty stdout line is a
// payload.
type Subprocess struct {
	config SubprocessConfig
	path   string
	mu     sync.Mutex
}

// NewSubprocess creates a Subprocess transport.
func NewSubprocess(config SubprocessConfig) *Subprocess {
	if config.Timeout == 0 {
		config.Timeout = DefaultSubprocessTimeout
	}
	return &Subprocess{config: config}
}

// Start resolves the executable.
func (s *Subprocess) Start(ctx context.Context) error {
	path, err := exec.LookPath(s.config.Path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", s.config.Path, err)
	}
	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
	return nil
}

// Execute runs the process once for request.
func (s *Subprocess) Execute(ctx context.Context, request string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil, ErrNotConnected
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.path, s.config.Arguments...)
	cmd.Stdin = strings.NewReader(request)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", s.config.Path, ctx.Err())
		}
		return nil, fmt.Errorf("%s: %w: %s", s.config.Path, err, strings.TrimSpace(stderr.String()))
	}

	var payloads []string
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			payloads = append(payloads, line)
		}
	}
	return payloads, scanner.Err()
}

// Stop forgets the resolved executable.
func (s *Subprocess) Stop() error {
	s.mu.Lock()
	s.path = ""
	s.mu.Unlock()
	return nil
}

// Compile-time interface satisfaction check.
var _ Transport = (*Subprocess)(nil)
