// Package accessory launches and controls the device applications that
// SystemCommands steps start, stop, reboot and factory-reset.
package accessory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matter-conformance/yamltests/internal/testharness/pseudo"
	"github.com/matter-conformance/yamltests/pkg/status"
)

// DefaultReadyMarker is the output line fragment printed by an
// application once it accepts connections.
const DefaultReadyMarker = "Server Listening"

// DefaultKVS is the key-value store file removed by a factory reset when
// Start named none.
const DefaultKVS = "/tmp/chip_kvs"

// Errors returned by the launcher.
var (
	ErrNoApplication  = errors.New("no application configured")
	ErrAlreadyRunning = errors.New("application already running")
	ErrNotRunning     = errors.New("application not running")
	ErrExited         = errors.New("application exited")
)

// Config configures a Launcher.
type Config struct {
	// Path is the application executable.
	Path string

	// Args are passed before the flags derived from StartOptions.
	Args []string

	// ReadyMarker is searched in every output line.
	ReadyMarker string

	// ReadyTimeout bounds the wait for the ready marker.
	ReadyTimeout time.Duration

	// StopTimeout bounds the wait for an interrupted application before
	// it is killed.
	StopTimeout time.Duration

	// Output receives the application's output lines. Nil discards them.
	Output io.Writer

	// Logger receives lifecycle messages. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the launcher defaults for the application at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:         path,
		ReadyMarker:  DefaultReadyMarker,
		ReadyTimeout: status.DefaultTimeout,
		StopTimeout:  5 * time.Second,
	}
}

// Launcher runs one application process per register key.
type Launcher struct {
	config Config
	logger *slog.Logger
	ready  *status.Store[string, error]

	mu   sync.Mutex
	apps map[string]*process
	seq  uint64
}

type process struct {
	cmd  *exec.Cmd
	opts pseudo.StartOptions
	done chan struct{}
	err  error

	// readyKey identifies this process in the ready store, so the exit of
	// an earlier process under the same register key never reaches it.
	readyKey string
}

// New creates a Launcher.
func New(config Config) *Launcher {
	if config.ReadyMarker == "" {
		config.ReadyMarker = DefaultReadyMarker
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = status.DefaultTimeout
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 5 * time.Second
	}
	if config.Output == nil {
		config.Output = io.Discard
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		config: config,
		logger: logger,
		ready:  status.NewStore[string, error](),
		apps:   make(map[string]*process),
	}
}

// Start launches the application for opts.RegisterKey and waits until it
// prints the ready marker.
func (l *Launcher) Start(ctx context.Context, opts pseudo.StartOptions) error {
	if l.config.Path == "" {
		return ErrNoApplication
	}
	key := registerKey(opts.RegisterKey)
	opts.RegisterKey = key

	l.mu.Lock()
	if _, ok := l.apps[key]; ok {
		l.mu.Unlock()
		return fmt.Errorf("%s: %w", key, ErrAlreadyRunning)
	}
	l.seq++
	readyKey := fmt.Sprintf("%s#%d", key, l.seq)

	args := append(append([]string{}, l.config.Args...), Arguments(opts)...)
	cmd := exec.Command(l.config.Path, args...)
	out := &lineWriter{w: l.config.Output, onLine: func(line string) {
		if strings.Contains(line, l.config.ReadyMarker) {
			l.ready.Set(readyKey, nil)
		}
	}}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		l.mu.Unlock()
		return fmt.Errorf("start %s: %w", l.config.Path, err)
	}
	p := &process{cmd: cmd, opts: opts, done: make(chan struct{}), readyKey: readyKey}
	l.apps[key] = p
	l.mu.Unlock()

	go func() {
		p.err = cmd.Wait()
		// A process that exits before it is ready releases the waiter.
		l.ready.Set(readyKey, fmt.Errorf("%w: %v", ErrExited, p.err))
		l.mu.Lock()
		if l.apps[key] == p {
			delete(l.apps, key)
		}
		l.mu.Unlock()
		close(p.done)
	}()

	l.logger.Info("accessory started", "key", key, "pid", cmd.Process.Pid, "args", args)

	readyErr, err := l.ready.Wait(ctx, readyKey, l.config.ReadyTimeout)
	if err == nil {
		err = readyErr
	}
	if err != nil {
		l.terminate(p)
		l.ready.Delete(readyKey)
		return fmt.Errorf("%s not ready: %w", key, err)
	}
	return nil
}

// Stop terminates the application of registerKey.
func (l *Launcher) Stop(ctx context.Context, registerKey string) error {
	_, err := l.stop(registerKey)
	return err
}

// Reboot stops the application and starts it again with the options of
// its last Start.
func (l *Launcher) Reboot(ctx context.Context, registerKey string) error {
	opts, err := l.stop(registerKey)
	if err != nil {
		return err
	}
	return l.Start(ctx, opts)
}

// FactoryReset stops the application, removes its key-value store and
// starts it again.
func (l *Launcher) FactoryReset(ctx context.Context, registerKey string) error {
	opts, err := l.stop(registerKey)
	if err != nil {
		return err
	}
	kvs := opts.KVS
	if kvs == "" {
		kvs = DefaultKVS
	}
	if err := os.Remove(kvs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", kvs, err)
	}
	return l.Start(ctx, opts)
}

// Close terminates every running application.
func (l *Launcher) Close() error {
	l.mu.Lock()
	apps := make([]*process, 0, len(l.apps))
	for _, p := range l.apps {
		apps = append(apps, p)
	}
	l.mu.Unlock()

	for _, p := range apps {
		l.terminate(p)
	}
	return nil
}

// Running reports whether the application of registerKey is running.
func (l *Launcher) Running(registerKey string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.apps[registerKey]
	return ok
}

func (l *Launcher) stop(key string) (pseudo.StartOptions, error) {
	key = registerKey(key)
	l.mu.Lock()
	p, ok := l.apps[key]
	l.mu.Unlock()
	if !ok {
		return pseudo.StartOptions{}, fmt.Errorf("%s: %w", key, ErrNotRunning)
	}
	l.terminate(p)
	l.ready.Delete(p.readyKey)
	l.logger.Info("accessory stopped", "key", key)
	return p.opts, nil
}

// terminate interrupts the process and kills it after StopTimeout. It
// returns once the process has been reaped.
func (l *Launcher) terminate(p *process) {
	select {
	case <-p.done:
		return
	default:
	}
	_ = p.cmd.Process.Signal(os.Interrupt)
	select {
	case <-p.done:
	case <-time.After(l.config.StopTimeout):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

func registerKey(key string) string {
	if key == "" {
		return pseudo.DefaultRegisterKey
	}
	return key
}

// Arguments renders the application flags of opts.
func Arguments(opts pseudo.StartOptions) []string {
	var args []string
	if opts.Discriminator != nil {
		args = append(args, "--discriminator", strconv.Itoa(int(*opts.Discriminator)))
	}
	if opts.Port != nil {
		args = append(args, "--secured-device-port", strconv.Itoa(int(*opts.Port)))
	}
	if opts.KVS != "" {
		args = append(args, "--KVS", opts.KVS)
	}
	if opts.MinCommissioningTimeout != nil {
		args = append(args, "--min_commissioning_timeout", strconv.Itoa(int(*opts.MinCommissioningTimeout)))
	}
	if opts.FilePath != "" {
		args = append(args, "--filepath", opts.FilePath)
	}
	if opts.OTADownloadPath != "" {
		args = append(args, "--otaDownloadPath", opts.OTADownloadPath)
	}
	return args
}

// lineWriter forwards output to w and calls onLine for every complete
// line.
type lineWriter struct {
	mu     sync.Mutex
	w      io.Writer
	buf    []byte
	onLine func(string)
}

func (lw *lineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, _ = lw.w.Write(p)
	lw.buf = append(lw.buf, p...)
	for {
		i := bytes.IndexByte(lw.buf, '\n')
		if i < 0 {
			break
		}
		lw.onLine(strings.TrimRight(string(lw.buf[:i]), "\r"))
		lw.buf = lw.buf[i+1:]
	}
	return len(p), nil
}

// Compile-time interface satisfaction check.
var _ pseudo.Accessory = (*Launcher)(nil)
