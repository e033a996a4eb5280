package loader

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ParserHooks observes the parsing of a set of files. Per-file hooks are
// emitted in input order even though files are parsed concurrently.
type ParserHooks interface {
	Start(count int)
	Stop(duration time.Duration)
	TestStart(path string)
	TestFailure(err error, duration time.Duration)
	TestSuccess(duration time.Duration)
}

// NoopParserHooks ignores all parser events.
type NoopParserHooks struct{}

func (NoopParserHooks) Start(int)                        {}
func (NoopParserHooks) Stop(time.Duration)               {}
func (NoopParserHooks) TestStart(string)                 {}
func (NoopParserHooks) TestFailure(error, time.Duration) {}
func (NoopParserHooks) TestSuccess(time.Duration)        {}

// Compile-time interface satisfaction check.
var _ ParserHooks = NoopParserHooks{}

// BuilderOptions configures a Builder.
type BuilderOptions struct {
	// StopOnError stops delivering files after the first parse failure.
	StopOnError bool

	// Concurrency bounds the number of files parsed at once.
	Concurrency int
}

// DefaultBuilderOptions returns the default builder options.
func DefaultBuilderOptions() BuilderOptions {
	return BuilderOptions{
		StopOnError: true,
		Concurrency: 4,
	}
}

// Builder parses a list of test files.
type Builder struct {
	parser  *Parser
	paths   []string
	hooks   ParserHooks
	options BuilderOptions

	mu   sync.Mutex
	errs []error
}

// NewBuilder creates a Builder for paths.
func NewBuilder(parser *Parser, paths []string, hooks ParserHooks, options BuilderOptions) *Builder {
	if hooks == nil {
		hooks = NoopParserHooks{}
	}
	if options.Concurrency <= 0 {
		options.Concurrency = 1
	}
	return &Builder{
		parser:  parser,
		paths:   append([]string(nil), paths...),
		hooks:   hooks,
		options: options,
	}
}

// Count returns the number of files to parse.
func (b *Builder) Count() int {
	return len(b.paths)
}

// Err returns the parse failures seen so far, joined.
func (b *Builder) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.errs...)
}

type parseSlot struct {
	done     chan struct{}
	file     *TestFile
	err      error
	duration time.Duration
}

// Files parses the files and yields them in input order. Files that fail
// to parse are reported through the hooks and skipped, or end the
// sequence when StopOnError is set. Start and Stop are emitted once per
// iteration.
func (b *Builder) Files(ctx context.Context) iter.Seq[*TestFile] {
	return func(yield func(*TestFile) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		b.hooks.Start(len(b.paths))
		var total time.Duration
		defer func() { b.hooks.Stop(total) }()

		slots := make([]*parseSlot, len(b.paths))
		for i := range slots {
			slots[i] = &parseSlot{done: make(chan struct{})}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(b.options.Concurrency)
		scheduled := make(chan struct{})
		go func() {
			defer close(scheduled)
			for i, path := range b.paths {
				slot := slots[i]
				g.Go(func() error {
					defer close(slot.done)
					if gctx.Err() != nil {
						slot.err = gctx.Err()
						return nil
					}
					start := time.Now()
					slot.file, slot.err = b.parser.LoadFile(path)
					slot.duration = time.Since(start)
					return nil
				})
			}
		}()
		defer func() {
			cancel()
			<-scheduled
			_ = g.Wait()
		}()

		for i, path := range b.paths {
			slot := slots[i]
			b.hooks.TestStart(path)
			select {
			case <-slot.done:
			case <-ctx.Done():
				b.fail(ctx.Err())
				b.hooks.TestFailure(ctx.Err(), 0)
				return
			}
			total += slot.duration

			if slot.err != nil {
				b.fail(slot.err)
				b.hooks.TestFailure(slot.err, slot.duration)
				if b.options.StopOnError {
					return
				}
				continue
			}

			b.hooks.TestSuccess(slot.duration)
			if !yield(slot.file) {
				return
			}
		}
	}
}

func (b *Builder) fail(err error) {
	b.mu.Lock()
	b.errs = append(b.errs, err)
	b.mu.Unlock()
}
