package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/chzyer/readline"

	"github.com/matter-conformance/yamltests/internal/testharness/pseudo"
)

// prompter answers UserPrompt steps from the terminal.
type prompter struct {
	rl *readline.Instance
}

func newPrompter() (*prompter, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "answer> ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &prompter{rl: rl}, nil
}

// Prompt prints message and reads one line. Cancelling ctx closes the
// terminal, which ends the read.
func (p *prompter) Prompt(ctx context.Context, message string) (string, error) {
	stop := context.AfterFunc(ctx, func() { p.rl.Close() })
	defer stop()

	fmt.Fprintln(p.rl.Stdout(), message)
	line, err := p.rl.Readline()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (p *prompter) Close() error {
	return p.rl.Close()
}

// Compile-time interface satisfaction check.
var _ pseudo.Prompter = (*prompter)(nil)
