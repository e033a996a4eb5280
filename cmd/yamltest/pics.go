package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/matter-conformance/yamltests/pkg/pics"
)

func newPICSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pics",
		Short: "Evaluate PICS expressions against a PICS file",
	}
	cmd.AddCommand(newPICSCheckCmd(), newPICSShellCmd())
	return cmd
}

func newPICSCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <pics-file> <expression>...",
		Short: "Print the value of each expression",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := pics.LoadFile(args[0])
			if err != nil {
				return err
			}
			checker := pics.NewChecker(table)
			failed := 0
			for _, expr := range args[1:] {
				if !evalExpression(cmd.OutOrStdout(), checker, expr) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d expressions are invalid", failed)
			}
			return nil
		},
	}
}

func newPICSShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <pics-file>",
		Short: "Evaluate expressions interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := pics.LoadFile(args[0])
			if err != nil {
				return err
			}
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "pics> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			checker := pics.NewChecker(table)
			out := rl.Stdout()
			fmt.Fprintf(out, "Loaded %d codes from %s. Type 'help' for commands.\n", table.Len(), args[0])
			for {
				line, err := rl.Readline()
				if err != nil {
					if errors.Is(err, readline.ErrInterrupt) {
						continue
					}
					return nil
				}
				if !shellLine(out, checker, line) {
					return nil
				}
			}
		},
	}
}

// shellLine handles one line of the PICS shell. It returns false when the
// shell should exit.
func shellLine(w io.Writer, checker *pics.Checker, line string) bool {
	input := strings.TrimSpace(line)
	switch strings.ToLower(input) {
	case "":
	case "exit", "quit", "q":
		return false
	case "help", "?":
		fmt.Fprintln(w, "  <expression>     evaluate, e.g. OO.S && !(OO.S.A0000 || LVL.S)")
		fmt.Fprintln(w, "  lookup <code>    show the value of one code")
		fmt.Fprintln(w, "  enabled          list the enabled codes")
		fmt.Fprintln(w, "  exit             leave the shell")
	case "enabled":
		for _, code := range checker.Table().Enabled() {
			fmt.Fprintln(w, code)
		}
	default:
		if code, ok := strings.CutPrefix(input, "lookup "); ok {
			code = strings.TrimSpace(code)
			enabled, present := checker.Table().Lookup(code)
			switch {
			case !present:
				fmt.Fprintf(w, "%s: not in the PICS file\n", code)
			default:
				fmt.Fprintf(w, "%s: %t\n", code, enabled)
			}
			return true
		}
		evalExpression(w, checker, input)
	}
	return true
}

// evalExpression prints the value of expr and reports whether it was
// well formed.
func evalExpression(w io.Writer, checker *pics.Checker, expr string) bool {
	ok, err := checker.Check(expr)
	if err != nil {
		fmt.Fprintf(w, "%s: %v\n", expr, err)
		return false
	}
	fmt.Fprintf(w, "%s: %t\n", expr, ok)
	return true
}
