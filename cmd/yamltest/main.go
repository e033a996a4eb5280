// Command yamltest parses YAML conformance tests and runs them against a
// device under test.
//
// Usage:
//
//	yamltest <command> [flags] <test-name>
//
// Commands:
//
//	parse      Parse the selected tests and report parse errors
//	dry-run    Walk the selected tests without sending anything
//	run        Run the tests through a command-line controller
//	websocket  Run the tests through an interactive controller over WebSocket
//	pics       Evaluate PICS expressions against a PICS file
//	trace      Inspect trace files written with --trace
//
// Examples:
//
//	# Parse every test of the ciTests collection
//	yamltest parse --test_directory src/app/tests/suites all
//
//	# Run a single test through chip-tool's interactive server
//	yamltest websocket --specifications_paths defs.yaml --PICS ci-pics.txt \
//	    --server_path ./chip-tool --server_arguments "interactive server" TC_OO_1_1
//
//	# Show the requests and responses of a recorded run
//	yamltest trace view --category PAYLOAD run.ylog
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "yamltest",
		Short:         "Parse and run YAML conformance tests",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newParseCmd(),
		newDryRunCmd(),
		newRunCmd(),
		newWebSocketCmd(),
		newPICSCmd(),
		newTraceCmd(),
	)
	return root
}
