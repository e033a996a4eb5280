package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matter-conformance/yamltests/internal/testharness/accessory"
	"github.com/matter-conformance/yamltests/internal/testharness/engine"
	"github.com/matter-conformance/yamltests/internal/testharness/loader"
	"github.com/matter-conformance/yamltests/internal/testharness/metrics"
	"github.com/matter-conformance/yamltests/internal/testharness/pseudo"
	"github.com/matter-conformance/yamltests/internal/testharness/reporter"
	"github.com/matter-conformance/yamltests/pkg/adapter/chiptool"
	"github.com/matter-conformance/yamltests/pkg/definitions"
	"github.com/matter-conformance/yamltests/pkg/discovery"
	"github.com/matter-conformance/yamltests/pkg/log"
	"github.com/matter-conformance/yamltests/pkg/pics"
	"github.com/matter-conformance/yamltests/pkg/transport"
	"github.com/matter-conformance/yamltests/pkg/value"
)

// parserOptions select and parse the test files.
type parserOptions struct {
	configurationName string
	testDirectory     string
	specifications    []string
	pics              string
	stopOnError       bool
	concurrency       int
	config            map[string]string
}

func (o *parserOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.configurationName, "configuration_name", loader.DefaultConfigurationName, "Name of the collection configuration json file to use")
	f.StringVar(&o.testDirectory, "test_directory", loader.DefaultTestDirectory, "Path to the directory containing the tests")
	f.StringSliceVar(&o.specifications, "specifications_paths", nil, "Paths to the cluster definition files")
	f.StringVar(&o.pics, "PICS", "", "Path to the PICS file")
	f.BoolVar(&o.stopOnError, "stop_on_error", true, "Stop parsing on the first error")
	f.IntVar(&o.concurrency, "parse_concurrency", 4, "Number of files parsed at once")
	f.StringToStringVar(&o.config, "config", nil, "Override a config variable of the tests (key=value)")
}

// builder resolves name and returns a builder for the found files.
func (o *parserOptions) builder(name string, hooks loader.ParserHooks) (*loader.Builder, error) {
	finder, err := loader.NewFinder(o.testDirectory, o.configurationName)
	if err != nil {
		return nil, err
	}
	paths, err := finder.Find(name)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no test named %q in %s", name, o.testDirectory)
	}

	var table *pics.Table
	if o.pics != "" {
		if table, err = pics.LoadFile(o.pics); err != nil {
			return nil, fmt.Errorf("load PICS: %w", err)
		}
	}

	parser := loader.NewParser(loader.Config{PICS: table, ConfigOverride: overrides(o.config)})
	return loader.NewBuilder(parser, paths, hooks, loader.BuilderOptions{
		StopOnError: o.stopOnError,
		Concurrency: o.concurrency,
	}), nil
}

// overrides converts --config values. Values that parse as JSON keep
// their type; anything else is a string.
func overrides(config map[string]string) map[string]value.Value {
	if len(config) == 0 {
		return nil
	}
	out := make(map[string]value.Value, len(config))
	for k, s := range config {
		v, err := value.ParseJSON([]byte(s))
		if err != nil {
			v = value.String(s)
		}
		out[k] = v
	}
	return out
}

// runnerOptions configure the run policy and the run outputs.
type runnerOptions struct {
	stopOnWarning          bool
	stopAtNumber           int
	stepTimeout            time.Duration
	showAdapterLogs        bool
	showAdapterLogsOnError bool
	numericFieldKeys       bool
	report                 string
	reportFile             string
	verbose                bool
	trace                  string
	metricsAddress         string
	accessoryPath          string
	accessoryArgs          string
	discovery              bool
	iface                  string
	interactive            bool
	logLevel               string
}

func (o *runnerOptions) addFlags(cmd *cobra.Command) {
	defaults := engine.DefaultOptions()
	console := reporter.DefaultConsoleOptions()
	f := cmd.Flags()
	f.BoolVar(&o.stopOnWarning, "stop_on_warning", defaults.StopOnWarning, "Stop a test on the first step with warnings")
	f.IntVar(&o.stopAtNumber, "stop_at_number", defaults.StopAtNumber, "Stop a test after this step number (-1 disables)")
	f.DurationVar(&o.stepTimeout, "step_timeout", defaults.StepTimeout, "Timeout of steps that set none")
	f.BoolVar(&o.showAdapterLogs, "show_adapter_logs", console.ShowAdapterLogs, "Show the adapter logs of every step")
	f.BoolVar(&o.showAdapterLogsOnError, "show_adapter_logs_on_error", console.ShowAdapterLogsOnError, "Show the adapter logs of failed steps")
	f.BoolVar(&o.numericFieldKeys, "numeric_field_keys", false, "Encode struct arguments with numeric field codes")
	f.StringVar(&o.report, "report", "", "Write a summary report: text, json or junit")
	f.StringVar(&o.reportFile, "report_file", "", "File receiving the report (default: stdout)")
	f.BoolVar(&o.verbose, "verbose", false, "List every step in text reports, indent JSON reports")
	f.StringVar(&o.trace, "trace", "", "Write a trace of the run to this file"+log.FileExtension)
	f.StringVar(&o.metricsAddress, "metrics_address", "", "Serve Prometheus metrics on this address during the run")
	f.StringVar(&o.accessoryPath, "accessory_path", "", "Application started by SystemCommands steps")
	f.StringVar(&o.accessoryArgs, "accessory_arguments", "", "Arguments passed to the application")
	f.BoolVar(&o.discovery, "discovery", false, "Enable DiscoveryCommands steps (mDNS)")
	f.StringVar(&o.iface, "interface", "", "Network interface used for discovery")
	f.BoolVar(&o.interactive, "interactive", false, "Ask the operator to answer UserPrompt steps")
	f.StringVar(&o.logLevel, "log_level", "warn", "Operational log level: debug, info, warn or error")
}

func (o *runnerOptions) policy(stopOnError bool) engine.Options {
	return engine.Options{
		StopOnError:   stopOnError,
		StopOnWarning: o.stopOnWarning,
		StopAtNumber:  o.stopAtNumber,
		StepTimeout:   o.stepTimeout,
	}
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func newParseCmd() *cobra.Command {
	po := &parserOptions{}
	cmd := &cobra.Command{
		Use:   "parse <test-name>",
		Short: "Parse the selected tests and report parse errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			b, err := po.builder(args[0], reporter.NewConsoleParserHooks(out))
			if err != nil {
				return err
			}
			for tf := range b.Files(cmd.Context()) {
				fmt.Fprintf(out, "    %s: %d steps\n", tf.Name, tf.Count())
			}
			return b.Err()
		},
	}
	po.addFlags(cmd)
	return cmd
}

func newDryRunCmd() *cobra.Command {
	po := &parserOptions{}
	cmd := &cobra.Command{
		Use:   "dry-run <test-name>",
		Short: "Walk the selected tests without sending anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			b, err := po.builder(args[0], reporter.NewConsoleParserHooks(out))
			if err != nil {
				return err
			}
			runner := engine.New(&engine.Config{
				Options: engine.Options{StopOnError: po.stopOnError, StopAtNumber: -1},
				Hooks:   reporter.NewConsoleHooks(out, reporter.DefaultConsoleOptions()),
			})
			runner.Run(cmd.Context(), b)
			return b.Err()
		},
	}
	po.addFlags(cmd)
	return cmd
}

func newRunCmd() *cobra.Command {
	po := &parserOptions{}
	ro := &runnerOptions{}
	cfg := transport.SubprocessConfig{}
	cmd := &cobra.Command{
		Use:   "run <test-name>",
		Short: "Run the tests through a command-line controller, one process per step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Path == "" {
				return errors.New("--controller_path is required")
			}
			return execute(cmd, args[0], po, ro, func(transport.ConnectionHooks) transport.Transport {
				return transport.NewSubprocess(cfg)
			})
		},
	}
	po.addFlags(cmd)
	ro.addFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&cfg.Path, "controller_path", "", "Controller executable run for every step")
	f.StringSliceVar(&cfg.Arguments, "controller_arguments", nil, "Arguments passed before each request")
	f.DurationVar(&cfg.Timeout, "controller_timeout", transport.DefaultSubprocessTimeout, "Timeout of one controller invocation")
	return cmd
}

func newWebSocketCmd() *cobra.Command {
	po := &parserOptions{}
	ro := &runnerOptions{}
	cfg := transport.DefaultWebSocketConfig()
	var serverPath, serverName, serverArguments string
	cmd := &cobra.Command{
		Use:   "websocket <test-name>",
		Short: "Run the tests through an interactive controller over WebSocket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd, args[0], po, ro, func(hooks transport.ConnectionHooks) transport.Transport {
				c := cfg
				c.Hooks = hooks
				path := serverPath
				if path == "" {
					path = serverName
				}
				if path != "" {
					c.Server = &transport.ServerConfig{Path: path, Arguments: serverArguments, Output: cmd.ErrOrStderr()}
				}
				return transport.NewWebSocket(c)
			})
		},
	}
	po.addFlags(cmd)
	ro.addFlags(cmd)
	f := cmd.Flags()
	f.StringVar(&cfg.Address, "server_address", transport.DefaultAddress, "Address of the WebSocket server")
	f.IntVar(&cfg.Port, "server_port", transport.DefaultPort, "Port of the WebSocket server")
	f.IntVar(&cfg.RetryCount, "server_retries", transport.DefaultRetryCount, "Connection retries before giving up")
	f.DurationVar(&cfg.RetryInterval, "server_retry_interval", transport.DefaultRetryInterval, "Wait between connection attempts")
	f.StringVar(&serverPath, "server_path", "", "Path of a server executable to launch before connecting")
	f.StringVar(&serverName, "server_name", "", "Name of a server executable on PATH to launch before connecting")
	f.StringVar(&serverArguments, "server_arguments", "", "Arguments of the launched server")
	return cmd
}

// execute runs the selected tests with the chip-tool adapter over the
// transport built by newTransport.
func execute(cmd *cobra.Command, name string, po *parserOptions, ro *runnerOptions, newTransport func(transport.ConnectionHooks) transport.Transport) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	logger, err := newLogger(errOut, ro.logLevel)
	if err != nil {
		return err
	}
	if len(po.specifications) == 0 {
		return errors.New("--specifications_paths is required")
	}
	defs, err := definitions.LoadFiles(po.specifications...)
	if err != nil {
		return fmt.Errorf("load definitions: %w", err)
	}

	b, err := po.builder(name, reporter.NewConsoleParserHooks(out))
	if err != nil {
		return err
	}

	runID := log.NewRunID()
	var traceLogger log.Logger = log.NewSlogAdapter(logger)
	if ro.trace != "" {
		fl, err := log.NewFileLogger(ro.trace)
		if err != nil {
			return fmt.Errorf("open trace: %w", err)
		}
		defer func() {
			if err := fl.Close(); err != nil {
				logger.Error("close trace", "error", err)
			}
		}()
		traceLogger = log.NewMultiLogger(fl, traceLogger)
	}
	trace := reporter.NewTraceHooks(traceLogger, runID)

	hooks := engine.MultiHooks{
		reporter.NewConsoleHooks(out, reporter.ConsoleOptions{
			ShowAdapterLogs:        ro.showAdapterLogs,
			ShowAdapterLogsOnError: ro.showAdapterLogsOnError,
		}),
		trace,
	}
	connHooks := transport.MultiConnectionHooks{reporter.NewConsoleConnectionHooks(out), trace}

	if ro.metricsAddress != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			return err
		}
		hooks = append(hooks, m)
		connHooks = append(connHooks, m)

		srv := &http.Server{Addr: ro.metricsAddress, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", "error", err)
			}
		}()
		defer srv.Close()
	}

	runner := engine.New(&engine.Config{
		Options:   ro.policy(po.stopOnError),
		Adapter:   chiptool.New(chiptool.Config{Definitions: defs, NumericFieldKeys: ro.numericFieldKeys}),
		Transport: newTransport(connHooks),
		Hooks:     hooks,
		Trace:     traceLogger,
		RunID:     runID,
	})

	pc := pseudo.Config{}
	if ro.accessoryPath != "" {
		acfg := accessory.DefaultConfig(ro.accessoryPath)
		acfg.Args = strings.Fields(ro.accessoryArgs)
		acfg.Logger = logger
		launcher := accessory.New(acfg)
		defer launcher.Close()
		pc.Accessory = launcher
	}
	if ro.discovery {
		bcfg := discovery.DefaultBrowserConfig()
		bcfg.Interface = ro.iface
		browser := discovery.NewMDNSBrowser(bcfg)
		defer browser.Stop()
		pc.Browser = browser
	}
	if ro.interactive {
		prompter, err := newPrompter()
		if err != nil {
			return err
		}
		defer prompter.Close()
		pc.Prompter = prompter
	}
	pseudo.Register(runner, pseudo.Clusters(pc)...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	logger.Info("run started", "run_id", runID, "tests", b.Count())
	result := runner.Run(ctx, b)
	logger.Info("run finished", "run_id", runID, "duration", result.Duration, "failed", result.Failed())

	if err := writeReport(ro, out, result); err != nil {
		return err
	}
	if err := b.Err(); err != nil {
		return err
	}
	if !result.Passed() {
		return fmt.Errorf("%d of %d tests failed", result.Failed(), len(result.Tests))
	}
	return ctx.Err()
}

func writeReport(ro *runnerOptions, out io.Writer, result *engine.RunResult) error {
	if ro.report == "" {
		return nil
	}
	w := out
	if ro.reportFile != "" {
		f, err := os.Create(ro.reportFile)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}
	rep, err := reporter.New(ro.report, w, ro.verbose)
	if err != nil {
		return err
	}
	return rep.ReportRun(result)
}
