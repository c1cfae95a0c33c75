package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/tally/packages/capture"
	"github.com/abdul-hamid-achik/tally/packages/core/config"
	"github.com/abdul-hamid-achik/tally/packages/core/runner"
	"github.com/abdul-hamid-achik/tally/packages/core/suite"
	"github.com/abdul-hamid-achik/tally/packages/export/metrics"
	"github.com/abdul-hamid-achik/tally/packages/history"
	"github.com/abdul-hamid-achik/tally/packages/notify"
	"github.com/abdul-hamid-achik/tally/packages/output"
	"github.com/abdul-hamid-achik/tally/packages/reporter"
	"github.com/abdul-hamid-achik/tally/packages/result"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run suite files",
	Long: `Run the tests defined in suite files. Directories are searched for
suite.yaml, suite.yml, *.suite.yaml and *.suite.yml.

Output written by each command is captured and printed only when the test
fails, framed between ">> begin captured stdout <<" and
">> end captured stdout <<".

Examples:
  tally run suite.yaml
  tally run ./suites/ -v
  tally run suite.yaml -s
  tally run ./suites/ -o junit,json --output-dir reports/
  tally run ./suites/ --notify slack --notify-on recovery --history .tally.db`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	configFlag     string
	envFileFlag    string
	filterFlag     string
	shellFlag      string
	verboseFlag    int
	quietFlag      bool
	noColorFlag    bool
	noCaptureFlag  bool
	captureTeeFlag bool
	maxCaptureFlag int
	durationsFlag  int
	bailFlag       bool
	rateFlag       float64
	watchFlag      bool
	updateSnapFlag bool

	// Report flags
	outputFlag    string
	outputDirFlag string

	// Metrics flags
	metricsFlag     string
	metricsFileFlag string
	metricsAddrFlag string

	// Notification flags
	notifyFlag       string
	notifyOnFlag     string
	slackWebhookFlag string
	slackChannelFlag string
	teamsWebhookFlag string

	historyFlag string
)

func init() {
	// Core flags
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("TALLY_CONFIG", ""), "Path to config file (env: TALLY_CONFIG)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("TALLY_ENV_FILE", ""), "Extra .env file loaded after each suite's own (env: TALLY_ENV_FILE)")
	runCmd.Flags().StringVarP(&filterFlag, "filter", "k", "", "Run only tests whose name matches the pattern")
	runCmd.Flags().StringVar(&shellFlag, "shell", getEnvString("TALLY_SHELL", ""), "Shell used to run commands (default sh) (env: TALLY_SHELL)")

	// Capture flags
	runCmd.Flags().BoolVarP(&noCaptureFlag, "nocapture", "s", false, "Do not capture output; let it through as tests run (env: "+config.NoCaptureEnv+")")
	runCmd.Flags().BoolVar(&captureTeeFlag, "capture-tee", getEnvBool("TALLY_CAPTURE_TEE", false), "Show output as tests run and still attach it to failures (env: TALLY_CAPTURE_TEE)")
	runCmd.Flags().IntVar(&maxCaptureFlag, "max-capture-bytes", getEnvInt("TALLY_MAX_CAPTURE_BYTES", 0), "Keep only the last N bytes captured per test (env: TALLY_MAX_CAPTURE_BYTES)")

	// Output flags
	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v names each test, -vv adds debug logs)")
	runCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", getEnvBool("TALLY_QUIET", false), "Print only the report and the verdict (env: TALLY_QUIET)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("TALLY_NO_COLOR", false), "Disable colored output (env: TALLY_NO_COLOR)")
	runCmd.Flags().IntVar(&durationsFlag, "durations", getEnvInt("TALLY_DURATIONS", 0), "List the N slowest tests (env: TALLY_DURATIONS)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("TALLY_OUTPUT", ""), "Structured reports: "+strings.Join(output.Formats(), ", ")+" (env: TALLY_OUTPUT)")
	runCmd.Flags().StringVar(&outputDirFlag, "output-dir", getEnvString("TALLY_OUTPUT_DIR", ""), "Write each report to a file in this directory (default: stdout) (env: TALLY_OUTPUT_DIR)")

	// Execution flags
	runCmd.Flags().BoolVarP(&bailFlag, "bail", "x", getEnvBool("TALLY_BAIL", false), "Block the rest of a suite after its first failure (env: TALLY_BAIL)")
	runCmd.Flags().Float64Var(&rateFlag, "rate", 0, "Start at most N tests per second")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch suite files for changes and re-run")
	runCmd.Flags().BoolVarP(&updateSnapFlag, "update-snapshots", "u", false, "Write new and changed snapshots instead of failing")

	// Metrics flags
	runCmd.Flags().StringVar(&metricsFlag, "metrics", getEnvString("TALLY_METRICS", ""), "Metrics export format: "+strings.Join(metrics.Formats, ", ")+" (env: TALLY_METRICS)")
	runCmd.Flags().StringVar(&metricsFileFlag, "metrics-file", getEnvString("TALLY_METRICS_FILE", ""), "Output file for metrics (env: TALLY_METRICS_FILE)")
	runCmd.Flags().StringVar(&metricsAddrFlag, "metrics-addr", getEnvString("TALLY_METRICS_ADDR", ""), "Serve Prometheus metrics on this address, e.g. :9090 (env: TALLY_METRICS_ADDR)")

	// Notification flags
	runCmd.Flags().StringVar(&notifyFlag, "notify", getEnvString("TALLY_NOTIFY", ""), "Notification service: slack, teams (env: TALLY_NOTIFY)")
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("TALLY_NOTIFY_ON", ""), "When to notify: always, failure, success, recovery (env: TALLY_NOTIFY_ON)")
	runCmd.Flags().StringVar(&slackWebhookFlag, "slack-webhook", getEnvString("SLACK_WEBHOOK", ""), "Slack webhook URL (env: SLACK_WEBHOOK)")
	runCmd.Flags().StringVar(&slackChannelFlag, "slack-channel", getEnvString("SLACK_CHANNEL", ""), "Slack channel override (env: SLACK_CHANNEL)")
	runCmd.Flags().StringVar(&teamsWebhookFlag, "teams-webhook", getEnvString("TEAMS_WEBHOOK", ""), "Microsoft Teams webhook URL (env: TEAMS_WEBHOOK)")

	runCmd.Flags().StringVar(&historyFlag, "history", getEnvString("TALLY_HISTORY", ""), "SQLite file recording every run (env: TALLY_HISTORY)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// flagConfig holds what the command line sets, ready to merge over the
// config file.
func flagConfig(cmd *cobra.Command) *config.Config {
	c := &config.Config{
		Reporters:       splitList(outputFlag),
		OutputDir:       outputDirFlag,
		Durations:       durationsFlag,
		MaxCaptureBytes: maxCaptureFlag,
		History:         historyFlag,
		Notify: config.NotifyConfig{
			On:           notifyOnFlag,
			SlackWebhook: slackWebhookFlag,
			SlackChannel: slackChannelFlag,
			TeamsWebhook: teamsWebhookFlag,
		},
		Metrics: config.MetricsConfig{
			Format: metricsFlag,
			File:   metricsFileFlag,
		},
	}
	flags := cmd.Flags()
	if noCaptureFlag {
		c.Capture = config.BoolPtr(false)
	}
	if captureTeeFlag || flags.Changed("capture-tee") {
		c.CaptureTee = config.BoolPtr(captureTeeFlag)
	}
	if noColorFlag || flags.Changed("no-color") {
		c.NoColor = config.BoolPtr(noColorFlag)
	}
	return c
}

// verbosity maps -v and -q onto the report verbosity and the log level.
func verbosity(base int) (int, slog.Level) {
	switch {
	case quietFlag:
		return 0, slog.LevelError
	case verboseFlag >= 2:
		return 2, slog.LevelDebug
	case verboseFlag == 1:
		return 2, slog.LevelInfo
	default:
		return base, slog.LevelWarn
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// session is the state that outlives a single run in watch mode.
type session struct {
	cfg       *config.Config
	verbosity int
	logger    *slog.Logger
	stdout    io.Writer
	stderr    io.Writer

	store      *history.Store
	notifier   *notify.Manager
	prometheus *metrics.PrometheusExporter
}

func runCommand(cmd *cobra.Command, args []string) error {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	cfg := fileConfig.Merge(flagConfig(cmd)).ApplyEnv(os.Getenv)

	level, logLevel := verbosity(cfg.Verbosity)
	s := &session{
		cfg:       cfg,
		verbosity: level,
		logger:    newLogger(cmd.ErrOrStderr(), logLevel),
		stdout:    cmd.OutOrStdout(),
		stderr:    cmd.ErrOrStderr(),
	}
	slog.SetDefault(s.logger)

	if err := s.open(); err != nil {
		return err
	}
	defer s.close()

	files, err := collectFiles(args)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	if len(files) == 0 {
		return exitWith(ExitUsageError, fmt.Errorf("no suite files found in %s", strings.Join(args, ", ")))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ok, err := s.execute(ctx, files)
	if !watchFlag {
		if err != nil {
			return err
		}
		if !ok {
			return exitWith(ExitTestFailure, nil)
		}
		return nil
	}
	if err != nil {
		s.logger.Error("run failed", "err", err)
	}
	return s.watch(ctx, args, files)
}

// open validates the reporting flags and sets up what every run shares.
func (s *session) open() error {
	if _, err := regexp.Compile(filterFlag); err != nil {
		return exitWith(ExitUsageError, fmt.Errorf("invalid --filter: %w", err))
	}
	for _, name := range s.cfg.Reporters {
		if _, err := output.New(name); err != nil {
			return exitWith(ExitUsageError, err)
		}
	}
	if s.cfg.OutputDir != "" {
		if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
			return exitWith(ExitConfigError, fmt.Errorf("cannot create output directory: %w", err))
		}
	}

	manager, err := s.notifyManager()
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	s.notifier = manager

	if s.cfg.History != "" {
		store, err := history.Open(s.cfg.History)
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
		s.store = store
		if s.notifier != nil {
			last, err := store.Last(context.Background())
			switch {
			case err == nil:
				s.notifier.SetLastState(last.Successful)
			case !errors.Is(err, history.ErrNoRuns):
				s.logger.Warn("cannot read last run", "err", err)
			}
		}
	}

	if metricsAddrFlag != "" {
		s.prometheus = metrics.NewPrometheusExporter(
			metrics.WithPrometheusHTTP(metricsAddrFlag),
			metrics.WithPrometheusLogger(s.logger),
		)
	}
	if s.cfg.Metrics.Format != "" {
		if _, err := metrics.NewExporter(s.cfg.Metrics.Format, "", io.Discard); err != nil {
			return exitWith(ExitUsageError, err)
		}
	}
	return nil
}

func (s *session) close() {
	if s.prometheus != nil {
		if err := s.prometheus.Close(); err != nil {
			s.logger.Warn("failed to stop metrics server", "err", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("failed to close history", "err", err)
		}
	}
}

func (s *session) notifyManager() (*notify.Manager, error) {
	services := splitList(notifyFlag)
	if len(services) == 0 {
		// webhooks set in the config file turn notifications on
		if s.cfg.Notify.SlackWebhook != "" {
			services = append(services, "slack")
		}
		if s.cfg.Notify.TeamsWebhook != "" {
			services = append(services, "teams")
		}
	}
	if len(services) == 0 {
		return nil, nil
	}

	on, err := notify.ParseNotifyOn(s.cfg.Notify.On)
	if err != nil {
		return nil, err
	}
	manager := notify.NewManager(on)
	for _, service := range services {
		switch strings.ToLower(service) {
		case "slack":
			if s.cfg.Notify.SlackWebhook == "" {
				return nil, fmt.Errorf("--slack-webhook is required when using --notify slack")
			}
			var opts []notify.SlackOption
			if s.cfg.Notify.SlackChannel != "" {
				opts = append(opts, notify.WithSlackChannel(s.cfg.Notify.SlackChannel))
			}
			manager.AddNotifier(notify.NewSlackNotifier(s.cfg.Notify.SlackWebhook, opts...))
		case "teams":
			if s.cfg.Notify.TeamsWebhook == "" {
				return nil, fmt.Errorf("--teams-webhook is required when using --notify teams")
			}
			manager.AddNotifier(notify.NewTeamsNotifier(s.cfg.Notify.TeamsWebhook))
		default:
			return nil, fmt.Errorf("unknown notification service %q (supported: slack, teams)", service)
		}
	}
	return manager, nil
}

// reports builds the structured report hooks for one run. The returned
// function closes any files they write to.
func (s *session) reports(runID string) ([]result.ReportHook, func(), error) {
	var hooks []result.ReportHook
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			if err := f.Close(); err != nil {
				s.logger.Warn("failed to close report", "file", f.Name(), "err", err)
			}
		}
	}

	for _, name := range s.cfg.Reporters {
		opts := []output.Option{output.WithRunID(runID), output.WithWriter(s.stdout)}
		if s.cfg.OutputDir != "" {
			probe, err := output.New(name)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			path := filepath.Join(s.cfg.OutputDir, "tally-report"+probe.Extension())
			f, err := os.Create(path)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("cannot create report file: %w", err)
			}
			files = append(files, f)
			opts = append(opts, output.WithWriter(f))
		}
		f, err := output.New(name, opts...)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		hooks = append(hooks, f)
	}
	return hooks, closeAll, nil
}

// execute runs files once and reports whether the run was successful.
func (s *session) execute(ctx context.Context, files []string) (bool, error) {
	suites := make([]*suite.Suite, 0, len(files))
	for _, file := range files {
		st, err := suite.Load(file)
		if err != nil {
			return false, exitWith(ExitParseError, err)
		}
		suites = append(suites, st)
	}

	rep := reporter.New(
		reporter.WithLogger(s.logger),
		reporter.WithCapture(s.cfg.GetCapture()),
		reporter.WithCaptureOptions(
			capture.WithTee(s.cfg.GetCaptureTee()),
			capture.WithMaxBytes(s.cfg.MaxCaptureBytes),
		),
		reporter.WithResultOptions(
			result.WithWriter(s.stderr),
			result.WithVerbosity(s.verbosity),
			result.WithNoColor(s.cfg.GetNoColor()),
			result.WithDescriptions(s.cfg.GetDescriptions()),
			result.WithSlowest(s.cfg.Durations),
		),
	)

	hooks, closeReports, err := s.reports(rep.RunID())
	if err != nil {
		return false, exitWith(ExitConfigError, err)
	}
	defer closeReports()
	for _, h := range hooks {
		rep.AddHook(h)
	}

	var envFiles []string
	if envFileFlag != "" {
		envFiles = append(envFiles, envFileFlag)
	}
	r := runner.NewRunner(rep, &runner.Config{
		Shell:           shellFlag,
		NameFilter:      filterFlag,
		Bail:            bailFlag,
		Rate:            rateFlag,
		EnvFiles:        envFiles,
		UpdateSnapshots: updateSnapFlag,
		Logger:          s.logger,
	})

	runErr := func() error {
		rep.Begin()
		defer rep.Finalize()
		for _, st := range suites {
			res, err := r.RunSuite(ctx, st)
			if err != nil {
				return fmt.Errorf("%s: %w", st.DisplayName(), err)
			}
			s.logger.Info("suite finished", "suite", res.Suite, "passed", res.Passed, "failed", res.Failed,
				"skipped", res.Skipped, "blocked", res.Blocked, "duration", res.Duration)
		}
		return nil
	}()

	rep.PrintErrors()
	rep.PrintSummary(rep.Started(), rep.Stopped())

	s.afterRun(rep)

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return false, exitWith(ExitTestFailure, runErr)
		}
		return false, exitWith(ExitConfigError, runErr)
	}
	return rep.WasSuccessful(), nil
}

// afterRun exports metrics, records history and sends notifications.
// Failures here are logged; they never change the verdict.
func (s *session) afterRun(rep *reporter.Reporter) {
	agg := rep.Result()
	duration := rep.Stopped().Sub(rep.Started())

	var exporters []metrics.Exporter
	if s.cfg.Metrics.Format != "" {
		exp, err := metrics.NewExporter(s.cfg.Metrics.Format, s.cfg.Metrics.File, s.stdout)
		if err != nil {
			s.logger.Warn("metrics disabled", "err", err)
		} else {
			exporters = append(exporters, exp)
		}
	}
	if s.prometheus != nil {
		exporters = append(exporters, s.prometheus)
	}
	if len(exporters) > 0 {
		collector := metrics.NewCollector(exporters...)
		collector.Observe(agg, rep.RunID())
		if err := collector.Flush(); err != nil {
			s.logger.Warn("failed to export metrics", "err", err)
		}
		// the shared Prometheus exporter stays up until the session ends
		if s.cfg.Metrics.Format != "" {
			if err := exporters[0].Close(); err != nil {
				s.logger.Warn("failed to close metrics exporter", "err", err)
			}
		}
	}

	if s.store != nil {
		run := history.NewRun(rep.RunID(), rep.Started(), rep.Stopped(), agg)
		if err := s.store.Record(context.Background(), run); err != nil {
			s.logger.Warn("failed to record run", "err", err)
		}
	}

	if s.notifier != nil {
		summary := notify.FromAggregator(agg, rep.RunID(), duration)
		if err := s.notifier.Notify(summary); err != nil {
			s.logger.Warn("failed to send notification", "err", err)
		}
	}
}

func (s *session) watch(ctx context.Context, args, files []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Add files and directories to watch
	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				s.logger.Warn("failed to watch directory", "dir", dir, "err", err)
			}
			watchedDirs[dir] = true
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() && !watchedDirs[path] {
					_ = watcher.Add(path)
					watchedDirs[path] = true
				}
				return nil
			})
		}
	}

	fmt.Fprintf(s.stderr, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	triggers := watchTriggers(args)

	// Debounce timer for rapid file changes
	var debounce <-chan time.Time
	var changed string

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if triggers(event.Name) {
					changed = event.Name
					debounce = time.After(WatchDebounceDelay)
				}
			}

		case <-debounce:
			debounce = nil
			fmt.Fprintf(s.stderr, "\n\nFile changed: %s\nRe-running tests...\n\n", changed)

			current, err := collectFiles(args)
			if err != nil {
				s.logger.Error("cannot collect suites", "err", err)
				continue
			}
			if _, err := s.execute(ctx, current); err != nil {
				s.logger.Error("run failed", "err", err)
			}
			fmt.Fprintf(s.stderr, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "err", err)
		}
	}
}

// watchTriggers reports which changed paths re-run the suites: suite files
// found in watched directories and every file named explicitly in args.
func watchTriggers(args []string) func(string) bool {
	explicit := make(map[string]bool)
	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && !info.IsDir() {
			explicit[absPath(arg)] = true
		}
	}
	return func(path string) bool {
		return isSuiteFile(path) || explicit[absPath(path)]
	}
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && isSuiteFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else {
			// explicit files are taken as suites whatever their name
			files = append(files, arg)
		}
	}

	return files, nil
}

func isSuiteFile(path string) bool {
	base := filepath.Base(path)
	switch {
	case base == "suite.yaml", base == "suite.yml":
		return true
	case strings.HasSuffix(base, ".suite.yaml"), strings.HasSuffix(base, ".suite.yml"):
		return true
	}
	return false
}
