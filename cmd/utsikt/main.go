package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/glamour"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/utsikt/internal/adapters/server"
	"github.com/hylla/utsikt/internal/adapters/storage/sqlite"
	"github.com/hylla/utsikt/internal/app"
	"github.com/hylla/utsikt/internal/config"
	"github.com/hylla/utsikt/internal/domain"
	"github.com/hylla/utsikt/internal/platform"
	"github.com/hylla/utsikt/internal/tui"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the HTTP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

// main handles main.
func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("utsikt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		dbPath     string
		appName    string
		devMode    bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("UTSIKT_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("UTSIKT_APP_NAME")); envApp != "" {
		appName = envApp
	} else {
		appName = "utsikt"
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&dbPath, "db", "", "path to sqlite database")
	fs.StringVar(&appName, "app", appName, "application name for config/data path resolution")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "utsikt %s\n", version)
		return nil
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: appName,
		DevMode: devMode,
	})
	if err != nil {
		return err
	}

	command := firstArg(fs.Args())
	switch command {
	case "paths":
		_, _ = fmt.Fprintf(stdout, "app: %s\n", appName)
		_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", devMode)
		_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
		_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
		_, _ = fmt.Fprintf(stdout, "db: %s\n", paths.DBPath)
		return nil
	case "", "serve", "views", "show", "describe", "people", "feed", "create-item", "create-view", "grant":
		// Continue.
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	dbOverridden := strings.TrimSpace(dbPath) != ""
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("UTSIKT_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("UTSIKT_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	defaultCfg := config.Default(dbPath)
	cfg, err := config.Load(configPath, defaultCfg)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}

	logger, err := newRuntimeLogger(stderr, appName, devMode, cfg.Logging, time.Now)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Close()
	}()

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %q: %w", cfg.Database.Path, err)
	}
	defer func() {
		_ = repo.Close()
	}()

	svc := app.NewService(repo, repo, nil, uuid.NewString, time.Now, app.Config{
		RootViewName:     cfg.Views.RootName,
		DefaultAuthScope: cfg.Auth.DefaultScope,
		FeedLimit:        cfg.Feed.Limit,
	})
	if _, err := svc.EnsureRootView(ctx); err != nil {
		return fmt.Errorf("ensure root view: %w", err)
	}

	rest := restArgs(fs.Args())
	switch command {
	case "":
		return runDashboard(svc, logger)
	case "serve":
		return runServe(ctx, svc, cfg, logger)
	case "views":
		return runViews(ctx, svc, stdout)
	case "show":
		return runShow(ctx, svc, stdout, rest)
	case "describe":
		return runDescribe(ctx, svc, stdout, rest)
	case "people":
		return runPeople(ctx, svc, stdout, rest)
	case "feed":
		return runFeed(ctx, svc, stdout, rest)
	case "create-item":
		return runCreateItem(ctx, svc, stdout, rest)
	case "create-view":
		return runCreateView(ctx, svc, stdout, rest)
	case "grant":
		return runGrant(ctx, repo, stdout, rest)
	}
	return nil
}

// runDashboard launches the interactive people dashboard.
func runDashboard(svc *app.Service, logger *runtimeLogger) error {
	// The TUI owns the terminal; console logging would corrupt frames.
	logger.SetConsoleEnabled(false)
	defer logger.SetConsoleEnabled(true)

	model := tui.NewModel(svc)
	if _, err := programFactory(model).Run(); err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}

// runServe builds the search index and serves the HTTP API.
func runServe(ctx context.Context, svc *app.Service, cfg config.Config, logger *runtimeLogger) error {
	index := app.NewSearchIndex()
	views, err := svc.ListViews(ctx)
	if err != nil {
		return err
	}
	for _, view := range views {
		if err := svc.ContributeSearchIndex(ctx, index, view.Name); err != nil {
			return fmt.Errorf("index view %q: %w", view.Name, err)
		}
	}

	logger.Info("starting http server", "bind", cfg.Server.Bind, "api", cfg.Server.APIEndpoint, "views", len(views))
	return serveCommandRunner(ctx, serveradapter.Config{
		HTTPBind:    cfg.Server.Bind,
		APIEndpoint: cfg.Server.APIEndpoint,
	}, serveradapter.Dependencies{
		Service: svc,
		Search:  index,
	})
}

// runViews prints the view registry ordered by name.
func runViews(ctx context.Context, svc *app.Service, stdout io.Writer) error {
	views, err := svc.ListViews(ctx)
	if err != nil {
		return err
	}
	for _, view := range views {
		marker := " "
		if view.Root {
			marker = "*"
		}
		_, _ = fmt.Fprintf(stdout, "%s %-20s /%s\n", marker, view.DisplayName(), view.URL())
	}
	return nil
}

// runShow renders one view's description and membership.
func runShow(ctx context.Context, svc *app.Service, stdout io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: utsikt show <view>")
	}
	view, err := svc.GetView(ctx, args[0])
	if err != nil {
		return err
	}
	items, err := svc.Items(ctx, view.Name)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(stdout, "%s\n", view.DisplayName())
	if desc := renderMarkdown(view.Description); desc != "" {
		_, _ = fmt.Fprintf(stdout, "%s\n", desc)
	}
	_, _ = fmt.Fprintf(stdout, "\n%d item(s):\n", len(items))
	for _, item := range items {
		_, _ = fmt.Fprintf(stdout, "  %-20s /%s\n", item.Name, item.URL())
	}
	return nil
}

// runDescribe replaces one view's description markdown.
func runDescribe(ctx context.Context, svc *app.Service, stdout io.Writer, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: utsikt describe <view> <description>")
	}
	view, err := svc.UpdateViewDescription(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "updated %s\n", view.DisplayName())
	return nil
}

// runPeople prints the contributor activity index of one view.
func runPeople(ctx context.Context, svc *app.Service, stdout io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: utsikt people <view>")
	}
	people, err := svc.People(ctx, args[0])
	if err != nil {
		return err
	}
	if len(people) == 0 {
		_, _ = fmt.Fprintln(stdout, "no recorded changes")
		return nil
	}
	for _, row := range people {
		_, _ = fmt.Fprintf(stdout, "%-20s %-24s %s\n", row.User, row.Job, row.LastChange.Format(time.RFC3339))
	}
	return nil
}

// runFeed prints one view's build feed, newest first.
func runFeed(ctx context.Context, svc *app.Service, stdout io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: utsikt feed <view> [all|failed]")
	}
	filter := app.FeedAll
	if len(args) > 1 {
		parsed, err := app.ParseFeedFilter(args[1])
		if err != nil {
			return err
		}
		filter = parsed
	}
	feed, err := svc.BuildFeed(ctx, args[0], filter)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "%s (/%s)\n", feed.Title, feed.Link)
	for _, build := range feed.Builds {
		_, _ = fmt.Fprintf(stdout, "  %s #%d %-10s %s\n", build.Job, build.Number, build.Result, build.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// runCreateItem creates an item through a view's permission gate.
func runCreateItem(ctx context.Context, svc *app.Service, stdout io.Writer, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: utsikt create-item <view> <principal> <name> [description]")
	}
	description := ""
	if len(args) > 3 {
		description = strings.Join(args[3:], " ")
	}
	item, err := svc.CreateItem(ctx, app.CreateItemInput{
		View:        args[0],
		Principal:   args[1],
		Name:        args[2],
		Description: description,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "created %s at /%s\n", item.Name, item.URL())
	return nil
}

// runCreateView registers a new named view.
func runCreateView(ctx context.Context, svc *app.Service, stdout io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: utsikt create-view <name> [description]")
	}
	description := ""
	if len(args) > 1 {
		description = strings.Join(args[1:], " ")
	}
	view, err := svc.CreateView(ctx, app.CreateViewInput{
		Name:        args[0],
		Description: description,
	})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(stdout, "created view %s at /%s\n", view.DisplayName(), view.URL())
	return nil
}

// runGrant records one authorization grant.
func runGrant(ctx context.Context, repo *sqlite.Repository, stdout io.Writer, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: utsikt grant <scope> <principal> <permission>")
	}
	grant, err := domain.NewGrant(uuid.NewString(), args[0], args[1], domain.Permission(args[2]), time.Now())
	if err != nil {
		return err
	}
	if err := repo.CreateGrant(ctx, grant); err != nil {
		return fmt.Errorf("store grant: %w", err)
	}
	_, _ = fmt.Fprintf(stdout, "granted %s to %s in scope %s\n", grant.Permission, grant.Principal, grant.Scope)
	return nil
}

// renderMarkdown converts markdown into ANSI-styled terminal text.
func renderMarkdown(markdown string) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// firstArg returns the first positional argument, if any.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}

// restArgs returns positional arguments after the command word.
func restArgs(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}

// parseBoolEnv reads a boolean environment toggle.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}

// runtimeLogger fans log events to a styled console sink and an optional dev-file sink.
type runtimeLogger struct {
	sinks          []*charmLog.Logger
	consoleSink    *charmLog.Logger
	consoleEnabled bool
	closeFile      func() error
	devLog         string
}

// newRuntimeLogger configures runtime log sinks from CLI/config state.
func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig, now func() time.Time) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}

	if now == nil {
		now = time.Now
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})

	logger := &runtimeLogger{
		sinks:          []*charmLog.Logger{consoleLogger},
		consoleSink:    consoleLogger,
		consoleEnabled: true,
	}
	if !devMode || !cfg.DevFile.Enabled {
		return logger, nil
	}

	devLogPath, err := devLogFilePath(cfg.DevFile.Dir, appName, now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}

	// Keep file output parseable and unstyled while preserving styled console logs.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// SetConsoleEnabled toggles whether the console sink receives runtime events.
func (l *runtimeLogger) SetConsoleEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.consoleEnabled = enabled
}

// shouldLogToSink reports whether one sink should receive runtime output.
func (l *runtimeLogger) shouldLogToSink(sink *charmLog.Logger) bool {
	if l == nil || sink == nil {
		return false
	}
	if sink == l.consoleSink && !l.consoleEnabled {
		return false
	}
	return true
}

// Debug logs a debug event to all configured sinks.
func (l *runtimeLogger) Debug(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Debug(msg, keyvals...)
	}
}

// Info logs an informational event to all configured sinks.
func (l *runtimeLogger) Info(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Info(msg, keyvals...)
	}
}

// Warn logs a warning event to all configured sinks.
func (l *runtimeLogger) Warn(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Warn(msg, keyvals...)
	}
}

// Error logs an error event to all configured sinks.
func (l *runtimeLogger) Error(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Error(msg, keyvals...)
	}
}

// devLogFilePath resolves a dev log file path for the current run day.
func devLogFilePath(configDir, appName string, now time.Time) (string, error) {
	baseDir := strings.TrimSpace(configDir)
	if baseDir == "" {
		baseDir = ".utsikt/log"
	}
	if !filepath.IsAbs(baseDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		baseDir = filepath.Join(cwd, baseDir)
	}
	fileName := fmt.Sprintf("%s-%s.log", appName, now.Format("20060102"))
	return filepath.Join(filepath.Clean(baseDir), fileName), nil
}
