package gdpull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"github.com/mashiike/gcreds4aws"
	"github.com/mashiike/slogutils"
	"github.com/mattn/go-isatty"
)

// CLI is the command-line interface for gdpull.
//
// Use the Run method to execute the CLI:
//
//	var cli gdpull.CLI
//	ctx := context.Background()
//	exitCode := cli.Run(ctx)
//
// Available commands:
//   - pull: Download the contents of a folder (default)
//   - resolve: Print the id of a folder
//   - list: List the contents of a folder
//   - serve: Start the HTTP server
//   - validate: Validate a rules file
type CLI struct {
	LogLevel    string            `help:"log level" default:"info" env:"GDPULL_LOG_LEVEL"`
	LogFormat   string            `help:"log format" default:"text" enum:"text,json" env:"GDPULL_LOG_FORMAT"`
	LogColor    bool              `help:"enable color output" default:"true" env:"GDPULL_LOG_COLOR" negatable:""`
	Version     kong.VersionFlag  `help:"show version"`
	Credentials CredentialsOption `embed:"" prefix:"credentials-"`
	Observer    ObserverOption    `embed:"" prefix:"observer-"`
	AppOption   `embed:""`

	Pull     PullOption     `cmd:"" help:"download the contents of a folder" default:"withargs"`
	Resolve  ResolveOption  `cmd:"" help:"resolve a folder name to its id"`
	List     ListOption     `cmd:"" help:"list the contents of a folder"`
	Serve    ServeOption    `cmd:"" help:"serve pull requests over HTTP"`
	Validate ValidateOption `cmd:"" help:"validate a rules file"`
}

// PullOption contains options for the pull command.
type PullOption struct {
	Folder      string     `arg:"" name:"folder" help:"folder id or folder name"`
	Destination string     `arg:"" name:"destination" optional:"" default:"./downloads" help:"local destination directory"`
	Sink        SinkOption `embed:"" prefix:"s3-"`
	Output      io.Writer  `kong:"-"`
}

// ResolveOption contains options for the resolve command.
type ResolveOption struct {
	Folder string    `arg:"" name:"folder" help:"folder id or folder name"`
	Output io.Writer `kong:"-"`
}

// ListOption contains options for the list command.
type ListOption struct {
	Folder string    `arg:"" name:"folder" help:"folder id or folder name"`
	Output io.Writer `kong:"-"`
}

// ValidateOption contains options for the validate command.
type ValidateOption struct {
	Rules string `arg:"" name:"rules-file" optional:"" help:"path to rules file (overrides --rules)"`
}

// Run parses command-line arguments and executes the appropriate command.
// Returns 0 on success, 1 on error.
func (c *CLI) Run(ctx context.Context) int {
	k := kong.Parse(c,
		kong.Name("gdpull"),
		kong.Description("gdpull downloads the contents of a Google Drive folder."),
		kong.UsageOnError(),
		kong.Vars{"version": Version},
	)
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		k.Fatalf("invalid log level: %s", c.LogLevel)
	}
	logger := newLogger(logLevel, c.LogFormat, c.LogColor)
	slog.SetDefault(logger)
	if err := c.run(ctx, k.Command()); err != nil {
		reportError(ctx, err)
		return 1
	}
	return 0
}

func (c *CLI) run(ctx context.Context, command string) error {
	cmd, _, _ := strings.Cut(command, " ")
	// validate command doesn't need App initialization
	if cmd == "validate" {
		return c.runValidate(ctx)
	}
	app, err := c.newApp(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.WarnContext(ctx, "app cleanup error", "details", err)
		}
		if c.Credentials.Type == CredentialsTypeAWS {
			if err := gcreds4aws.Close(); err != nil {
				slog.WarnContext(ctx, "gcreds cleanup error", "details", err)
			}
		}
	}()
	switch cmd {
	case "pull", "":
		return c.runPull(ctx, app)
	case "resolve":
		folder, err := app.Resolve(ctx, c.Resolve.Folder)
		if err != nil {
			return err
		}
		fmt.Fprintln(coalesceWriter(c.Resolve.Output), folder.ID)
		return nil
	case "list":
		return app.List(ctx, c.List.Folder, coalesceWriter(c.List.Output))
	case "serve":
		return app.Serve(ctx, c.Serve)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func (c *CLI) newApp(ctx context.Context) (*App, error) {
	gcpOpts, err := NewAuthenticator(c.Credentials, os.Stderr).ClientOptions(ctx)
	if err != nil {
		return nil, err
	}
	observer, err := NewObserver(ctx, c.Observer)
	if err != nil {
		return nil, fmt.Errorf("create Observer: %w", err)
	}
	app, err := New(c.AppOption, observer, gcpOpts...)
	if err != nil {
		return nil, err
	}
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		app.SetChooser(&PromptChooser{In: os.Stdin, Out: os.Stderr})
	}
	return app, nil
}

func (c *CLI) runPull(ctx context.Context, app *App) error {
	sink, err := NewSink(ctx, c.Pull.Sink, c.Pull.Destination)
	if err != nil {
		return err
	}
	result, err := app.Pull(ctx, c.Pull.Folder, sink)
	if err != nil {
		if result != nil {
			printSummary(coalesceWriter(c.Pull.Output), result)
		}
		return err
	}
	if result.Attempted == 0 {
		slog.WarnContext(ctx, "no files found in folder, nothing downloaded", "folder", c.Pull.Folder)
		return nil
	}
	printSummary(coalesceWriter(c.Pull.Output), result)
	return nil
}

func printSummary(w io.Writer, result *PullResult) {
	fmt.Fprintf(w, "%d/%d files downloaded successfully", result.Succeeded, result.Attempted)
	if result.Skipped > 0 || result.Failed > 0 {
		fmt.Fprintf(w, " (%d skipped, %d failed)", result.Skipped, result.Failed)
	}
	fmt.Fprintln(w)
	for _, fr := range result.Files {
		if fr.Outcome == OutcomeFailed {
			fmt.Fprintf(w, "  failed: %s: %s\n", fr.File.Name, fr.Err)
		}
	}
}

func reportError(ctx context.Context, err error) {
	var (
		cfgErr    *ConfigurationError
		destErr   *DestinationError
		notFound  *FolderNotFoundError
		ambiguous *AmbiguousFolderError
	)
	switch {
	case errors.As(err, &cfgErr):
		slog.ErrorContext(ctx, "invalid credentials configuration", "details", err)
	case errors.As(err, &destErr):
		slog.ErrorContext(ctx, "cannot prepare destination", "path", destErr.Path, "details", destErr.Err)
	case errors.As(err, &notFound):
		slog.ErrorContext(ctx, "folder not found", "folder", notFound.Identifier)
	case errors.As(err, &ambiguous):
		slog.ErrorContext(ctx, "folder name is ambiguous, specify the folder id instead", "folder", ambiguous.Identifier)
		for i, c := range ambiguous.Candidates {
			slog.ErrorContext(ctx, "candidate", "index", i+1, "id", c.ID, "name", c.Name)
		}
	case errors.Is(err, context.Canceled):
		slog.WarnContext(ctx, "interrupted", "details", err)
	default:
		slog.ErrorContext(ctx, "runtime error", "details", err)
	}
}

func coalesceWriter(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

func (c *CLI) runValidate(ctx context.Context) error {
	rulesPath := c.Validate.Rules
	if rulesPath == "" {
		rulesPath = c.Rules
	}
	if rulesPath == "" {
		return fmt.Errorf("no rules file specified; use --rules or provide a path as argument")
	}

	env, err := NewCELEnv()
	if err != nil {
		return fmt.Errorf("create CEL environment: %w", err)
	}

	slog.InfoContext(ctx, "validating pull rules", "path", rulesPath)
	rules, err := LoadPullRules(rulesPath, env)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	slog.InfoContext(ctx, "rules are valid", "rules", len(rules.Rules))
	for i, rule := range rules.Rules {
		slog.InfoContext(ctx, "rule validated",
			"index", i,
			"when", rule.When.Raw(),
			"when_is_expr", rule.When.IsExpr(),
			"skip", rule.Skip,
		)
	}

	fmt.Println("✓ Rules are valid")
	return nil
}

func newLogger(level slog.Level, format string, c bool) *slog.Logger {
	var f func(io.Writer, *slog.HandlerOptions) slog.Handler
	switch format {
	case "json":
		f = func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			return slog.NewJSONHandler(w, ho)
		}
	default:
		f = func(w io.Writer, ho *slog.HandlerOptions) slog.Handler {
			return slog.NewTextHandler(w, ho)
		}
	}
	var modifierFuncs map[slog.Level]slogutils.ModifierFunc
	if c {
		modifierFuncs = map[slog.Level]slogutils.ModifierFunc{
			slog.LevelDebug: slogutils.Color(color.FgBlack),
			slog.LevelInfo:  nil,
			slog.LevelWarn:  slogutils.Color(color.FgYellow),
			slog.LevelError: slogutils.Color(color.FgRed, color.Bold),
		}
	}
	var addSource bool
	if level == slog.LevelDebug {
		addSource = true
	}
	middleware := slogutils.NewMiddleware(
		f,
		slogutils.MiddlewareOptions{
			Writer:        os.Stderr,
			ModifierFuncs: modifierFuncs,
			HandlerOptions: &slog.HandlerOptions{
				Level:     level,
				AddSource: addSource,
			},
			RecordTransformerFuncs: []slogutils.RecordTransformerFunc{
				slogutils.ConvertLegacyLevel(
					map[string]slog.Level{
						"debug": slog.LevelDebug,
						"info":  slog.LevelInfo,
						"warn":  slog.LevelWarn,
						"error": slog.LevelError,
					},
					true,
				),
			},
		},
	)
	logger := slog.New(middleware)
	return logger
}
