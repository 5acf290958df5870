package gdpull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/fujiwara/ridge"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// AppOption contains options shared by every command.
type AppOption struct {
	Rules string `name:"rules" help:"path to pull rules file (YAML with CEL expressions)" env:"GDPULL_RULES"`
}

// SinkOption selects an S3 destination instead of a local directory.
type SinkOption struct {
	Bucket string `name:"bucket" help:"S3 bucket name; when set files are uploaded to S3" env:"GDPULL_S3_BUCKET"`
	Prefix string `name:"prefix" help:"S3 key prefix" env:"GDPULL_S3_PREFIX"`
}

// App wires the Drive client, rules and observer together.
type App struct {
	client     *DriveClient
	observer   Observer
	rules      *PullRules
	chooser    Chooser
	newSink    func(ctx context.Context, opt SinkOption, destination string) (Sink, error)
	cleanupFns []func() error
}

// New creates a new App. observer may be nil.
func New(opt AppOption, observer Observer, gcpOpts ...option.ClientOption) (*App, error) {
	ctx := context.Background()
	driveSvc, err := drive.NewService(ctx, gcpOpts...)
	if err != nil {
		return nil, fmt.Errorf("create Google Drive Service: %w", err)
	}
	app := &App{
		client:   NewDriveClient(driveSvc),
		observer: observer,
		chooser:  NoChooser,
		newSink:  NewSink,
	}
	if closer, ok := observer.(interface{ Close(context.Context) error }); ok {
		app.cleanupFns = append(app.cleanupFns, func() error {
			return closer.Close(context.Background())
		})
	}
	if opt.Rules != "" {
		env, err := NewCELEnv()
		if err != nil {
			return nil, fmt.Errorf("create CEL environment: %w", err)
		}
		rules, err := LoadPullRules(opt.Rules, env)
		if err != nil {
			return nil, fmt.Errorf("load pull rules: %w", err)
		}
		slog.InfoContext(ctx, "pull rules enabled", "path", opt.Rules, "rules", len(rules.Rules))
		app.rules = rules
	}
	return app, nil
}

// SetChooser sets the chooser used when a folder name is ambiguous.
func (app *App) SetChooser(chooser Chooser) {
	if chooser == nil {
		chooser = NoChooser
	}
	app.chooser = chooser
}

// Close runs registered cleanup functions.
func (app *App) Close() error {
	eg, ctx := errgroup.WithContext(context.Background())
	for i, cleanup := range app.cleanupFns {
		eg.Go(func() error {
			slog.DebugContext(ctx, "start cleanup", "index", i)
			if err := cleanup(); err != nil {
				slog.DebugContext(ctx, "error cleanup", "index", i, "error", err)
				return err
			}
			slog.DebugContext(ctx, "end cleanup", "index", i)
			return nil
		})
	}
	return eg.Wait()
}

func (app *App) resolver() *FolderResolver {
	return NewFolderResolver(app.client, app.chooser)
}

// NewSink returns an S3Sink when opt names a bucket, a LocalSink for destination otherwise.
func NewSink(ctx context.Context, opt SinkOption, destination string) (Sink, error) {
	if opt.Bucket == "" {
		return NewLocalSink(destination), nil
	}
	awsCfg, err := loadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3Sink(awsCfg, opt.Bucket, opt.Prefix), nil
}

// Pull copies the folder named by identifier into sink.
func (app *App) Pull(ctx context.Context, identifier string, sink Sink) (*PullResult, error) {
	return app.pull(ctx, identifier, sink, app.chooser)
}

func (app *App) pull(ctx context.Context, identifier string, sink Sink, chooser Chooser) (*PullResult, error) {
	resolver := NewFolderResolver(app.client, chooser)
	puller := NewPuller(app.client, resolver, NewMaterializer(app.client, app.rules), app.observer)
	slog.InfoContext(ctx, "start pull", "folder", identifier, "destination", sink.String())
	return puller.Pull(ctx, identifier, sink)
}

// Resolve resolves identifier to a folder.
func (app *App) Resolve(ctx context.Context, identifier string) (*FolderRef, error) {
	return app.resolver().Resolve(ctx, identifier)
}

// List writes the children of the folder named by identifier as a table.
func (app *App) List(ctx context.Context, identifier string, w io.Writer) error {
	folder, err := app.Resolve(ctx, identifier)
	if err != nil {
		return err
	}
	files, err := app.client.ListChildren(ctx, folder)
	if err != nil {
		return fmt.Errorf("list folder %s: %w", folder.ID, err)
	}
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "MIME Type", "Size", "Action")
	for _, f := range files {
		if err := table.Append([]string{f.ID, f.Name, f.MimeType, formatSize(f.Size), plannedAction(f)}); err != nil {
			return fmt.Errorf("render table: %w", err)
		}
	}
	return table.Render()
}

func formatSize(size int64) string {
	if size == 0 {
		return "-"
	}
	return strconv.FormatInt(size, 10)
}

// plannedAction describes what a pull would do with f, based on the listing snapshot.
func plannedAction(f *RemoteFile) string {
	if !IsNativeMimeType(f.MimeType) {
		return "download"
	}
	format, ok := LookupExportFormat(f.MimeType)
	if !ok {
		return "skip"
	}
	return "export " + strings.TrimPrefix(format.Extension, ".")
}

// ServeOption contains options for the serve command.
type ServeOption struct {
	Port            int        `help:"http server port" default:"8080" env:"GDPULL_PORT"`
	BaseDestination string     `help:"base directory HTTP destinations are relative to" default:"./downloads" env:"GDPULL_BASE_DESTINATION"`
	Sink            SinkOption `embed:"" prefix:"s3-"`
}

// Serve runs the HTTP surface, locally or on AWS Lambda.
func (app *App) Serve(ctx context.Context, opt ServeOption) error {
	if isLambda() {
		slog.InfoContext(ctx, "run on lambda")
		lambda.StartWithOptions(app.LambdaHandler(opt), lambda.WithContext(ctx))
		return nil
	}
	addr := fmt.Sprintf(":%d", opt.Port)
	slog.InfoContext(ctx, "starting server", "addr", addr)
	ridge.RunWithContext(ctx, addr, "/", app.Handler(opt))
	return nil
}

// destinationFor joins a request destination to the configured base.
// Absolute paths and paths escaping the base are rejected.
func destinationFor(opt ServeOption, requested string) (string, error) {
	if requested == "" {
		requested = "."
	}
	if filepath.IsAbs(requested) || strings.HasPrefix(requested, "/") {
		return "", errors.New("destination must be a relative path")
	}
	for _, elem := range strings.FieldsFunc(requested, func(r rune) bool { return r == '/' || r == '\\' }) {
		if elem == ".." {
			return "", errors.New("destination must not contain `..`")
		}
	}
	if opt.Sink.Bucket != "" {
		return path.Join(opt.Sink.Prefix, filepath.ToSlash(requested)), nil
	}
	return filepath.Join(opt.BaseDestination, requested), nil
}
