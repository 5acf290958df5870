package gdpull

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/mashiike/gdpull/pkg/pullevent"
)

// ObserverOption contains configuration for progress event delivery.
//
// Supported observer types:
//   - "log": Writes a log line per event (default)
//   - "file": Appends events to a local NDJSON file
//   - "eventbridge": Sends events to Amazon EventBridge
type ObserverOption struct {
	Type      string `help:"observer type" default:"log" enum:"log,file,eventbridge" env:"GDPULL_OBSERVER_TYPE"`
	EventBus  string `help:"event bus name (eventbridge type only)" default:"default" env:"GDPULL_EVENTBRIDGE_EVENT_BUS"`
	EventFile string `help:"event file path (file type only)" default:"gdpull-events.json" env:"GDPULL_EVENT_FILE"`
}

// Observer receives progress events of a pull run.
// An Observer error never aborts a pull; it is logged and the run goes on.
type Observer interface {
	Observe(context.Context, *pullevent.Event) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(context.Context, *pullevent.Event) error

func (f ObserverFunc) Observe(ctx context.Context, e *pullevent.Event) error {
	return f(ctx, e)
}

// NewObserver creates an Observer based on the configuration type.
func NewObserver(ctx context.Context, cfg ObserverOption) (Observer, error) {
	switch cfg.Type {
	case "", "log":
		return LogObserver{}, nil
	case "file":
		return NewFileObserver(cfg), nil
	case "eventbridge":
		return NewEventBridgeObserver(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown observer type: %s", cfg.Type)
}

// MultiObserver fans an event out to every observer and joins their errors.
type MultiObserver []Observer

func (m MultiObserver) Observe(ctx context.Context, e *pullevent.Event) error {
	var errs []error
	for _, o := range m {
		if err := o.Observe(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogObserver logs each event with slog.
type LogObserver struct{}

func (LogObserver) Observe(ctx context.Context, e *pullevent.Event) error {
	switch e.Type {
	case pullevent.TypeFolderResolved:
		slog.InfoContext(ctx, "folder resolved", "run_id", e.RunID, "folder_id", e.Folder.ID, "folder_name", coalesce(e.Folder.Name, "-"))
	case pullevent.TypeFolderListed:
		slog.InfoContext(ctx, "folder listed", "run_id", e.RunID, "folder_id", e.Folder.ID, "total", e.Total)
	case pullevent.TypeFileStarted:
		slog.InfoContext(ctx, fmt.Sprintf("[%d/%d] %s", e.Index, e.Total, e.File.Name), "run_id", e.RunID, "file_id", e.File.ID, "mime_type", e.File.MimeType)
	case pullevent.TypeFileCompleted:
		attrs := []any{"run_id", e.RunID, "file_id", e.File.ID, "file_name", e.File.Name, "outcome", e.Result.Outcome}
		switch e.Result.Outcome {
		case pullevent.OutcomeSucceeded:
			slog.InfoContext(ctx, "file downloaded", append(attrs, "location", e.Result.Location, "size", e.Result.Size)...)
		case pullevent.OutcomeSkipped:
			slog.InfoContext(ctx, "file skipped", append(attrs, "reason", e.Result.Reason)...)
		default:
			slog.ErrorContext(ctx, "file failed", append(attrs, "error", e.Result.Error)...)
		}
	case pullevent.TypePullCompleted:
		slog.DebugContext(ctx, "pull completed event", "run_id", e.RunID, "attempted", e.Summary.Attempted, "failed", e.Summary.Failed)
	}
	return nil
}

// FileObserver appends events to a local file as newline-delimited JSON.
type FileObserver struct {
	mu        sync.Mutex
	eventFile string
}

// NewFileObserver creates a new file-based observer.
func NewFileObserver(cfg ObserverOption) *FileObserver {
	return &FileObserver{eventFile: cfg.EventFile}
}

func (o *FileObserver) Observe(ctx context.Context, e *pullevent.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	fp, err := os.OpenFile(o.eventFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		slog.DebugContext(ctx, "can not create event file", "event_file", o.eventFile, "error", err)
		return err
	}
	defer fp.Close()
	if err := json.NewEncoder(fp).Encode(e); err != nil {
		slog.WarnContext(ctx, "FileObserver.Observe", "error", err)
		return err
	}
	return nil
}

// EventBridgeClient is the interface for Amazon EventBridge operations.
// This is satisfied by *eventbridge.Client.
type EventBridgeClient interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

const (
	eventSource        = "oss.gdpull"
	eventBridgeMaxSize = 10
)

// EventBridgeObserver buffers events and sends them to Amazon EventBridge
// with the event type as detail-type. The buffer is flushed when it holds
// ten entries, on the PullCompleted event, and on Close.
type EventBridgeObserver struct {
	mu       sync.Mutex
	client   EventBridgeClient
	eventBus string
	buffer   []*pullevent.Event
}

// NewEventBridgeObserver creates a new EventBridge-based observer.
func NewEventBridgeObserver(ctx context.Context, cfg ObserverOption) (*EventBridgeObserver, error) {
	awsCfg, err := loadAWSConfig(ctx)
	if err != nil {
		return nil, err
	}
	return NewEventBridgeObserverWithClient(eventbridge.NewFromConfig(awsCfg), cfg.EventBus), nil
}

// NewEventBridgeObserverWithClient creates an observer with the given client.
func NewEventBridgeObserverWithClient(client EventBridgeClient, eventBus string) *EventBridgeObserver {
	return &EventBridgeObserver{
		client:   client,
		eventBus: eventBus,
	}
}

func (o *EventBridgeObserver) Observe(ctx context.Context, e *pullevent.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffer = append(o.buffer, e)
	if len(o.buffer) < eventBridgeMaxSize && e.Type != pullevent.TypePullCompleted {
		return nil
	}
	return o.flush(ctx)
}

// Close sends buffered events.
func (o *EventBridgeObserver) Close(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flush(ctx)
}

func (o *EventBridgeObserver) flush(ctx context.Context) error {
	if len(o.buffer) == 0 {
		return nil
	}
	events := o.buffer
	o.buffer = nil
	convertor := func(e *pullevent.Event) types.PutEventsRequestEntry {
		bs, err := json.Marshal(e)
		if err != nil {
			slog.WarnContext(ctx, "event marshal failed", "error", err)
			bs = []byte("{}")
		}
		detail := string(bs)
		slog.DebugContext(ctx, "event", "source", eventSource, "detail-type", e.Type, "detail", detail)
		return types.PutEventsRequestEntry{
			EventBusName: aws.String(o.eventBus),
			Resources:    []string{},
			Source:       aws.String(eventSource),
			DetailType:   aws.String(e.Type),
			Time:         aws.Time(e.Time),
			Detail:       aws.String(detail),
		}
	}
	var lastErr error
	for entries := range slices.Chunk(Map(events, convertor), eventBridgeMaxSize) {
		output, err := o.client.PutEvents(ctx, &eventbridge.PutEventsInput{
			Entries: entries,
		})
		if err != nil {
			slog.ErrorContext(ctx, "PutEvents failed", "error", err)
			lastErr = err
			continue
		}
		for i, entry := range output.Entries {
			if entry.ErrorCode != nil {
				slog.ErrorContext(ctx, "put event error", "event_bus", o.eventBus, "error_code", *entry.ErrorCode, "error_message", aws.ToString(entry.ErrorMessage), "detail", *entries[i].Detail)
				lastErr = fmt.Errorf("put events failed error_code=%s, error_message=%s", *entry.ErrorCode, aws.ToString(entry.ErrorMessage))
				continue
			}
			if entry.EventId != nil {
				slog.DebugContext(ctx, "put event", "event_bus", o.eventBus, "event_id", *entry.EventId)
			}
		}
	}
	return lastErr
}
