package gdpull

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Songmu/flextime"
	"github.com/google/uuid"
	"github.com/mashiike/gdpull/pkg/pullevent"
)

// PullResult summarizes one pull run.
// Attempted equals the number of listed children and
// Succeeded + Skipped + Failed equals Attempted.
type PullResult struct {
	RunID     string        `json:"runId,omitempty"`
	Folder    *FolderRef    `json:"folder,omitempty"`
	Attempted int           `json:"attempted"`
	Succeeded int           `json:"succeeded"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Files     []*FileResult `json:"files,omitempty"`
}

func (r *PullResult) add(fr *FileResult) {
	r.Files = append(r.Files, fr)
	switch fr.Outcome {
	case OutcomeSucceeded:
		r.Succeeded++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// Puller drives a single pull: prepare destination, resolve, list, then
// materialize each child sequentially.
type Puller struct {
	resolver     *FolderResolver
	client       *DriveClient
	materializer *Materializer
	observer     Observer
}

// NewPuller creates a Puller. observer may be nil.
func NewPuller(client *DriveClient, resolver *FolderResolver, materializer *Materializer, observer Observer) *Puller {
	return &Puller{
		resolver:     resolver,
		client:       client,
		materializer: materializer,
		observer:     observer,
	}
}

type emitter struct {
	runID    string
	observer Observer
}

func (e *emitter) emit(ctx context.Context, event *pullevent.Event) {
	if e.observer == nil {
		return
	}
	event.RunID = e.runID
	event.Time = flextime.Now()
	if err := e.observer.Observe(ctx, event); err != nil {
		slog.WarnContext(ctx, "observer failed", "run_id", e.runID, "type", event.Type, "error", err)
	}
}

// Pull copies the immediate children of the folder named by identifier into sink.
// Folder-level failures abort with an error. File-level failures are isolated
// and reported in the result. An empty folder yields a zero result and no error.
func (p *Puller) Pull(ctx context.Context, identifier string, sink Sink) (*PullResult, error) {
	if err := sink.Prepare(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := sink.Release(); err != nil {
			slog.WarnContext(ctx, "release destination failed", "destination", sink.String(), "error", err)
		}
	}()

	em := &emitter{runID: uuid.NewString(), observer: p.observer}
	folder, err := p.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	em.emit(ctx, &pullevent.Event{
		Type:   pullevent.TypeFolderResolved,
		Folder: convertEventFolder(folder),
	})

	files, err := p.client.ListChildren(ctx, folder)
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", folder.ID, err)
	}
	total := len(files)
	em.emit(ctx, &pullevent.Event{
		Type:   pullevent.TypeFolderListed,
		Folder: convertEventFolder(folder),
		Total:  total,
	})
	if total == 0 {
		slog.InfoContext(ctx, "no files found in folder", "folder_id", folder.ID)
		return &PullResult{}, nil
	}

	result := &PullResult{
		RunID:     em.runID,
		Folder:    folder,
		Attempted: total,
		Files:     make([]*FileResult, 0, total),
	}
	m := p.materializer.withFolder(folder)
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			result.Attempted = len(result.Files)
			return result, err
		}
		em.emit(ctx, &pullevent.Event{
			Type:  pullevent.TypeFileStarted,
			File:  convertEventFile(file),
			Index: i + 1,
			Total: total,
		})
		fr := m.Materialize(ctx, file, sink)
		result.add(fr)
		em.emit(ctx, &pullevent.Event{
			Type:   pullevent.TypeFileCompleted,
			File:   convertEventFile(fr.File),
			Index:  i + 1,
			Total:  total,
			Result: convertEventResult(fr),
		})
	}
	em.emit(ctx, &pullevent.Event{
		Type:    pullevent.TypePullCompleted,
		Folder:  convertEventFolder(folder),
		Summary: convertEventSummary(result),
	})
	slog.InfoContext(ctx, "pull complete",
		"folder_id", folder.ID,
		"attempted", result.Attempted,
		"succeeded", result.Succeeded,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}
