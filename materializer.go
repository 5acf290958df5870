package gdpull

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mashiike/gdpull/pkg/pullevent"
	"google.golang.org/api/googleapi"
)

// Outcome is the result kind of a single file.
type Outcome string

const (
	OutcomeSucceeded Outcome = pullevent.OutcomeSucceeded
	OutcomeSkipped   Outcome = pullevent.OutcomeSkipped
	OutcomeFailed    Outcome = pullevent.OutcomeFailed
)

// Skip reasons.
const (
	ReasonUnsupportedNativeType = "unsupported native type"
	ReasonSkippedByRule         = "skipped by rule"
)

// FileResult is the outcome of materializing one remote file.
type FileResult struct {
	File           *RemoteFile
	Outcome        Outcome
	Location       string
	ExportMimeType string
	Size           int64
	Reason         string
	Err            error
}

// MarshalJSON renders the result with the error as a string.
func (r *FileResult) MarshalJSON() ([]byte, error) {
	type alias struct {
		File *RemoteFile `json:"file"`
		*pullevent.Result
	}
	return json.Marshal(alias{File: r.File, Result: convertEventResult(r)})
}

// Materializer copies one remote file into a Sink, exporting native
// documents to their interchange format.
type Materializer struct {
	client *DriveClient
	rules  *PullRules
	folder *FolderRef
}

// NewMaterializer creates a Materializer. rules may be nil.
func NewMaterializer(client *DriveClient, rules *PullRules) *Materializer {
	return &Materializer{client: client, rules: rules}
}

func (m *Materializer) withFolder(folder *FolderRef) *Materializer {
	cloned := *m
	cloned.folder = folder
	return &cloned
}

// Materialize downloads or exports file into sink. It never returns an error;
// failures are carried in the result as a *FileError.
func (m *Materializer) Materialize(ctx context.Context, file *RemoteFile, sink Sink) *FileResult {
	result := &FileResult{File: file}
	fail := func(op string, err error) *FileResult {
		result.Outcome = OutcomeFailed
		result.Err = &FileError{FileID: file.ID, FileName: file.Name, Op: op, Err: err}
		attrs := []any{"file_id", file.ID, "file_name", file.Name, "op", op, "error", err}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			attrs = append(attrs, "status", apiErr.Code)
		}
		var verifyErr *WriteVerificationError
		if errors.As(err, &verifyErr) {
			slog.WarnContext(ctx, "write verification anomaly", attrs...)
		} else {
			slog.DebugContext(ctx, "materialize failed", attrs...)
		}
		return result
	}

	fresh, err := m.client.GetFile(ctx, file.ID)
	if err != nil {
		return fail("get", err)
	}
	result.File = fresh
	file = fresh

	if m.rules != nil {
		skip, err := m.rules.ShouldSkip(file, m.folder)
		if err != nil {
			return fail("rule", err)
		}
		if skip {
			result.Outcome = OutcomeSkipped
			result.Reason = ReasonSkippedByRule
			return result
		}
	}

	var dl *DownloadResult
	name := file.Name
	if IsNativeMimeType(file.MimeType) {
		format, ok := LookupExportFormat(file.MimeType)
		if !ok {
			slog.DebugContext(ctx, "no export format", "file_id", file.ID, "mime_type", file.MimeType)
			result.Outcome = OutcomeSkipped
			result.Reason = ReasonUnsupportedNativeType
			return result
		}
		name = TargetName(name, format)
		result.ExportMimeType = format.MimeType
		dl, err = m.client.Export(ctx, file.ID, format.MimeType)
		if err != nil {
			return fail("export", err)
		}
	} else {
		dl, err = m.client.Download(ctx, file.ID)
		if err != nil {
			return fail("download", err)
		}
	}
	defer dl.Body.Close()

	name = localName(name)
	written, err := sink.Write(ctx, name, dl.Body, dl.ContentType)
	if err != nil {
		return fail("write", err)
	}
	if err := sink.Verify(ctx, name); err != nil {
		return fail("verify", err)
	}
	result.Outcome = OutcomeSucceeded
	result.Location = written.Location
	result.Size = written.Size
	return result
}
