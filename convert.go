package gdpull

import (
	"github.com/mashiike/gdpull/pkg/pullevent"
	"google.golang.org/api/drive/v3"
)

// ConvertFile converts a Drive API file into a RemoteFile snapshot.
func ConvertFile(f *drive.File) *RemoteFile {
	if f == nil {
		return nil
	}
	return &RemoteFile{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
	}
}

func convertEventFile(f *RemoteFile) *pullevent.File {
	if f == nil {
		return nil
	}
	return &pullevent.File{
		ID:       f.ID,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
	}
}

func convertEventFolder(f *FolderRef) *pullevent.Folder {
	if f == nil {
		return nil
	}
	return &pullevent.Folder{
		ID:   f.ID,
		Name: f.Name,
	}
}

func convertEventResult(r *FileResult) *pullevent.Result {
	if r == nil {
		return nil
	}
	result := &pullevent.Result{
		Outcome:        string(r.Outcome),
		Location:       r.Location,
		ExportMimeType: r.ExportMimeType,
		Size:           r.Size,
		Reason:         r.Reason,
	}
	if r.Err != nil {
		result.Error = r.Err.Error()
	}
	return result
}

func convertEventSummary(r *PullResult) *pullevent.Summary {
	return &pullevent.Summary{
		Attempted: r.Attempted,
		Succeeded: r.Succeeded,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
	}
}
