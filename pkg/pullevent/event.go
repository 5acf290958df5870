// Package pullevent provides types for gdpull progress event payloads.
// These types can be used by consumers of the file or EventBridge observer
// to unmarshal gdpull events.
//
//	func handler(ctx context.Context, event events.CloudWatchEvent) error {
//	    var e pullevent.Event
//	    if err := json.Unmarshal(event.Detail, &e); err != nil {
//	        return err
//	    }
//	    fmt.Println(e.Type, e.File.Name)
//	}
package pullevent

import "time"

// Event types emitted during a single pull run, in emission order.
const (
	TypeFolderResolved = "Folder Resolved"
	TypeFolderListed   = "Folder Listed"
	TypeFileStarted    = "File Started"
	TypeFileCompleted  = "File Completed"
	TypePullCompleted  = "Pull Completed"
)

// Outcome values reported in Result.Outcome.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Event is a single progress event of a pull run.
type Event struct {
	RunID   string    `json:"runId"`
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Folder  *Folder   `json:"folder,omitempty"`
	File    *File     `json:"file,omitempty"`
	Index   int       `json:"index,omitempty"`
	Total   int       `json:"total,omitempty"`
	Result  *Result   `json:"result,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
}

// Folder is the resolved remote folder.
// The cel tags name the fields in rule expressions.
type Folder struct {
	ID   string `json:"id" cel:"id"`
	Name string `json:"name,omitempty" cel:"name"`
}

// File is the remote file a FileStarted or FileCompleted event refers to.
type File struct {
	ID       string `json:"id" cel:"id"`
	Name     string `json:"name" cel:"name"`
	MimeType string `json:"mimeType" cel:"mimeType"`
	Size     int64  `json:"size,omitempty" cel:"size"`
}

// Result is the outcome of a single file.
type Result struct {
	Outcome        string `json:"outcome"`
	Location       string `json:"location,omitempty"`
	ExportMimeType string `json:"exportMimeType,omitempty"`
	Size           int64  `json:"size,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Summary is attached to the PullCompleted event.
type Summary struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
