package gdpull

import (
	"fmt"
	"strings"
)

// ConfigurationError reports missing or invalid credential material.
// It is returned before any network call is made.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (err *ConfigurationError) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("configuration: %s", err.Reason)
	}
	return fmt.Sprintf("configuration: %s: %s", err.Reason, err.Err.Error())
}

func (err *ConfigurationError) Unwrap() error {
	return err.Err
}

// FolderNotFoundError is returned when a folder name matches no folder.
type FolderNotFoundError struct {
	Identifier string
}

func (err *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder `%s` not found", err.Identifier)
}

// AmbiguousFolderError is returned when a folder name matches several folders
// and no chooser could pick one. Candidates holds every match in API order.
type AmbiguousFolderError struct {
	Identifier string
	Candidates []*FolderRef
}

func (err *AmbiguousFolderError) Error() string {
	ids := make([]string, 0, len(err.Candidates))
	for _, c := range err.Candidates {
		ids = append(ids, c.ID)
	}
	return fmt.Sprintf("folder `%s` is ambiguous, %d candidates: %s", err.Identifier, len(err.Candidates), strings.Join(ids, ", "))
}

// DestinationError reports that the destination could not be prepared.
type DestinationError struct {
	Path string
	Err  error
}

func (err *DestinationError) Error() string {
	return fmt.Sprintf("destination %s: %s", err.Path, err.Err.Error())
}

func (err *DestinationError) Unwrap() error {
	return err.Err
}

// FileError is the cause attached to a failed file.
type FileError struct {
	FileID   string
	FileName string
	Op       string
	Err      error
}

func (err *FileError) Error() string {
	return fmt.Sprintf("%s %s (%s): %s", err.Op, err.FileName, err.FileID, err.Err.Error())
}

func (err *FileError) Unwrap() error {
	return err.Err
}

// WriteVerificationError is returned when a written file is missing
// right after the write reported success.
type WriteVerificationError struct {
	Path string
}

func (err *WriteVerificationError) Error() string {
	return fmt.Sprintf("file not found at expected location %s", err.Path)
}
