package gdpull

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// folderIDLength is the length of a Drive folder id.
const folderIDLength = 33

// IsFolderID reports whether identifier looks like a Drive folder id:
// exactly 33 ASCII letters or digits.
func IsFolderID(identifier string) bool {
	if len(identifier) != folderIDLength {
		return false
	}
	for i := 0; i < len(identifier); i++ {
		c := identifier[i]
		switch {
		case 'a' <= c && c <= 'z':
		case 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9':
		default:
			return false
		}
	}
	return true
}

// Chooser picks one of several folders sharing a name.
// It returns the index into candidates.
type Chooser interface {
	Choose(ctx context.Context, identifier string, candidates []*FolderRef) (int, error)
}

// ChooserFunc adapts a function to the Chooser interface.
type ChooserFunc func(ctx context.Context, identifier string, candidates []*FolderRef) (int, error)

func (f ChooserFunc) Choose(ctx context.Context, identifier string, candidates []*FolderRef) (int, error) {
	return f(ctx, identifier, candidates)
}

// NoChooser refuses to choose and reports every candidate.
var NoChooser Chooser = ChooserFunc(func(_ context.Context, identifier string, candidates []*FolderRef) (int, error) {
	return -1, &AmbiguousFolderError{Identifier: identifier, Candidates: candidates}
})

// PromptChooser asks on Out and reads the answer from In.
// Candidates are numbered from 1; invalid answers ask again.
type PromptChooser struct {
	In  io.Reader
	Out io.Writer
}

type scanResult struct {
	line string
	err  error
}

func (p *PromptChooser) Choose(ctx context.Context, identifier string, candidates []*FolderRef) (int, error) {
	fmt.Fprintf(p.Out, "Multiple folders named %q found:\n", identifier)
	for i, c := range candidates {
		fmt.Fprintf(p.Out, "  %d. %s (id: %s)\n", i+1, c.Name, c.ID)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan scanResult)
	// The reader stays blocked in Scan after cancellation until In yields
	// a line or EOF, so each Choose call may leave one reader behind.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(p.In)
		for scanner.Scan() {
			select {
			case lines <- scanResult{line: scanner.Text()}:
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		select {
		case lines <- scanResult{err: err}:
		case <-ctx.Done():
		}
	}()
	for {
		fmt.Fprintf(p.Out, "Select a folder [1-%d]: ", len(candidates))
		var r scanResult
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case r = <-lines:
		}
		if r.err != nil {
			return -1, fmt.Errorf("read folder choice: %w", r.err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(r.line))
		if err != nil || n < 1 || n > len(candidates) {
			fmt.Fprintf(p.Out, "Please enter a number between 1 and %d.\n", len(candidates))
			continue
		}
		return n - 1, nil
	}
}

// FolderResolver turns a folder identifier into a FolderRef.
type FolderResolver struct {
	client  *DriveClient
	chooser Chooser
}

// NewFolderResolver creates a resolver. A nil chooser means NoChooser.
func NewFolderResolver(client *DriveClient, chooser Chooser) *FolderResolver {
	if chooser == nil {
		chooser = NoChooser
	}
	return &FolderResolver{client: client, chooser: chooser}
}

// Resolve returns identifier as is when it looks like a folder id, otherwise
// searches folders by exact name.
func (r *FolderResolver) Resolve(ctx context.Context, identifier string) (*FolderRef, error) {
	if IsFolderID(identifier) {
		slog.DebugContext(ctx, "identifier is a folder id", "folder_id", identifier)
		return &FolderRef{ID: identifier}, nil
	}
	slog.InfoContext(ctx, "searching for folder by name", "folder_name", identifier)
	candidates, err := r.client.FindFolders(ctx, identifier)
	if err != nil {
		return nil, err
	}
	switch len(candidates) {
	case 0:
		return nil, &FolderNotFoundError{Identifier: identifier}
	case 1:
		return candidates[0], nil
	}
	slog.InfoContext(ctx, "multiple folders found", "folder_name", identifier, "count", len(candidates))
	idx, err := r.chooser.Choose(ctx, identifier, candidates)
	if err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(candidates) {
		return nil, fmt.Errorf("folder choice %d out of range [0, %d)", idx, len(candidates))
	}
	return candidates[idx], nil
}
