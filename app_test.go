package gdpull

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestApp_Pull(t *testing.T) {
	server, stub := NewStub(t)
	defer server.Close()
	setupFolder(stub)
	stub.AddFolder("folder-reports-a", "Reports")
	stub.AddFolder(testFolderID, "Reports")
	eventFile := filepath.Join(t.TempDir(), "events.json")
	observer, err := NewObserver(t.Context(), ObserverOption{Type: "file", EventFile: eventFile})
	require.NoError(t, err)
	rulesPath := filepath.Join("testdata", "rules.yaml")
	app, err := New(AppOption{Rules: rulesPath}, observer, option.WithoutAuthentication(), option.WithEndpoint(server.URL))
	require.NoError(t, err)
	defer app.Close()

	dest := filepath.Join(t.TempDir(), "downloads")
	_, err = app.Pull(t.Context(), "Reports", NewLocalSink(dest))
	var ambiguous *AmbiguousFolderError
	require.ErrorAs(t, err, &ambiguous)

	app.SetChooser(ChooserFunc(func(_ context.Context, _ string, candidates []*FolderRef) (int, error) {
		for i, c := range candidates {
			if c.ID == testFolderID {
				return i, nil
			}
		}
		return -1, nil
	}))
	result, err := app.Pull(t.Context(), "Reports", NewLocalSink(dest))
	require.NoError(t, err)
	require.Equal(t, testFolderID, result.Folder.ID)
	require.Equal(t, 4, result.Succeeded)
	require.Equal(t, 1, result.Skipped)
	require.FileExists(t, eventFile)
}

func TestApp_Resolve(t *testing.T) {
	server, stub := NewStub(t)
	defer server.Close()
	stub.AddFolder("folder-reports", "Reports")
	app := newTestApp(t, server)

	folder, err := app.Resolve(t.Context(), "Reports")
	require.NoError(t, err)
	require.Equal(t, "folder-reports", folder.ID)
}

func TestApp_List(t *testing.T) {
	server, stub := NewStub(t)
	defer server.Close()
	setupFolder(stub)
	app := newTestApp(t, server)

	var buf bytes.Buffer
	require.NoError(t, app.List(t.Context(), testFolderID, &buf))
	out := buf.String()
	for _, s := range []string{"doc1", "Meeting Notes", "export docx", "Survey", "skip", "report.pdf", "download", "11"} {
		require.Contains(t, out, s)
	}
	require.NotContains(t, out, "old.txt")
	require.Equal(t, 0, stub.Requests("get"), "list uses the listing snapshot only")
}

func TestApp_InvalidRules(t *testing.T) {
	server, _ := NewStub(t)
	defer server.Close()
	_, err := New(AppOption{Rules: filepath.Join("testdata", "not_found.yaml")}, nil, option.WithoutAuthentication(), option.WithEndpoint(server.URL))
	require.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &PullResult{
		Attempted: 3,
		Succeeded: 1,
		Skipped:   1,
		Failed:    1,
		Files: []*FileResult{
			{File: &RemoteFile{Name: "a.txt"}, Outcome: OutcomeSucceeded},
			{File: &RemoteFile{Name: "Survey"}, Outcome: OutcomeSkipped},
			{File: &RemoteFile{Name: "b.txt"}, Outcome: OutcomeFailed, Err: &FileError{FileID: "b", FileName: "b.txt", Op: "download", Err: context.DeadlineExceeded}},
		},
	})
	require.Equal(t, "1/3 files downloaded successfully (1 skipped, 1 failed)\n  failed: b.txt: download b.txt (b): context deadline exceeded\n", buf.String())
}
