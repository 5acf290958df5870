package gdpull

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	// FolderMimeType is the MIME type of Google Drive folders.
	FolderMimeType = "application/vnd.google-apps.folder"

	listPageSize = 1000
)

var (
	listFields = googleapi.Field("files(id, name, mimeType, size)")
	fileFields = googleapi.Field("id, name, mimeType, size")
)

// RemoteFile is a snapshot of a Drive file taken once per run.
// ID is the identity; Name is not unique within a folder.
type RemoteFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,omitempty"`
}

// FolderRef is a resolved folder. Once resolved it is not re-resolved.
type FolderRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// DriveClient performs the Drive API calls needed by a pull.
type DriveClient struct {
	svc *drive.Service
}

// NewDriveClient creates a new DriveClient with the given service.
func NewDriveClient(svc *drive.Service) *DriveClient {
	return &DriveClient{svc: svc}
}

// DownloadResult contains the result of a download or export operation.
type DownloadResult struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// FindFolders returns every folder whose name equals name exactly.
func (c *DriveClient) FindFolders(ctx context.Context, name string) ([]*FolderRef, error) {
	q := fmt.Sprintf("name='%s' and mimeType='%s'", escapeQuery(name), FolderMimeType)
	slog.DebugContext(ctx, "drive API files:list", "q", q)
	list, err := c.svc.Files.List().
		Q(q).
		Fields("files(id, name)").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive API files:list folders named %s: %w", name, err)
	}
	folders := make([]*FolderRef, 0, len(list.Files))
	for _, f := range list.Files {
		folders = append(folders, &FolderRef{ID: f.Id, Name: f.Name})
	}
	return folders, nil
}

// ListChildren lists the direct, non-trashed children of folder.
// Only the first page is returned.
func (c *DriveClient) ListChildren(ctx context.Context, folder *FolderRef) ([]*RemoteFile, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(folder.ID))
	slog.DebugContext(ctx, "drive API files:list", "q", q)
	list, err := c.svc.Files.List().
		Q(q).
		Fields("nextPageToken", listFields).
		PageSize(listPageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive API files:list children of %s: %w", folder.ID, err)
	}
	if list.NextPageToken != "" {
		slog.WarnContext(ctx, "folder has more children than one page, the rest are ignored",
			"folder_id", folder.ID,
			"page_size", listPageSize,
		)
	}
	return Map(list.Files, ConvertFile), nil
}

// GetFile fetches fresh metadata of a file.
func (c *DriveClient) GetFile(ctx context.Context, fileID string) (*RemoteFile, error) {
	f, err := c.svc.Files.Get(fileID).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive API files:get %s: %w", fileID, err)
	}
	return ConvertFile(f), nil
}

// Download downloads the raw content of a regular file.
func (c *DriveClient) Download(ctx context.Context, fileID string) (*DownloadResult, error) {
	resp, err := c.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", fileID, err)
	}
	return &DownloadResult{
		Body:        resp.Body,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

// Export exports a native document to mimeType.
func (c *DriveClient) Export(ctx context.Context, fileID, mimeType string) (*DownloadResult, error) {
	resp, err := c.svc.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("export file %s as %s: %w", fileID, mimeType, err)
	}
	return &DownloadResult{
		Body:        resp.Body,
		ContentType: mimeType,
		Size:        resp.ContentLength,
	}, nil
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// escapeQuery escapes a literal for use inside single quotes of a Drive query.
func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}
