package gdpull

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

type stubFile struct {
	file    *drive.File
	parent  string
	content []byte
	errors  map[string]int
}

type stubHandler struct {
	mu            sync.Mutex
	t             *testing.T
	router        *mux.Router
	folders       []*drive.File
	files         map[string]*stubFile
	order         []string
	nextPageToken string
	requests      map[string]int
	queries       []string
	pageSizes     []string
	exports       []string
}

func NewStub(t *testing.T) (*httptest.Server, *stubHandler) {
	t.Helper()
	stub := &stubHandler{
		t:        t,
		router:   mux.NewRouter(),
		files:    make(map[string]*stubFile),
		requests: make(map[string]int),
	}
	stub.setupRoute()
	return httptest.NewServer(stub), stub
}

func newStubClient(t *testing.T, server *httptest.Server) *DriveClient {
	t.Helper()
	svc, err := drive.NewService(t.Context(), option.WithoutAuthentication(), option.WithEndpoint(server.URL))
	require.NoError(t, err)
	return NewDriveClient(svc)
}

func (h *stubHandler) setupRoute() {
	h.router.HandleFunc("/files", h.handleList).Methods(http.MethodGet)
	h.router.HandleFunc("/files/{fileId}/export", h.handleExport).Methods(http.MethodGet)
	h.router.HandleFunc("/files/{fileId}", h.handleGet).Methods(http.MethodGet)
}

func (h *stubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// AddFolder registers a folder findable by name.
func (h *stubHandler) AddFolder(id, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.folders = append(h.folders, &drive.File{Id: id, Name: name, MimeType: FolderMimeType})
}

// AddFile registers a child of parent. Listing returns files in registration order.
func (h *stubHandler) AddFile(parent string, f *drive.File, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[f.Id] = &stubFile{file: f, parent: parent, content: []byte(content), errors: map[string]int{}}
	h.order = append(h.order, f.Id)
}

// SetMimeType changes the metadata returned by files.get without touching the listing snapshot.
func (h *stubHandler) SetMimeType(fileID, mimeType string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cloned := *h.files[fileID].file
	cloned.MimeType = mimeType
	h.files[fileID].file = &cloned
}

// SetError makes the given kind of request ("get", "media", "export") fail with status.
func (h *stubHandler) SetError(fileID, kind string, status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[fileID].errors[kind] = status
}

func (h *stubHandler) SetNextPageToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextPageToken = token
}

// Requests returns the number of requests of kind ("search", "list", "get", "media", "export").
func (h *stubHandler) Requests(kind string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[kind]
}

func (h *stubHandler) TotalRequests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var n int
	for _, v := range h.requests {
		n += v
	}
	return n
}

func (h *stubHandler) Exports() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.exports...)
}

var (
	nameQueryPattern   = regexp.MustCompile(`^name='((?:[^'\\]|\\.)*)' and mimeType='application/vnd\.google-apps\.folder'$`)
	parentQueryPattern = regexp.MustCompile(`^'([^']*)' in parents and trashed=false$`)
	queryUnescaper     = strings.NewReplacer(`\'`, `'`, `\\`, `\`)
)

func (h *stubHandler) handleList(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := r.URL.Query().Get("q")
	h.queries = append(h.queries, q)
	var resp drive.FileList
	if m := nameQueryPattern.FindStringSubmatch(q); m != nil {
		h.requests["search"]++
		name := queryUnescaper.Replace(m[1])
		resp.Files = []*drive.File{}
		for _, f := range h.folders {
			if f.Name == name {
				resp.Files = append(resp.Files, f)
			}
		}
	} else if m := parentQueryPattern.FindStringSubmatch(q); m != nil {
		h.requests["list"]++
		h.pageSizes = append(h.pageSizes, r.URL.Query().Get("pageSize"))
		resp.Files = []*drive.File{}
		for _, id := range h.order {
			sf := h.files[id]
			if sf.parent != m[1] || sf.file.Trashed {
				continue
			}
			resp.Files = append(resp.Files, sf.file)
		}
		resp.NextPageToken = h.nextPageToken
	} else {
		writeStubError(w, http.StatusBadRequest, fmt.Sprintf("unexpected query: %s", q))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(resp)
	require.NoError(h.t, err)
}

func (h *stubHandler) lookup(w http.ResponseWriter, r *http.Request, kind string) (*stubFile, bool) {
	id := mux.Vars(r)["fileId"]
	h.requests[kind]++
	sf, ok := h.files[id]
	if !ok {
		writeStubError(w, http.StatusNotFound, fmt.Sprintf("File not found: %s.", id))
		return nil, false
	}
	if status, ok := sf.errors[kind]; ok {
		writeStubError(w, status, http.StatusText(status))
		return nil, false
	}
	return sf, true
}

func (h *stubHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.URL.Query().Get("alt") == "media" {
		sf, ok := h.lookup(w, r, "media")
		if !ok {
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(sf.content)
		return
	}
	sf, ok := h.lookup(w, r, "get")
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(sf.file)
	require.NoError(h.t, err)
}

func (h *stubHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sf, ok := h.lookup(w, r, "export")
	if !ok {
		return
	}
	mimeType := r.URL.Query().Get("mimeType")
	h.exports = append(h.exports, sf.file.Id+":"+mimeType)
	w.Header().Set("Content-Type", mimeType)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "exported %s as %s", sf.file.Name, mimeType)
}

func writeStubError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}
