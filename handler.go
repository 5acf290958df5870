package gdpull

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

// PullRequest is the payload of POST /pull and of non-HTTP Lambda invocations.
type PullRequest struct {
	Folder      string `json:"folder"`
	Destination string `json:"destination,omitempty"`
}

type errorResponse struct {
	Error      string       `json:"error"`
	Candidates []*FolderRef `json:"candidates,omitempty"`
}

type badRequestError struct {
	err error
}

func (err *badRequestError) Error() string {
	return err.err.Error()
}

func (err *badRequestError) Unwrap() error {
	return err.err
}

// Handler returns the HTTP surface of the serve command.
func (app *App) Handler(opt ServeOption) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, http.StatusOK, http.StatusText(http.StatusOK))
	}).Methods(http.MethodGet)
	router.HandleFunc("/pull", app.handlePull(opt)).Methods(http.MethodPost)
	return router
}

func (app *App) handlePull(opt ServeOption) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer r.Body.Close()
		slog.InfoContext(ctx, "Received pull request",
			"method", coalesce(r.Method, "-"),
			"uri", coalesce(r.URL.String(), "-"),
			"user_agent", url.QueryEscape(coalesce(r.UserAgent(), "-")),
			"forwarded_for", coalesce(r.Header.Get("X-Forwarded-For"), "-"),
		)
		var req PullRequest
		body, err := io.ReadAll(r.Body)
		if err == nil {
			err = json.Unmarshal(body, &req)
		}
		if err != nil {
			writeError(ctx, w, &badRequestError{err: fmt.Errorf("invalid request body: %w", err)})
			return
		}
		result, err := app.pullRequest(ctx, opt, &req)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		writeJSON(ctx, w, http.StatusOK, result)
	}
}

// pullRequest runs a pull for a remote caller. Ambiguous names are never
// prompted; they are reported with their candidates.
func (app *App) pullRequest(ctx context.Context, opt ServeOption, req *PullRequest) (*PullResult, error) {
	if req.Folder == "" {
		return nil, &badRequestError{err: errors.New("folder is required")}
	}
	dest, err := destinationFor(opt, req.Destination)
	if err != nil {
		return nil, &badRequestError{err: err}
	}
	sinkOpt := opt.Sink
	if sinkOpt.Bucket != "" {
		sinkOpt.Prefix = dest
	}
	sink, err := app.newSink(ctx, sinkOpt, dest)
	if err != nil {
		return nil, err
	}
	return app.pull(ctx, req.Folder, sink, NoChooser)
}

func errorStatus(err error) int {
	var badReq *badRequestError
	var notFound *FolderNotFoundError
	var ambiguous *AmbiguousFolderError
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &ambiguous):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := errorStatus(err)
	resp := errorResponse{Error: err.Error()}
	var ambiguous *AmbiguousFolderError
	if errors.As(err, &ambiguous) {
		resp.Candidates = ambiguous.Candidates
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "pull request failed", "status", status, "error", err)
	} else {
		slog.WarnContext(ctx, "pull request rejected", "status", status, "error", err)
	}
	writeJSON(ctx, w, status, resp)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.WarnContext(ctx, "write response failed", "error", err)
	}
}

func coalesce(strs ...string) string {
	for _, str := range strs {
		if str != "" {
			return str
		}
	}
	return ""
}
