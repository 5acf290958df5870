package gdpull

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fujiwara/ridge"
)

// LambdaHandlerFunc is the signature passed to lambda.StartWithOptions.
type LambdaHandlerFunc func(context.Context, json.RawMessage) (any, error)

// LambdaHandler serves HTTP events (Function URL, API Gateway) through the
// serve routes and treats any other event as a PullRequest.
func (app *App) LambdaHandler(opt ServeOption) LambdaHandlerFunc {
	handler := app.Handler(opt)
	return func(ctx context.Context, event json.RawMessage) (any, error) {
		if isPullEvent(event) {
			slog.InfoContext(ctx, "Handled as a pull event")
			return app.handlePullEvent(ctx, opt, event)
		}
		r, err := ridge.NewRequest(event)
		if err != nil {
			slog.ErrorContext(ctx, "unsupported event", "error", err)
			return nil, err
		}
		slog.InfoContext(ctx, "Handled as a http event")
		w := ridge.NewResponseWriter()
		handler.ServeHTTP(w, r.WithContext(ctx))
		return w.Response(), nil
	}
}

// isPullEvent reports whether event carries a top-level "folder" field.
func isPullEvent(event json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(event, &probe); err != nil {
		return false
	}
	_, ok := probe["folder"]
	return ok
}

func (app *App) handlePullEvent(ctx context.Context, opt ServeOption, event json.RawMessage) (any, error) {
	var req PullRequest
	if err := json.Unmarshal(event, &req); err != nil {
		return nil, fmt.Errorf("invalid pull event: %w", err)
	}
	result, err := app.pullRequest(ctx, opt, &req)
	if err != nil {
		slog.ErrorContext(ctx, "failed pull", "folder", req.Folder, "error", err)
		return nil, err
	}
	return result, nil
}
