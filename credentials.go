package gdpull

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mashiike/gcreds4aws"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Credentials types.
const (
	CredentialsTypeOAuth          = "oauth"
	CredentialsTypeServiceAccount = "service-account"
	CredentialsTypeAWS            = "aws"
	CredentialsTypeDefault        = "default"
)

// DriveScope is the only scope gdpull requests.
const DriveScope = drive.DriveReadonlyScope

// CredentialsOption selects how gdpull authenticates against Google Drive.
//
//   - "oauth": installed-app flow with a loopback redirect; File is the client secrets JSON
//   - "service-account": File is a service account key JSON
//   - "aws": credentials held in AWS, loaded by github.com/mashiike/gcreds4aws
//   - "default": Application Default Credentials
type CredentialsOption struct {
	Type string `help:"credentials type" default:"oauth" enum:"oauth,service-account,aws,default" env:"GDPULL_CREDENTIALS_TYPE"`
	File string `help:"path to OAuth client secrets or service account key JSON" default:"credentials.json" env:"GDPULL_CREDENTIALS_FILE"`
}

// Authenticator turns a CredentialsOption into Drive client options.
// OAuth tokens are never persisted; every oauth run asks for consent again.
type Authenticator struct {
	opt CredentialsOption
	out io.Writer
}

// NewAuthenticator creates an Authenticator. Prompts of the oauth flow go to out.
func NewAuthenticator(opt CredentialsOption, out io.Writer) *Authenticator {
	if out == nil {
		out = os.Stderr
	}
	return &Authenticator{opt: opt, out: out}
}

// ClientOptions returns the options that authenticate a Drive service.
// Missing or invalid credential material is reported as *ConfigurationError
// before any network call.
func (a *Authenticator) ClientOptions(ctx context.Context) ([]option.ClientOption, error) {
	switch a.opt.Type {
	case CredentialsTypeOAuth, "":
		return a.oauth(ctx)
	case CredentialsTypeServiceAccount:
		return a.serviceAccount(ctx)
	case CredentialsTypeAWS:
		return []option.ClientOption{
			gcreds4aws.WithCredentials(ctx),
			option.WithScopes(DriveScope),
		}, nil
	case CredentialsTypeDefault:
		creds, err := google.FindDefaultCredentials(ctx, DriveScope)
		if err != nil {
			return nil, &ConfigurationError{Reason: "application default credentials not found", Err: err}
		}
		return []option.ClientOption{option.WithCredentials(creds)}, nil
	}
	return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown credentials type `%s`", a.opt.Type)}
}

func (a *Authenticator) readFile() ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(a.opt.File))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("credentials file `%s` not found", a.opt.File)}
	}
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("read credentials file `%s`", a.opt.File), Err: err}
	}
	return data, nil
}

func (a *Authenticator) serviceAccount(ctx context.Context) ([]option.ClientOption, error) {
	data, err := a.readFile()
	if err != nil {
		return nil, err
	}
	cfg, err := google.JWTConfigFromJSON(data, DriveScope)
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid service account key", Err: err}
	}
	slog.DebugContext(ctx, "using service account", "email", cfg.Email)
	return []option.ClientOption{option.WithTokenSource(cfg.TokenSource(ctx))}, nil
}

func (a *Authenticator) oauth(ctx context.Context) ([]option.ClientOption, error) {
	data, err := a.readFile()
	if err != nil {
		return nil, err
	}
	cfg, err := google.ConfigFromJSON(data, DriveScope)
	if err != nil {
		return nil, &ConfigurationError{Reason: "invalid OAuth client secrets", Err: err}
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for OAuth redirect: %w", err)
	}
	cfg.RedirectURL = fmt.Sprintf("http://%s/", ln.Addr().String())
	state := uuid.NewString()
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
	fmt.Fprintf(a.out, "Open the following URL in your browser to authorize gdpull:\n\n  %s\n\n", authURL)
	slog.DebugContext(ctx, "waiting for OAuth redirect", "redirect_url", cfg.RedirectURL)
	code, err := listenAuthCode(ctx, ln, state)
	if err != nil {
		return nil, err
	}
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	slog.InfoContext(ctx, "authorization completed")
	return []option.ClientOption{option.WithTokenSource(cfg.TokenSource(context.WithoutCancel(ctx), token))}, nil
}

type authCodeResult struct {
	code string
	err  error
}

// listenAuthCode serves the OAuth redirect on ln until one authorization
// response arrives, then closes ln.
func listenAuthCode(ctx context.Context, ln net.Listener, state string) (string, error) {
	results := make(chan authCodeResult, 1)
	send := func(r authCodeResult) {
		select {
		case results <- r:
		default:
		}
	}
	router := mux.NewRouter()
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "invalid state parameter", http.StatusBadRequest)
			send(authCodeResult{err: errors.New("OAuth state mismatch")})
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization failed: "+e, http.StatusBadRequest)
			send(authCodeResult{err: fmt.Errorf("authorization failed: %s", e)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			send(authCodeResult{err: errors.New("OAuth redirect without authorization code")})
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "Authorization completed. You can close this window.")
		send(authCodeResult{code: code})
	}).Methods(http.MethodGet)
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			send(authCodeResult{err: fmt.Errorf("OAuth redirect server: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-results:
		return r.code, r.err
	}
}
