package flow

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"

	"authhub/pkg/logging"
)

const (
	// DefaultCallbackPort is the default port for the local callback server.
	DefaultCallbackPort = 3000

	// DefaultCallbackPath is where the identity service redirects the browser.
	DefaultCallbackPath = "/oauth/callback"

	// DefaultCallbackTimeout is how long WaitForCallback waits.
	DefaultCallbackTimeout = 5 * time.Minute
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Funcs(sprig.HtmlFuncMap()).Parse(callbackSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Funcs(sprig.HtmlFuncMap()).Parse(callbackErrorHTML))
)

// ErrCallbackTimeout is returned by WaitForCallback when no callback arrived.
var ErrCallbackTimeout = errors.New("timed out waiting for the login callback")

// CallbackServerConfig configures a CallbackServer.
type CallbackServerConfig struct {
	// Port defaults to DefaultCallbackPort.
	Port int

	// Path defaults to DefaultCallbackPath.
	Path string

	// Timeout bounds WaitForCallback. Defaults to DefaultCallbackTimeout.
	Timeout time.Duration

	// App is shown on the result pages.
	App string

	// ListenAddr overrides the 127.0.0.1:<Port> listen address.
	ListenAddr string
}

// CallbackServer is a temporary loopback HTTP server that receives exactly
// one login callback.
type CallbackServer struct {
	cfg      CallbackServerConfig
	server   *http.Server
	listener net.Listener
	resultCh chan url.Values
	errorCh  chan error
	once     sync.Once
	stopOnce sync.Once

	redirectURI string
}

// NewCallbackServer creates a callback server. Nothing listens until Start.
func NewCallbackServer(cfg CallbackServerConfig) *CallbackServer {
	if cfg.Port == 0 {
		cfg.Port = DefaultCallbackPort
	}
	if cfg.Path == "" {
		cfg.Path = DefaultCallbackPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCallbackTimeout
	}

	return &CallbackServer{
		cfg:      cfg,
		resultCh: make(chan url.Values, 1),
		errorCh:  make(chan error, 1),
	}
}

// Start begins listening and returns the redirect URI to register with the
// login request. The server stops when ctx is cancelled.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	addr := s.cfg.ListenAddr
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", s.cfg.Port)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.cfg.Port = listener.Addr().(*net.TCPAddr).Port
	s.redirectURI = fmt.Sprintf("http://127.0.0.1:%d%s", s.cfg.Port, s.cfg.Path)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.cfg.Path, s.handleCallback)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("Flow", "Callback server listening on %s", s.redirectURI)
	return s.redirectURI, nil
}

// WaitForCallback blocks until the callback arrives, the server fails, ctx
// ends or the configured timeout passes.
func (s *CallbackServer) WaitForCallback(ctx context.Context) (url.Values, error) {
	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case params := <-s.resultCh:
		return params, nil
	case err := <-s.errorCh:
		return nil, err
	case <-timer.C:
		return nil, ErrCallbackTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	handled := false
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})

	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	params := r.URL.Query()

	tmpl := successTemplate
	data := map[string]any{
		"App":  s.cfg.App,
		"Time": time.Now(),
	}
	if code := params.Get("error"); code != "" {
		tmpl = errorTemplate
		data["Error"] = code
		data["Description"] = params.Get("error_description")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		logging.Error("Flow", err, "Failed to render callback page")
	}

	select {
	case s.resultCh <- params:
	default:
	}

	// Give the browser time to receive the page.
	go func() {
		time.Sleep(time.Second)
		s.Stop()
	}()
}

// Stop shuts the server down. It is safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// RedirectURI returns the callback URL. It is empty before Start.
func (s *CallbackServer) RedirectURI() string {
	return s.redirectURI
}

// Port returns the port the server listens on.
func (s *CallbackServer) Port() int {
	return s.cfg.Port
}
