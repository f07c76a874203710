package capture

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"adtoken/pkg/logging"
)

// CallbackTimeout is how long the login command waits for the redirect.
const CallbackTimeout = 10 * time.Minute

// shutdownDelay lets the browser receive the result page before the
// listener goes away.
const shutdownDelay = 500 * time.Millisecond

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>adtoken</title></head>
<body style="font-family: sans-serif; margin: 3em;">
{{if .Error}}
<h2>Sign-in failed</h2>
<p>{{.Error}}</p>
{{else}}
<h2>Signed in</h2>
<p>Tokens for {{.ClientID}} were stored. You can close this window.</p>
{{end}}
</body>
</html>
`))

// NavigationHandler consumes a navigation URL. It reports whether the URL
// was meaningful (carried a code or an authorization error).
type NavigationHandler func(ctx context.Context, navURL string) (bool, error)

// CallbackServer is a temporary local HTTP server for the login redirect.
type CallbackServer struct {
	clientID    string
	host        string
	port        string
	path        string
	handler     NavigationHandler
	redirectURI string

	server   *http.Server
	listener net.Listener
	ctx      context.Context

	resultCh chan error
	errorCh  chan error
	stopOnce sync.Once
}

// NewCallbackServer prepares a server for redirectURI. Only http URIs on
// localhost or a loopback address are accepted. A missing or zero port
// picks a free one; RedirectURI then reports the actual value.
func NewCallbackServer(clientID, redirectURI string, handler NavigationHandler) (*CallbackServer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect_uri %q: %w", redirectURI, err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("redirect_uri %q must use http to be captured locally", redirectURI)
	}
	host := u.Hostname()
	if host != "localhost" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			return nil, fmt.Errorf("redirect_uri %q must point to localhost to be captured locally", redirectURI)
		}
	}
	port := u.Port()
	if port == "" {
		port = "0"
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	return &CallbackServer{
		clientID: clientID,
		host:     host,
		port:     port,
		path:     path,
		handler:  handler,
		resultCh: make(chan error, 1),
		errorCh:  make(chan error, 1),
	}, nil
}

// Start begins listening. The server stops when ctx is cancelled. It
// returns the redirect URI to put in the authorize request.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	bindHost := s.host
	if bindHost == "localhost" {
		bindHost = "127.0.0.1"
	}
	addr := net.JoinHostPort(bindHost, s.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}

	s.listener = listener
	s.ctx = ctx
	port := listener.Addr().(*net.TCPAddr).Port
	s.redirectURI = (&url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(s.host, fmt.Sprint(port)),
		Path:   s.path,
	}).String()

	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleCallback)
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

	logging.Debug("CallbackServer", "Listening for login redirect on %s", s.redirectURI)
	return s.redirectURI, nil
}

// RedirectURI returns the URI the server listens on, once started.
func (s *CallbackServer) RedirectURI() string {
	return s.redirectURI
}

// Wait blocks until a redirect was handled, the server failed, or ctx ends.
// It returns the handler's error for a handled redirect.
func (s *CallbackServer) Wait(ctx context.Context) error {
	select {
	case err := <-s.resultCh:
		return err
	case err := <-s.errorCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	navURL := (&url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}).String()

	handled, err := s.handler(s.ctx, navURL)
	if !handled {
		http.Error(w, "No authorization code in request", http.StatusBadRequest)
		return
	}

	data := map[string]string{"ClientID": s.clientID}
	status := http.StatusOK
	if err != nil {
		data["Error"] = err.Error()
		status = http.StatusUnauthorized
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if execErr := resultPage.Execute(w, data); execErr != nil {
		logging.Warn("CallbackServer", "Failed to render result page: %v", execErr)
	}

	select {
	case s.resultCh <- err:
	default:
	}

	go func() {
		time.Sleep(shutdownDelay)
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
