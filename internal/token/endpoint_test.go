package token

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"adtoken/internal/config"
	"adtoken/internal/store"
	"adtoken/pkg/oauth"

	"github.com/stretchr/testify/require"
)

// grantRequest is one request observed by the fake token endpoint.
type grantRequest struct {
	GrantType    string
	Resource     string
	ClientID     string
	Code         string
	RefreshToken string
	RedirectURI  string
	CodeVerifier string
	Username     string
	Password     string

	// BootstrapDone records whether an authorization_code response had
	// already been produced when this request arrived.
	BootstrapDone bool
}

// fakeEndpoint is an in-process token endpoint with per-resource failures.
type fakeEndpoint struct {
	server *httptest.Server

	mu            sync.Mutex
	requests      []grantRequest
	issued        int
	bootstrapDone bool
	failResources map[string]bool
	omitRefresh   map[string]bool // grant types answered without refresh_token
	gate          chan struct{}
}

func newFakeEndpoint(t *testing.T) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{
		failResources: make(map[string]bool),
		omitRefresh:   make(map[string]bool),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeEndpoint) URL() string {
	return f.server.URL + "/{tenant}/oauth2/token"
}

func (f *fakeEndpoint) omitRefreshOn(grantType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.omitRefresh[grantType] = true
}

func (f *fakeEndpoint) failFor(resource string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failResources[resource] = true
}

// hold makes every request wait until the returned function is called.
func (f *fakeEndpoint) hold() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gate = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeEndpoint) Requests() []grantRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]grantRequest(nil), f.requests...)
}

func (f *fakeEndpoint) countGrant(grantType string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.GrantType == grantType {
			n++
		}
	}
	return n
}

func (f *fakeEndpoint) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := grantRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Resource:     r.PostForm.Get("resource"),
		ClientID:     r.PostForm.Get("client_id"),
		Code:         r.PostForm.Get("code"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		Username:     r.PostForm.Get("username"),
		Password:     r.PostForm.Get("password"),
	}

	f.mu.Lock()
	req.BootstrapDone = f.bootstrapDone
	f.requests = append(f.requests, req)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	f.mu.Lock()
	fail := f.failResources[req.Resource]
	f.issued++
	n := f.issued
	omitRefresh := f.omitRefresh[req.GrantType]
	if req.GrantType == "authorization_code" && !fail {
		f.bootstrapDone = true
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "AADSTS70000: scope not granted for " + req.Resource,
		})
		return
	}

	resp := map[string]interface{}{
		"access_token": fmt.Sprintf("at-%s-%d", req.Resource, n),
		"token_type":   "Bearer",
		"expires_in":   "3600",
		"expires_on":   fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix()),
		"resource":     req.Resource,
	}
	if !omitRefresh {
		resp["refresh_token"] = fmt.Sprintf("rt-%d", n)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func testConfig(endpoint string, resources ...string) config.Context {
	return config.Context{
		ClientID:      "app",
		ClientSecret:  "s3cret",
		Tenant:        "contoso",
		RedirectURI:   "http://localhost/callback",
		TokenEndpoint: endpoint,
		Resources:     resources,
	}
}

func newTestContext(t *testing.T, cfg config.Context, backend store.Backend, opts ...ContextOption) *Context {
	t.Helper()
	tc, err := NewContext(cfg, backend, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tc.Flush() })
	return tc
}

func freshCredential(resource, accessToken string, expiresOn time.Time) *oauth.Credential {
	return &oauth.Credential{
		Resource:     resource,
		AccessToken:  accessToken,
		RefreshToken: "rt-seeded",
		ExpiresOn:    oauth.EpochSeconds(expiresOn.Unix()),
		TokenType:    "Bearer",
	}
}
