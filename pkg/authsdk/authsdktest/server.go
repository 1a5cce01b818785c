// Package authsdktest provides an in-process fake of the authentication API
// for tests. It models the cookie session (access + refresh cookie) so the
// refresh protocol can be exercised end to end.
package authsdktest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aussiebroadwan/authflow/pkg/authsdk"
	"github.com/aussiebroadwan/authflow/pkg/httpx"
	"github.com/aussiebroadwan/authflow/pkg/slogx"
)

// BasePath is the API prefix the fake is mounted under.
const BasePath = "/api/v1"

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// Server is a scripted fake of the authentication API.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	handlers   map[string]http.HandlerFunc
	hits       map[string]int
	bodies     map[string][]string
	generation int
	access     string
	refresh    string
	refreshOK  bool
}

// NewServer starts a fake API and registers cleanup on t. Refresh is
// served by default and rotates the session cookies.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		handlers:  make(map[string]http.HandlerFunc),
		hits:      make(map[string]int),
		bodies:    make(map[string][]string),
		refreshOK: true,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.dispatch))
	t.Cleanup(s.Close)

	s.Handle(http.MethodPost, authsdk.PathRefreshToken, s.serveRefresh)
	return s
}

// URL of the API root, suitable for authsdk.NewClient.
func (s *Server) BaseURL() string { return s.URL + BasePath }

// Client returns an authsdk.Client pointed at the fake, without throttling.
func (s *Server) Client() *authsdk.Client {
	return authsdk.New(authsdk.Config{
		BaseURL:         s.BaseURL(),
		Logger:          slogx.Discard(),
		CredentialLimit: httpx.RateLimitConfig{},
		DeliveryLimit:   httpx.RateLimitConfig{},
	})
}

// Handle registers h for method and path. A path ending in "/" matches
// every path below it.
func (s *Server) Handle(method, path string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method+" "+path] = h
}

// Hits returns how many requests reached method and path.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// Bodies returns the raw request bodies received for method and path.
func (s *Server) Bodies(method, path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies[method+" "+path]...)
}

// StartSession sets fresh session cookies on w, as a login would.
func (s *Server) StartSession(w http.ResponseWriter) {
	s.mu.Lock()
	s.generation++
	s.access = fmt.Sprintf("access-%d", s.generation)
	s.refresh = fmt.Sprintf("refresh-%d", s.generation)
	access, refresh := s.access, s.refresh
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: accessCookie, Value: access, Path: "/", HttpOnly: true})
	http.SetCookie(w, &http.Cookie{Name: refreshCookie, Value: refresh, Path: "/", HttpOnly: true})
}

// ExpireAccess invalidates the current access cookie; the refresh cookie
// still works.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
}

// FailRefresh makes every subsequent refresh call fail with 401.
func (s *Server) FailRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshOK = false
}

// Authed wraps h so it answers 401 unless the request carries the current
// access cookie.
func (s *Server) Authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(accessCookie)

		s.mu.Lock()
		ok := err == nil && s.access != "" && c.Value == s.access
		s.mu.Unlock()

		if !ok {
			JSON(w, http.StatusUnauthorized, map[string]string{"message": "jwt expired"})
			return
		}
		h(w, r)
	}
}

func (s *Server) serveRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookie)

	s.mu.Lock()
	ok := s.refreshOK && err == nil && s.refresh != "" && c.Value == s.refresh
	s.mu.Unlock()

	if !ok {
		JSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid refresh token"})
		return
	}

	s.StartSession(w)
	JSON(w, http.StatusOK, map[string]string{"message": "token refreshed"})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, BasePath)

	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))

	s.mu.Lock()
	key := r.Method + " " + path
	h, ok := s.handlers[key]
	if !ok {
		for k, candidate := range s.handlers {
			if strings.HasSuffix(k, "/") && strings.HasPrefix(key, k) {
				key, h, ok = k, candidate, true
				break
			}
		}
	}
	s.hits[key]++
	s.bodies[key] = append(s.bodies[key], string(body))
	s.mu.Unlock()

	if !ok {
		JSON(w, http.StatusNotFound, map[string]string{"message": "route not found"})
		return
	}
	h(w, r)
}

// JSON writes v with status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Message writes {"message": msg} with status.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"message": msg})
}

// LoginOK writes the login success envelope for u.
func LoginOK(w http.ResponseWriter, u authsdk.User) {
	JSON(w, http.StatusOK, map[string]any{
		"message": "login successful",
		"data":    map[string]any{"user": u},
	})
}

// TwoFactorRequired writes the login envelope asking for a second factor.
func TwoFactorRequired(w http.ResponseWriter, tempToken string) {
	JSON(w, http.StatusOK, map[string]any{
		"message": "2FA required",
		"data":    map[string]any{"twoFactorRequired": true, "tempToken": tempToken},
	})
}

// UserOK writes the {"user": u} envelope used by profile endpoints.
func UserOK(w http.ResponseWriter, u authsdk.User) {
	JSON(w, http.StatusOK, map[string]any{"user": u})
}

// Decode reads the JSON body of r into v.
func Decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// SampleUser returns a populated user for fixtures.
func SampleUser() authsdk.User {
	return authsdk.User{
		ID:            "01JA0000000000000000000000",
		Name:          "Ada Lovelace",
		Username:      "ada",
		Email:         "ada@example.com",
		Phone:         "+61400000000",
		EmailVerified: true,
		ProfilePic:    "https://cdn.example.com/ada.png",
	}
}
