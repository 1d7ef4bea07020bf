package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/MarcoPoloResearchLab/huddle/internal/messaging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stubDirectory map[messaging.UserID]string

func (d stubDirectory) Handle(userID messaging.UserID) (string, bool) {
	handle, ok := d[userID]
	return handle, ok
}

func (d stubDirectory) IsGlobalOwner(userID messaging.UserID) bool {
	return userID == 1
}

func testDirectory() stubDirectory {
	return stubDirectory{1: "alice", 2: "bob", 3: "carol"}
}

// tokenSessions maps opaque bearer tokens to users.
type tokenSessions map[string]messaging.UserID

func (s tokenSessions) ResolveRequest(r *http.Request) (messaging.UserID, error) {
	header := r.Header.Get("Authorization")
	if len(header) <= len("Bearer ") {
		return 0, auth.ErrMissingToken
	}
	userID, ok := s[header[len("Bearer "):]]
	if !ok {
		return 0, auth.ErrInvalidToken
	}
	return userID, nil
}

type testServer struct {
	handler http.Handler
	engine  *messaging.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine, err := messaging.NewEngine(messaging.EngineConfig{
		Directory:  testDirectory(),
		IDProvider: messaging.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct engine: %v", err)
	}
	t.Cleanup(engine.Close)
	handler, err := NewHTTPHandler(Dependencies{
		Engine:   engine,
		Sessions: tokenSessions{"alice-token": 1, "bob-token": 2, "carol-token": 3},
		Logger:   zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return &testServer{handler: handler, engine: engine}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("unexpected status: got %d, want %d (body %s)", recorder.Code, want, recorder.Body.String())
	}
}

func waitUntil(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
