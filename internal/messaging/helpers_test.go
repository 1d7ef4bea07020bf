package messaging

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

const (
	alice UserID = 1
	bob   UserID = 2
	carol UserID = 3
	dave  UserID = 4
	erin  UserID = 5
)

type stubDirectory struct {
	handles map[UserID]string
	admins  map[UserID]bool
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		handles: map[UserID]string{
			alice: "alice",
			bob:   "bob",
			carol: "carol",
			dave:  "dave",
			erin:  "erin",
		},
		admins: map[UserID]bool{dave: true},
	}
}

func (d *stubDirectory) Handle(userID UserID) (string, bool) {
	handle, ok := d.handles[userID]
	return handle, ok
}

func (d *stubDirectory) IsGlobalOwner(userID UserID) bool {
	return d.admins[userID]
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("msg-%05d", s.next), nil
}

type failingIDs struct{}

func (failingIDs) NewID() (string, error) {
	return "", errors.New("entropy exhausted")
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start int64) *testClock {
	return &testClock{now: time.Unix(start, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type engineOptions struct {
	clock  func() time.Time
	logger *zap.Logger
	ids    IDProvider
}

func newTestEngine(t *testing.T, opts engineOptions) *Engine {
	t.Helper()
	ids := opts.ids
	if ids == nil {
		ids = &sequenceIDs{}
	}
	engine, err := NewEngine(EngineConfig{
		Directory:  newStubDirectory(),
		Clock:      opts.clock,
		IDProvider: ids,
		Logger:     opts.logger,
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

// mustChannel creates a public channel owned by creator and joins members in order.
func mustChannel(t *testing.T, engine *Engine, creator UserID, name string, members ...UserID) ConversationRef {
	t.Helper()
	ref, err := engine.CreateChannel(creator, name, true)
	if err != nil {
		t.Fatalf("create channel failed: %v", err)
	}
	for _, member := range members {
		if err := engine.Join(ref, member); err != nil {
			t.Fatalf("join %d failed: %v", member, err)
		}
	}
	return ref
}

func mustSend(t *testing.T, engine *Engine, ref ConversationRef, author UserID, body string) MessageID {
	t.Helper()
	id, err := engine.Send(ref, author, body)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	return id
}

func expectKind(t *testing.T, err error, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v error, got %v", kind, err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
