package messaging

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestNewEngineRequiresCollaborators(t *testing.T) {
	if _, err := NewEngine(EngineConfig{IDProvider: &sequenceIDs{}}); err == nil || !errors.Is(err, errMissingDirectory) {
		t.Fatalf("expected missing directory error, got %v", err)
	}
	if _, err := NewEngine(EngineConfig{Directory: newStubDirectory()}); err == nil || !errors.Is(err, errMissingIDProvider) {
		t.Fatalf("expected missing id provider error, got %v", err)
	}
}

func TestServiceErrorCodes(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general")

	_, err := engine.Send(channel, bob, "hi")
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected ServiceError, got %T", err)
	}
	if serviceErr.Code() != "messaging.send.not_member" {
		t.Fatalf("unexpected code %q", serviceErr.Code())
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unauthorized error must not classify as invalid input")
	}
}

func TestMutationHooksRunOutsideLocks(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general")

	var events []MutationEvent
	engine.OnMutation(func(event MutationEvent) {
		events = append(events, event)
		if _, err := engine.Paginate(event.Conversation, alice, 0); err != nil {
			t.Errorf("re-entrant read failed: %v", err)
		}
	})

	id := mustSend(t, engine, channel, alice, "hello")
	if err := engine.React(id, alice, int(ReactKindLike)); err != nil {
		t.Fatalf("react failed: %v", err)
	}
	if err := engine.Edit(id, alice, ""); err != nil {
		t.Fatalf("edit failed: %v", err)
	}

	want := []string{opSend, opReact, opRemove}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %#v", len(want), events)
	}
	for i, operation := range want {
		if events[i].Operation != operation || events[i].MessageID != id || events[i].Conversation != channel {
			t.Fatalf("unexpected event %d: %#v", i, events[i])
		}
		if events[i].At.IsZero() {
			t.Fatalf("expected event timestamp")
		}
	}
}

func TestFailedOperationsDoNotPublish(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general")

	calls := 0
	engine.OnMutation(func(MutationEvent) { calls++ })
	_, _ = engine.Send(channel, bob, "nope")
	_ = engine.Remove(MessageID("missing"), alice)
	if calls != 0 {
		t.Fatalf("expected no events for rejected operations, got %d", calls)
	}
}

func TestConcurrentSendsKeepLogConsistent(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob, carol)
	authors := []UserID{alice, bob, carol}
	const perAuthor = 40

	var wg sync.WaitGroup
	for _, author := range authors {
		wg.Add(1)
		go func(author UserID) {
			defer wg.Done()
			for i := 0; i < perAuthor; i++ {
				if _, err := engine.Send(channel, author, fmt.Sprintf("%d-%d @alice", author, i)); err != nil {
					t.Errorf("send failed: %v", err)
					return
				}
			}
		}(author)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := engine.Paginate(channel, alice, 0); err != nil {
				t.Errorf("paginate failed: %v", err)
				return
			}
		}
	}()
	wg.Wait()

	seen := make(map[MessageID]struct{})
	lastIndex := make(map[UserID]int)
	for start := 0; start != EndOfLog; {
		page, err := engine.Paginate(channel, alice, start)
		if err != nil {
			t.Fatalf("paginate failed: %v", err)
		}
		for _, message := range page.Messages {
			if _, duplicate := seen[message.ID]; duplicate {
				t.Fatalf("duplicate message %s", message.ID)
			}
			seen[message.ID] = struct{}{}
			var author UserID
			var index int
			if _, err := fmt.Sscanf(message.Body, "%d-%d", &author, &index); err != nil {
				t.Fatalf("unexpected body %q", message.Body)
			}
			if previous, ok := lastIndex[author]; ok && index >= previous {
				t.Fatalf("per-author order violated for %d: %d after %d", author, index, previous)
			}
			lastIndex[author] = index
		}
		start = page.End
	}
	if len(seen) != len(authors)*perAuthor {
		t.Fatalf("expected %d messages, got %d", len(authors)*perAuthor, len(seen))
	}
	if got := len(engine.Notifications(alice)); got != RecentNotificationLimit {
		t.Fatalf("expected capped notification feed, got %d", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	source := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, source, alice, "general", bob)
	id := mustSend(t, source, channel, alice, "hi @bob")
	if err := source.React(id, bob, int(ReactKindLike)); err != nil {
		t.Fatalf("react failed: %v", err)
	}
	if err := source.Pin(id, alice); err != nil {
		t.Fatalf("pin failed: %v", err)
	}
	dm, err := source.CreateDM(alice, []UserID{carol})
	if err != nil {
		t.Fatalf("create dm failed: %v", err)
	}
	if _, err := source.StartStandup(channel, alice, 3600); err != nil {
		t.Fatalf("start standup failed: %v", err)
	}
	snapshot := source.Snapshot()

	restored := newTestEngine(t, engineOptions{})
	if err := restored.Restore(snapshot); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	page, err := restored.Paginate(channel, bob, 0)
	if err != nil {
		t.Fatalf("paginate after restore failed: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].ID != id || !page.Messages[0].Pinned {
		t.Fatalf("unexpected restored page %#v", page.Messages)
	}
	if !page.Messages[0].Reacts[0].IsThisUserReacted {
		t.Fatalf("expected reaction to survive restore")
	}
	if got := restored.Notifications(bob); len(got) != 1 || got[0].Message != "alice tagged you in general: hi @bob" {
		t.Fatalf("unexpected restored notifications %#v", got)
	}
	if got := restored.Notifications(carol); len(got) != 1 || got[0].DMID != dm.ID.Int64() {
		t.Fatalf("unexpected restored dm notification %#v", got)
	}
	status, _ := restored.StandupActive(channel)
	if status.IsActive {
		t.Fatalf("expected restored standup to be idle")
	}
	if err := restored.Edit(id, alice, "edited"); err != nil {
		t.Fatalf("expected restored message to be addressable: %v", err)
	}
	next, err := restored.CreateChannel(alice, "next", true)
	if err != nil {
		t.Fatalf("create channel failed: %v", err)
	}
	if next.ID != 2 {
		t.Fatalf("expected id allocation to continue after restore, got %d", next.ID)
	}
}

func TestRestoreRejectsDuplicates(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	snapshot := Snapshot{Conversations: []ConversationSnapshot{
		{Kind: KindChannel, ID: 1, Name: "a"},
		{Kind: KindChannel, ID: 1, Name: "b"},
	}}
	expectKind(t, engine.Restore(snapshot), ErrInvalidInput)

	snapshot = Snapshot{Conversations: []ConversationSnapshot{
		{Kind: KindChannel, ID: 1, Messages: []MessageSnapshot{{ID: "m"}}},
		{Kind: KindDM, ID: 1, Messages: []MessageSnapshot{{ID: "m"}}},
	}}
	expectKind(t, engine.Restore(snapshot), ErrInvalidInput)

	snapshot = Snapshot{Conversations: []ConversationSnapshot{{Kind: "group", ID: 1}}}
	expectKind(t, engine.Restore(snapshot), ErrInvalidInput)
}

func TestResetClearsState(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob)
	id := mustSend(t, engine, channel, alice, "@bob hi")

	engine.Reset()

	_, err := engine.Paginate(channel, alice, 0)
	expectKind(t, err, ErrInvalidInput)
	expectKind(t, engine.Remove(id, alice), ErrInvalidInput)
	if got := engine.Notifications(bob); len(got) != 0 {
		t.Fatalf("expected notifications cleared, got %d", len(got))
	}
	again := mustChannel(t, engine, alice, "general")
	if again.ID != 1 {
		t.Fatalf("expected id allocation to restart, got %d", again.ID)
	}
}
