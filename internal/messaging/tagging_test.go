package messaging

import (
	"strings"
	"testing"
)

func TestTagNotifiesEachMemberOnce(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob, carol)

	mustSend(t, engine, channel, alice, "@bob @bob @carol and @bob again")

	if got := len(engine.Notifications(bob)); got != 1 {
		t.Fatalf("expected bob to be notified once, got %d", got)
	}
	if got := len(engine.Notifications(carol)); got != 1 {
		t.Fatalf("expected carol to be notified once, got %d", got)
	}
	if got := len(engine.Notifications(alice)); got != 0 {
		t.Fatalf("expected author to receive nothing, got %d", got)
	}
}

func TestTagFollowsRosterOrder(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob, carol)

	var targets []UserID
	engine.OnNotification(func(notification Notification) {
		targets = append(targets, notification.TargetUserID)
	})
	mustSend(t, engine, channel, alice, "@carol then @bob")

	if len(targets) != 2 || targets[0] != bob || targets[1] != carol {
		t.Fatalf("expected roster order [bob carol], got %v", targets)
	}
}

func TestTagIgnoresNonMembers(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob)

	mustSend(t, engine, channel, alice, "@carol are you there? @nobody")

	if got := len(engine.Notifications(carol)); got != 0 {
		t.Fatalf("expected non-member to be skipped, got %d notifications", got)
	}
}

func TestTagExcerptIsFirstTwentyCharacters(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob)

	mustSend(t, engine, channel, alice, "@bob please review the release notes")

	feed := engine.Notifications(bob)
	want := "alice tagged you in general: @bob please review t"
	if len(feed) != 1 || feed[0].Message != want {
		t.Fatalf("expected %q, got %#v", want, feed)
	}
}

func TestEditRescansWithEditorAsSender(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob, carol)
	id := mustSend(t, engine, channel, bob, "plain")

	if err := engine.Edit(id, alice, "ping @carol"); err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	feed := engine.Notifications(carol)
	if len(feed) != 1 || feed[0].Message != "alice tagged you in general: ping @carol" {
		t.Fatalf("unexpected feed %#v", feed)
	}
}

func TestTaggedNotificationSurvivesRemoval(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob, carol)

	id := mustSend(t, engine, channel, alice, "hi @bob")
	before := engine.Notifications(bob)
	if len(before) == 0 || before[0].Message != "alice tagged you in general: hi @bob" {
		t.Fatalf("unexpected feed %#v", before)
	}

	if err := engine.Remove(id, alice); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	after := engine.Notifications(bob)
	if len(after) != len(before) || after[0] != before[0] {
		t.Fatalf("expected notifications to be retained after removal, got %#v", after)
	}
}

func TestNotificationsRenderCurrentName(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob)
	mustSend(t, engine, channel, alice, "@bob hi")

	if err := engine.Rename(channel, alice, "announcements"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	feed := engine.Notifications(bob)
	if feed[0].Message != "alice tagged you in announcements: @bob hi" {
		t.Fatalf("expected read-time rendering, got %q", feed[0].Message)
	}

	if err := engine.RemoveConversation(channel, alice); err != nil {
		t.Fatalf("remove conversation failed: %v", err)
	}
	feed = engine.Notifications(bob)
	if feed[0].Message != "alice tagged you in general: @bob hi" {
		t.Fatalf("expected stored name once the conversation is gone, got %q", feed[0].Message)
	}
}

func TestNotificationsAreCappedNewestFirst(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	channel := mustChannel(t, engine, alice, "general", bob)
	for i := 0; i < RecentNotificationLimit+5; i++ {
		mustSend(t, engine, channel, alice, "@bob "+strings.Repeat("!", i))
	}

	feed := engine.Notifications(bob)
	if len(feed) != RecentNotificationLimit {
		t.Fatalf("expected %d notifications, got %d", RecentNotificationLimit, len(feed))
	}
	newest := "alice tagged you in general: @bob " + strings.Repeat("!", 15)
	if feed[0].Message != newest {
		t.Fatalf("expected newest first, got %q", feed[0].Message)
	}
}

func TestAddedNotificationsForDMAndInvite(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	dm, err := engine.CreateDM(carol, []UserID{bob, alice, bob})
	if err != nil {
		t.Fatalf("create dm failed: %v", err)
	}
	view, err := engine.Conversation(dm)
	if err != nil {
		t.Fatalf("conversation lookup failed: %v", err)
	}
	if view.Name != "alice, bob, carol" {
		t.Fatalf("expected sorted handle name, got %q", view.Name)
	}
	if len(view.MemberIDs) != 3 || len(view.OwnerIDs) != 1 || view.OwnerIDs[0] != carol {
		t.Fatalf("unexpected roster %#v", view)
	}

	feed := engine.Notifications(bob)
	if len(feed) != 1 || feed[0].Message != "carol added you to alice, bob, carol" {
		t.Fatalf("unexpected feed %#v", feed)
	}
	if feed[0].ChannelID != -1 || feed[0].DMID != dm.ID.Int64() {
		t.Fatalf("unexpected ids channel=%d dm=%d", feed[0].ChannelID, feed[0].DMID)
	}

	channel := mustChannel(t, engine, alice, "general")
	if err := engine.Invite(channel, alice, erin); err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	invited := engine.Notifications(erin)
	if len(invited) != 1 || invited[0].Message != "alice added you to general" {
		t.Fatalf("unexpected invite feed %#v", invited)
	}
	expectKind(t, engine.Invite(channel, alice, erin), ErrInvalidInput)
	expectKind(t, engine.Invite(channel, bob, carol), ErrUnauthorized)
}

func TestNotifyAddedRequiresConversation(t *testing.T) {
	engine := newTestEngine(t, engineOptions{})
	expectKind(t, engine.NotifyAdded(Channel(42), alice, []UserID{bob}), ErrInvalidInput)

	channel := mustChannel(t, engine, alice, "general", bob)
	if err := engine.NotifyAdded(channel, alice, []UserID{bob}); err != nil {
		t.Fatalf("notify added failed: %v", err)
	}
	if got := engine.Notifications(bob); len(got) != 1 || got[0].Message != "alice added you to general" {
		t.Fatalf("unexpected feed %#v", got)
	}
}
