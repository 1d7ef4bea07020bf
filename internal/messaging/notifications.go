package messaging

import (
	"fmt"
	"sync"
)

// NotificationKind enumerates notification shapes.
type NotificationKind string

const (
	NotificationTagged  NotificationKind = "tagged"
	NotificationAdded   NotificationKind = "added"
	NotificationReacted NotificationKind = "reacted"
)

// Notification is an append-only fan-out record addressed to one user.
type Notification struct {
	Kind             NotificationKind
	SenderHandle     string
	TargetUserID     UserID
	Conversation     ConversationRef
	ConversationName string
	Excerpt          string
}

// ChannelID returns the channel id or -1.
func (n Notification) ChannelID() int64 {
	return n.Conversation.ChannelIDOrSentinel()
}

// DMID returns the DM id or -1.
func (n Notification) DMID() int64 {
	return n.Conversation.DMIDOrSentinel()
}

// RenderedNotification is a notification formatted for display.
type RenderedNotification struct {
	ChannelID int64
	DMID      int64
	Message   string
}

// Render formats the notification using the supplied conversation name.
func (n Notification) Render(conversationName string) RenderedNotification {
	var text string
	switch n.Kind {
	case NotificationTagged:
		text = fmt.Sprintf("%s tagged you in %s: %s", n.SenderHandle, conversationName, n.Excerpt)
	case NotificationAdded:
		text = fmt.Sprintf("%s added you to %s", n.SenderHandle, conversationName)
	case NotificationReacted:
		text = fmt.Sprintf("%s reacted to your message in %s", n.SenderHandle, conversationName)
	}
	return RenderedNotification{
		ChannelID: n.ChannelID(),
		DMID:      n.DMID(),
		Message:   text,
	}
}

// notificationSink is the process-wide ordered notification list.
type notificationSink struct {
	mu      sync.RWMutex
	entries []Notification
}

func (s *notificationSink) append(notification Notification) {
	s.mu.Lock()
	s.entries = append(s.entries, notification)
	s.mu.Unlock()
}

// recent scans from the tail and returns up to limit entries for userID, newest first.
func (s *notificationSink) recent(userID UserID, limit int) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Notification, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if s.entries[i].TargetUserID == userID {
			result = append(result, s.entries[i])
		}
	}
	return result
}

func (s *notificationSink) all() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.entries...)
}

func (s *notificationSink) replace(entries []Notification) {
	s.mu.Lock()
	s.entries = append([]Notification(nil), entries...)
	s.mu.Unlock()
}
