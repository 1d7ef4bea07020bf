package messaging

import "strings"

// scanAndNotify emits one tagged notification per distinct mentioned member.
// Candidates are tried in roster order, so when several unnotified handles are
// present the earliest-joined member wins, not the leftmost mention.
// The caller must hold conv.mu.
func (e *Engine) scanAndNotify(conv *conversation, authorID UserID, body string) []Notification {
	if !strings.Contains(body, "@") {
		return nil
	}
	if !conv.isMember(authorID) {
		return nil
	}
	senderHandle, ok := e.directory.Handle(authorID)
	if !ok {
		return nil
	}

	notified := make(map[UserID]struct{})
	var emitted []Notification
	for {
		target, found := e.nextMention(conv, body, notified)
		if !found {
			return emitted
		}
		notification := Notification{
			Kind:             NotificationTagged,
			SenderHandle:     senderHandle,
			TargetUserID:     target,
			Conversation:     conv.ref,
			ConversationName: conv.name,
			Excerpt:          excerpt(body),
		}
		e.sink.append(notification)
		emitted = append(emitted, notification)
		notified[target] = struct{}{}
	}
}

func (e *Engine) nextMention(conv *conversation, body string, notified map[UserID]struct{}) (UserID, bool) {
	for _, member := range conv.members {
		if _, done := notified[member]; done {
			continue
		}
		handle, ok := e.directory.Handle(member)
		if !ok || handle == "" {
			continue
		}
		if strings.Contains(body, "@"+handle) {
			return member, true
		}
	}
	return 0, false
}

// NotifyAdded records an added notification for each new member. Membership
// collaborators call it after they mutate a roster.
func (e *Engine) NotifyAdded(ref ConversationRef, actorID UserID, newMemberIDs []UserID) error {
	conv, ok := e.store.get(ref)
	if !ok {
		return invalidInput(opNotifyAdded, "conversation_not_found", nil)
	}
	conv.mu.Lock()
	name := conv.name
	conv.mu.Unlock()

	emitted := e.appendAdded(ref, name, actorID, newMemberIDs)
	e.publish(emitted, MutationEvent{Operation: opNotifyAdded, Conversation: ref})
	return nil
}

func (e *Engine) appendAdded(ref ConversationRef, name string, actorID UserID, newMemberIDs []UserID) []Notification {
	senderHandle, _ := e.directory.Handle(actorID)
	emitted := make([]Notification, 0, len(newMemberIDs))
	for _, memberID := range newMemberIDs {
		notification := Notification{
			Kind:             NotificationAdded,
			SenderHandle:     senderHandle,
			TargetUserID:     memberID,
			Conversation:     ref,
			ConversationName: name,
		}
		e.sink.append(notification)
		emitted = append(emitted, notification)
	}
	return emitted
}

// Notifications returns the caller's most recent notifications, newest first,
// rendered with the conversation's current name.
func (e *Engine) Notifications(userID UserID) []RenderedNotification {
	recent := e.sink.recent(userID, RecentNotificationLimit)
	rendered := make([]RenderedNotification, 0, len(recent))
	for _, notification := range recent {
		rendered = append(rendered, notification.Render(e.currentName(notification)))
	}
	return rendered
}

// RenderNotification formats one notification with the conversation's current name.
func (e *Engine) RenderNotification(notification Notification) RenderedNotification {
	return notification.Render(e.currentName(notification))
}

func (e *Engine) currentName(notification Notification) string {
	conv, ok := e.store.get(notification.Conversation)
	if !ok {
		return notification.ConversationName
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.name
}
