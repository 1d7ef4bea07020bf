package messaging

import "fmt"

// Snapshot is a storage-agnostic copy of every conversation and notification.
// Pending deferred sends and standup buffers are not part of it.
type Snapshot struct {
	Conversations []ConversationSnapshot `json:"conversations"`
	Notifications []NotificationSnapshot `json:"notifications"`
}

// ConversationSnapshot captures one conversation and its log in insertion order.
type ConversationSnapshot struct {
	Kind      ConversationKind  `json:"kind"`
	ID        ConversationID    `json:"id"`
	Name      string            `json:"name"`
	Public    bool              `json:"public"`
	OwnerIDs  []UserID          `json:"owner_ids"`
	MemberIDs []UserID          `json:"member_ids"`
	Messages  []MessageSnapshot `json:"messages"`
}

// MessageSnapshot captures one message record.
type MessageSnapshot struct {
	ID         MessageID `json:"message_id"`
	AuthorID   UserID    `json:"author_id"`
	Body       string    `json:"body"`
	CreatedAt  int64     `json:"created_at"`
	ReactorIDs []UserID  `json:"reactor_ids"`
	Pinned     bool      `json:"pinned"`
}

// NotificationSnapshot captures one notification.
type NotificationSnapshot struct {
	Kind             NotificationKind `json:"kind"`
	SenderHandle     string           `json:"sender_handle"`
	TargetUserID     UserID           `json:"target_user_id"`
	ConversationKind ConversationKind `json:"conversation_kind"`
	ConversationID   ConversationID   `json:"conversation_id"`
	ConversationName string           `json:"conversation_name"`
	Excerpt          string           `json:"excerpt"`
}

// Snapshot copies the current state. Each conversation is read under its own
// lock, so the result is consistent per conversation.
func (e *Engine) Snapshot() Snapshot {
	var snapshot Snapshot
	for _, conv := range e.store.ordered() {
		conv.mu.Lock()
		if conv.removed {
			conv.mu.Unlock()
			continue
		}
		entry := ConversationSnapshot{
			Kind:      conv.ref.Kind,
			ID:        conv.ref.ID,
			Name:      conv.name,
			Public:    conv.public,
			OwnerIDs:  append([]UserID{}, conv.owners...),
			MemberIDs: append([]UserID{}, conv.members...),
			Messages:  make([]MessageSnapshot, 0, conv.log.len()),
		}
		for _, record := range conv.log.records {
			copied := record.clone()
			entry.Messages = append(entry.Messages, MessageSnapshot{
				ID:         copied.ID,
				AuthorID:   copied.AuthorID,
				Body:       copied.Body,
				CreatedAt:  copied.CreatedAt,
				ReactorIDs: copied.Reactors,
				Pinned:     copied.Pinned,
			})
		}
		conv.mu.Unlock()
		snapshot.Conversations = append(snapshot.Conversations, entry)
	}
	for _, notification := range e.sink.all() {
		snapshot.Notifications = append(snapshot.Notifications, NotificationSnapshot{
			Kind:             notification.Kind,
			SenderHandle:     notification.SenderHandle,
			TargetUserID:     notification.TargetUserID,
			ConversationKind: notification.Conversation.Kind,
			ConversationID:   notification.Conversation.ID,
			ConversationName: notification.ConversationName,
			Excerpt:          notification.Excerpt,
		})
	}
	return snapshot
}

// Restore replaces all state with snapshot. Standups come back Idle.
func (e *Engine) Restore(snapshot Snapshot) error {
	conversations := make([]*conversation, 0, len(snapshot.Conversations))
	seenConversations := make(map[ConversationRef]struct{}, len(snapshot.Conversations))
	seenMessages := make(map[MessageID]struct{})
	for _, entry := range snapshot.Conversations {
		ref := ConversationRef{Kind: entry.Kind, ID: entry.ID}
		if err := validateRef(ref); err != nil {
			return invalidInput(opRestore, "invalid_conversation", err)
		}
		if _, duplicate := seenConversations[ref]; duplicate {
			return invalidInput(opRestore, "duplicate_conversation", fmt.Errorf("conversation %s repeated", ref))
		}
		seenConversations[ref] = struct{}{}

		conv := &conversation{
			ref:     ref,
			name:    entry.Name,
			public:  entry.Public,
			owners:  append([]UserID{}, entry.OwnerIDs...),
			members: append([]UserID{}, entry.MemberIDs...),
		}
		for _, record := range entry.Messages {
			if _, duplicate := seenMessages[record.ID]; duplicate || record.ID == "" {
				return invalidInput(opRestore, "invalid_message", fmt.Errorf("message %q empty or repeated", record.ID))
			}
			seenMessages[record.ID] = struct{}{}
			conv.log.append(&Message{
				ID:        record.ID,
				AuthorID:  record.AuthorID,
				Body:      record.Body,
				CreatedAt: record.CreatedAt,
				Reactors:  append([]UserID(nil), record.ReactorIDs...),
				Pinned:    record.Pinned,
			})
		}
		conversations = append(conversations, conv)
	}

	notifications := make([]Notification, 0, len(snapshot.Notifications))
	for _, entry := range snapshot.Notifications {
		notifications = append(notifications, Notification{
			Kind:             entry.Kind,
			SenderHandle:     entry.SenderHandle,
			TargetUserID:     entry.TargetUserID,
			Conversation:     ConversationRef{Kind: entry.ConversationKind, ID: entry.ConversationID},
			ConversationName: entry.ConversationName,
			Excerpt:          entry.Excerpt,
		})
	}

	e.store.reset()
	for _, conv := range conversations {
		e.store.insert(conv)
		for _, record := range conv.log.records {
			e.store.indexMessage(record.ID, conv.ref)
		}
	}
	e.sink.replace(notifications)
	e.publish(nil, MutationEvent{Operation: opRestore})
	return nil
}

func validateRef(ref ConversationRef) error {
	if ref.Kind != KindChannel && ref.Kind != KindDM {
		return fmt.Errorf("unknown conversation kind %q", ref.Kind)
	}
	if ref.ID <= 0 {
		return fmt.Errorf("conversation id %d is not positive", ref.ID)
	}
	return nil
}
