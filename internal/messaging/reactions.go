package messaging

import "github.com/samber/lo"

// React records requesterID's reaction and notifies the message author.
// Reacting to one's own message notifies oneself.
func (e *Engine) React(id MessageID, requesterID UserID, kind int) error {
	if _, err := NewReactKind(kind); err != nil {
		return invalidInput(opReact, "invalid_react", err)
	}
	conv, message, err := e.lockMessage(opReact, id)
	if err != nil {
		return err
	}
	if !conv.isMember(requesterID) {
		conv.mu.Unlock()
		return unauthorized(opReact, "not_member", nil)
	}
	if message.hasReactor(requesterID) {
		conv.mu.Unlock()
		return invalidInput(opReact, "already_reacted", nil)
	}
	message.Reactors = append(message.Reactors, requesterID)

	senderHandle, _ := e.directory.Handle(requesterID)
	notification := Notification{
		Kind:             NotificationReacted,
		SenderHandle:     senderHandle,
		TargetUserID:     message.AuthorID,
		Conversation:     conv.ref,
		ConversationName: conv.name,
	}
	e.sink.append(notification)
	ref := conv.ref
	conv.mu.Unlock()

	e.publish([]Notification{notification}, MutationEvent{Operation: opReact, Conversation: ref, MessageID: id})
	return nil
}

// Unreact withdraws requesterID's reaction.
func (e *Engine) Unreact(id MessageID, requesterID UserID, kind int) error {
	if _, err := NewReactKind(kind); err != nil {
		return invalidInput(opUnreact, "invalid_react", err)
	}
	conv, message, err := e.lockMessage(opUnreact, id)
	if err != nil {
		return err
	}
	if !conv.isMember(requesterID) {
		conv.mu.Unlock()
		return unauthorized(opUnreact, "not_member", nil)
	}
	if !message.hasReactor(requesterID) {
		conv.mu.Unlock()
		return invalidInput(opUnreact, "not_reacted", nil)
	}
	message.Reactors = lo.Without(message.Reactors, requesterID)
	ref := conv.ref
	conv.mu.Unlock()

	e.publish(nil, MutationEvent{Operation: opUnreact, Conversation: ref, MessageID: id})
	return nil
}

// Pin marks a message as pinned. Channel owners or any DM member may pin.
func (e *Engine) Pin(id MessageID, requesterID UserID) error {
	return e.setPinned(opPin, id, requesterID, true)
}

// Unpin clears the pinned flag under the same rules as Pin.
func (e *Engine) Unpin(id MessageID, requesterID UserID) error {
	return e.setPinned(opUnpin, id, requesterID, false)
}

func (e *Engine) setPinned(operation string, id MessageID, requesterID UserID, pinned bool) error {
	conv, message, err := e.lockMessage(operation, id)
	if err != nil {
		return err
	}
	if !conv.isMember(requesterID) {
		conv.mu.Unlock()
		return unauthorized(operation, "not_member", nil)
	}
	if conv.ref.Kind == KindChannel && !conv.isOwner(requesterID) {
		conv.mu.Unlock()
		return unauthorized(operation, "not_owner", nil)
	}
	if message.Pinned == pinned {
		conv.mu.Unlock()
		if pinned {
			return invalidInput(operation, "already_pinned", nil)
		}
		return invalidInput(operation, "not_pinned", nil)
	}
	message.Pinned = pinned
	ref := conv.ref
	conv.mu.Unlock()

	e.publish(nil, MutationEvent{Operation: operation, Conversation: ref, MessageID: id})
	return nil
}
