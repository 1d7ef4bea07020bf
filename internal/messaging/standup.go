package messaging

import (
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// StartStandup opens a buffering window on a channel and returns its deadline.
func (e *Engine) StartStandup(ref ConversationRef, requesterID UserID, lengthSeconds int) (int64, error) {
	if ref.Kind != KindChannel {
		return 0, invalidInput(opStandupStart, "conversation_not_found", nil)
	}
	if lengthSeconds < 0 {
		return 0, invalidInput(opStandupStart, "negative_length", nil)
	}
	conv, err := e.lockConversation(opStandupStart, ref)
	if err != nil {
		return 0, err
	}
	if !conv.isMember(requesterID) {
		conv.mu.Unlock()
		return 0, unauthorized(opStandupStart, "not_member", nil)
	}
	if conv.standup.active {
		conv.mu.Unlock()
		return 0, invalidInput(opStandupStart, "already_active", nil)
	}
	deadline := e.now() + int64(lengthSeconds)
	generation := conv.standup.generation + 1
	conv.standup = standupState{
		active:     true,
		deadline:   deadline,
		starterID:  requesterID,
		generation: generation,
	}
	conv.mu.Unlock()

	e.scheduler.At(e.fireTime(deadline), fmt.Sprintf("standup-flush:%s", ref), func() {
		e.flushStandup(conv, generation)
	})
	e.publish(nil, MutationEvent{Operation: opStandupStart, Conversation: ref})
	return deadline, nil
}

// SendStandup buffers one line, prefixed by the contributor's handle.
func (e *Engine) SendStandup(ref ConversationRef, requesterID UserID, line string) error {
	if ref.Kind != KindChannel {
		return invalidInput(opStandupSend, "conversation_not_found", nil)
	}
	conv, err := e.lockConversation(opStandupSend, ref)
	if err != nil {
		return err
	}
	if !conv.standup.active {
		conv.mu.Unlock()
		return invalidInput(opStandupSend, "not_active", nil)
	}
	if bodyLength(line) > MaxBodyLength {
		conv.mu.Unlock()
		return invalidInput(opStandupSend, "body_too_long", nil)
	}
	if !conv.isMember(requesterID) {
		conv.mu.Unlock()
		return unauthorized(opStandupSend, "not_member", nil)
	}
	handle, _ := e.directory.Handle(requesterID)
	conv.standup.buffer += fmt.Sprintf("%s: %s\n", handle, line)
	conv.mu.Unlock()

	e.publish(nil, MutationEvent{Operation: opStandupSend, Conversation: ref})
	return nil
}

// StandupActive reports whether a standup is running and its deadline.
func (e *Engine) StandupActive(ref ConversationRef) (StandupStatus, error) {
	if ref.Kind != KindChannel {
		return StandupStatus{}, invalidInput(opStandupQuery, "conversation_not_found", nil)
	}
	conv, err := e.lockConversation(opStandupQuery, ref)
	if err != nil {
		return StandupStatus{}, err
	}
	defer conv.mu.Unlock()
	if !conv.standup.active {
		return StandupStatus{IsActive: false}, nil
	}
	deadline := conv.standup.deadline
	return StandupStatus{IsActive: true, Deadline: &deadline}, nil
}

func (e *Engine) flushStandup(conv *conversation, generation int64) {
	ref := conv.ref
	if err := e.lockCaptured(opStandupFlush, conv); err != nil {
		e.logger.Warn("standup flush dropped", zap.String("conversation", ref.String()), zap.Error(err))
		return
	}
	state := conv.standup
	if !state.active || state.generation != generation {
		conv.mu.Unlock()
		return
	}
	conv.standup = standupState{generation: state.generation}

	body := strings.TrimRightFunc(state.buffer, unicode.IsSpace)
	var emitted []Notification
	var id MessageID
	if body != "" {
		var err error
		id, err = e.newMessageID(opStandupFlush)
		if err == nil {
			emitted = e.appendLocked(conv, &Message{
				ID:        id,
				AuthorID:  state.starterID,
				Body:      body,
				CreatedAt: state.deadline,
			})
		}
	}
	conv.mu.Unlock()

	e.publish(emitted, MutationEvent{Operation: opStandupFlush, Conversation: ref, MessageID: id})
}
