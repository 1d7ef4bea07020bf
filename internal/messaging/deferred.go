package messaging

import "go.uber.org/zap"

// SendLater validates like Send and schedules the append for deliverAt (unix
// seconds). The id is returned immediately; the message becomes visible when
// the task fires, stamped with deliverAt rather than the firing time.
func (e *Engine) SendLater(ref ConversationRef, authorID UserID, body string, deliverAt int64) (MessageID, error) {
	if bodyLength(body) > MaxBodyLength {
		return "", invalidInput(opSendLater, "body_too_long", nil)
	}
	conv, err := e.lockConversation(opSendLater, ref)
	if err != nil {
		return "", err
	}
	member := conv.isMember(authorID)
	conv.mu.Unlock()
	if !member {
		return "", unauthorized(opSendLater, "not_member", nil)
	}
	if deliverAt < e.now() {
		return "", invalidInput(opSendLater, "time_in_past", nil)
	}
	id, err := e.newMessageID(opSendLater)
	if err != nil {
		return "", err
	}

	e.scheduler.At(e.fireTime(deliverAt), "deferred-send:"+id.String(), func() {
		e.deliver(conv, authorID, body, deliverAt, id)
	})
	return id, nil
}

func (e *Engine) deliver(conv *conversation, authorID UserID, body string, deliverAt int64, id MessageID) {
	ref := conv.ref
	if err := e.lockCaptured(opDeliver, conv); err != nil {
		e.logger.Warn("deferred message dropped",
			zap.String("conversation", ref.String()),
			zap.String("message_id", id.String()),
			zap.Error(err))
		return
	}
	emitted := e.appendLocked(conv, &Message{
		ID:        id,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: deliverAt,
	})
	conv.mu.Unlock()

	e.publish(emitted, MutationEvent{Operation: opDeliver, Conversation: ref, MessageID: id})
}
