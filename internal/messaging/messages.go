package messaging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Send appends body to ref's log on behalf of authorID and scans it for mentions.
func (e *Engine) Send(ref ConversationRef, authorID UserID, body string) (MessageID, error) {
	if bodyLength(body) > MaxBodyLength {
		return "", invalidInput(opSend, "body_too_long", nil)
	}
	return e.send(opSend, ref, authorID, body)
}

func (e *Engine) send(operation string, ref ConversationRef, authorID UserID, body string) (MessageID, error) {
	conv, err := e.lockConversation(operation, ref)
	if err != nil {
		return "", err
	}
	if !conv.isMember(authorID) {
		conv.mu.Unlock()
		return "", unauthorized(operation, "not_member", nil)
	}
	id, err := e.newMessageID(operation)
	if err != nil {
		conv.mu.Unlock()
		return "", err
	}
	emitted := e.appendLocked(conv, &Message{
		ID:        id,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: e.now(),
	})
	conv.mu.Unlock()

	e.publish(emitted, MutationEvent{Operation: operation, Conversation: ref, MessageID: id})
	return id, nil
}

// appendLocked adds message to conv's log and runs the tag scanner over it
// while conv.mu is held, so the record and its notifications land together.
func (e *Engine) appendLocked(conv *conversation, message *Message) []Notification {
	conv.log.append(message)
	e.store.indexMessage(message.ID, conv.ref)
	return e.scanAndNotify(conv, message.AuthorID, message.Body)
}

// Paginate returns up to PageSize messages starting at reverse index start,
// where index 0 is the most recently appended message.
func (e *Engine) Paginate(ref ConversationRef, requesterID UserID, start int) (Page, error) {
	if start < 0 {
		return Page{}, invalidInput(opPaginate, "negative_start", nil)
	}
	conv, err := e.lockConversation(opPaginate, ref)
	if err != nil {
		return Page{}, err
	}
	defer conv.mu.Unlock()
	if start > conv.log.len() {
		return Page{}, invalidInput(opPaginate, "start_past_end", nil)
	}
	if !conv.isMember(requesterID) {
		return Page{}, unauthorized(opPaginate, "not_member", nil)
	}
	messages, end := conv.log.window(start, requesterID)
	return Page{Messages: messages, Start: start, End: end}, nil
}

// Edit replaces a message body in place. An empty body removes the message.
func (e *Engine) Edit(id MessageID, requesterID UserID, body string) error {
	if bodyLength(body) > MaxBodyLength {
		return invalidInput(opEdit, "body_too_long", nil)
	}
	conv, message, err := e.lockMessage(opEdit, id)
	if err != nil {
		return err
	}
	if !e.mayModify(conv, message, requesterID) {
		conv.mu.Unlock()
		return unauthorized(opEdit, "not_permitted", nil)
	}
	if body == "" {
		e.removeLocked(conv, id)
		ref := conv.ref
		conv.mu.Unlock()
		e.publish(nil, MutationEvent{Operation: opRemove, Conversation: ref, MessageID: id})
		return nil
	}
	message.Body = body
	emitted := e.scanAndNotify(conv, requesterID, body)
	ref := conv.ref
	conv.mu.Unlock()

	e.publish(emitted, MutationEvent{Operation: opEdit, Conversation: ref, MessageID: id})
	return nil
}

// Remove deletes a message with no residue. Removing twice is an error.
func (e *Engine) Remove(id MessageID, requesterID UserID) error {
	conv, message, err := e.lockMessage(opRemove, id)
	if err != nil {
		return err
	}
	if !e.mayModify(conv, message, requesterID) {
		conv.mu.Unlock()
		return unauthorized(opRemove, "not_permitted", nil)
	}
	e.removeLocked(conv, id)
	ref := conv.ref
	conv.mu.Unlock()

	e.publish(nil, MutationEvent{Operation: opRemove, Conversation: ref, MessageID: id})
	return nil
}

// mayModify allows the author, an owner of the conversation or a global owner.
func (e *Engine) mayModify(conv *conversation, message *Message, requesterID UserID) bool {
	return message.AuthorID == requesterID ||
		conv.isOwner(requesterID) ||
		e.directory.IsGlobalOwner(requesterID)
}

func (e *Engine) removeLocked(conv *conversation, id MessageID) {
	conv.log.remove(id)
	e.store.unindexMessage(id)
}

// Search returns every message containing query in the conversations userID
// belongs to. Channels come before DMs; each log is read oldest first.
func (e *Engine) Search(userID UserID, query string) ([]SearchResult, error) {
	if bodyLength(query) > MaxBodyLength {
		return nil, invalidInput(opSearch, "query_too_long", nil)
	}
	var results []SearchResult
	for _, conv := range e.store.ordered() {
		conv.mu.Lock()
		if !conv.removed && conv.isMember(userID) {
			for _, record := range conv.log.records {
				if strings.Contains(record.Body, query) {
					results = append(results, SearchResult{
						Conversation: conv.ref,
						Message:      viewFor(record, userID),
					})
				}
			}
		}
		conv.mu.Unlock()
	}
	return results, nil
}

// Share posts a quoted copy of an existing message into target. Only target
// membership is checked; the composed body obeys the usual length limit.
func (e *Engine) Share(id MessageID, requesterID UserID, comment string, target ConversationRef) (MessageID, error) {
	conv, message, err := e.lockMessage(opShare, id)
	if err != nil {
		return "", err
	}
	original := message.Body
	conv.mu.Unlock()

	composed := fmt.Sprintf("%s:\n  \"\"\n  %s\n  \"\"", comment, original)
	if bodyLength(composed) > MaxBodyLength {
		return "", invalidInput(opShare, "body_too_long", nil)
	}
	sharedID, err := e.send(opShare, target, requesterID, composed)
	if err != nil {
		e.logger.Debug("share rejected", zap.String("message_id", id.String()), zap.Error(err))
		return "", err
	}
	return sharedID, nil
}
