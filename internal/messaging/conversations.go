package messaging

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

const maxChannelNameLength = 20

// CreateChannel creates a channel whose creator is its first owner and member.
func (e *Engine) CreateChannel(creatorID UserID, name string, public bool) (ConversationRef, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || bodyLength(trimmed) > maxChannelNameLength {
		return ConversationRef{}, invalidInput(opCreateConv, "invalid_name", nil)
	}
	if _, ok := e.directory.Handle(creatorID); !ok {
		return ConversationRef{}, unauthorized(opCreateConv, "unknown_user", nil)
	}
	conv := e.store.create(KindChannel, trimmed, public, []UserID{creatorID}, []UserID{creatorID})
	e.publish(nil, MutationEvent{Operation: opCreateConv, Conversation: conv.ref})
	return conv.ref, nil
}

// CreateDM creates a direct-message group named after its members' sorted handles.
// The creator owns it; every other member receives an added notification.
func (e *Engine) CreateDM(creatorID UserID, memberIDs []UserID) (ConversationRef, error) {
	creatorHandle, ok := e.directory.Handle(creatorID)
	if !ok {
		return ConversationRef{}, unauthorized(opCreateConv, "unknown_user", nil)
	}
	others := lo.Uniq(lo.Without(memberIDs, creatorID))
	handles := []string{creatorHandle}
	for _, memberID := range others {
		handle, ok := e.directory.Handle(memberID)
		if !ok {
			return ConversationRef{}, invalidInput(opCreateConv, "unknown_member", nil)
		}
		handles = append(handles, handle)
	}
	sort.Strings(handles)
	name := strings.Join(handles, ", ")

	members := append([]UserID{creatorID}, others...)
	conv := e.store.create(KindDM, name, false, []UserID{creatorID}, members)
	emitted := e.appendAdded(conv.ref, name, creatorID, others)
	e.publish(emitted, MutationEvent{Operation: opCreateConv, Conversation: conv.ref})
	return conv.ref, nil
}

// Join adds userID to a public channel. Global owners may join private channels.
func (e *Engine) Join(ref ConversationRef, userID UserID) error {
	if ref.Kind != KindChannel {
		return invalidInput(opJoin, "not_a_channel", nil)
	}
	conv, err := e.lockConversation(opJoin, ref)
	if err != nil {
		return err
	}
	if conv.isMember(userID) {
		conv.mu.Unlock()
		return invalidInput(opJoin, "already_member", nil)
	}
	if !conv.public && !e.directory.IsGlobalOwner(userID) {
		conv.mu.Unlock()
		return unauthorized(opJoin, "private_channel", nil)
	}
	conv.members = append(conv.members, userID)
	conv.mu.Unlock()

	e.publish(nil, MutationEvent{Operation: opJoin, Conversation: ref})
	return nil
}

// Invite adds userID to ref on behalf of actorID, a current member.
func (e *Engine) Invite(ref ConversationRef, actorID, userID UserID) error {
	if _, ok := e.directory.Handle(userID); !ok {
		return invalidInput(opInvite, "unknown_user", nil)
	}
	conv, err := e.lockConversation(opInvite, ref)
	if err != nil {
		return err
	}
	if !conv.isMember(actorID) {
		conv.mu.Unlock()
		return unauthorized(opInvite, "not_member", nil)
	}
	if conv.isMember(userID) {
		conv.mu.Unlock()
		return invalidInput(opInvite, "already_member", nil)
	}
	conv.members = append(conv.members, userID)
	name := conv.name
	conv.mu.Unlock()

	emitted := e.appendAdded(ref, name, actorID, []UserID{userID})
	e.publish(emitted, MutationEvent{Operation: opInvite, Conversation: ref})
	return nil
}

// AddOwner promotes a member to owner. Only owners and global owners may do so.
func (e *Engine) AddOwner(ref ConversationRef, actorID, userID UserID) error {
	conv, err := e.lockConversation(opAddOwner, ref)
	if err != nil {
		return err
	}
	if !conv.isOwner(actorID) && !e.directory.IsGlobalOwner(actorID) {
		conv.mu.Unlock()
		return unauthorized(opAddOwner, "not_owner", nil)
	}
	if !conv.isMember(userID) {
		conv.mu.Unlock()
		return invalidInput(opAddOwner, "not_member", nil)
	}
	if conv.isOwner(userID) {
		conv.mu.Unlock()
		return invalidInput(opAddOwner, "already_owner", nil)
	}
	conv.owners = append(conv.owners, userID)
	conv.mu.Unlock()

	e.publish(nil, MutationEvent{Operation: opAddOwner, Conversation: ref})
	return nil
}

// Rename changes a channel's display name. Owners only.
func (e *Engine) Rename(ref ConversationRef, actorID UserID, name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || bodyLength(trimmed) > maxChannelNameLength {
		return invalidInput(opRename, "invalid_name", nil)
	}
	conv, err := e.lockConversation(opRename, ref)
	if err != nil {
		return err
	}
	if !conv.isOwner(actorID) && !e.directory.IsGlobalOwner(actorID) {
		conv.mu.Unlock()
		return unauthorized(opRename, "not_owner", nil)
	}
	conv.name = trimmed
	conv.mu.Unlock()

	e.publish(nil, MutationEvent{Operation: opRename, Conversation: ref})
	return nil
}

// RemoveConversation deletes ref and its log. Owners and global owners only.
func (e *Engine) RemoveConversation(ref ConversationRef, requesterID UserID) error {
	conv, err := e.lockConversation(opRemoveConv, ref)
	if err != nil {
		return err
	}
	if !conv.isOwner(requesterID) && !e.directory.IsGlobalOwner(requesterID) {
		conv.mu.Unlock()
		return unauthorized(opRemoveConv, "not_owner", nil)
	}
	conv.removed = true
	for _, record := range conv.log.records {
		e.store.unindexMessage(record.ID)
	}
	e.store.delete(ref)
	conv.mu.Unlock()

	e.publish(nil, MutationEvent{Operation: opRemoveConv, Conversation: ref})
	return nil
}

// Conversation returns a copy of ref's roster.
func (e *Engine) Conversation(ref ConversationRef) (ConversationView, error) {
	conv, err := e.lockConversation(opGetConv, ref)
	if err != nil {
		return ConversationView{}, err
	}
	defer conv.mu.Unlock()
	return conv.view(), nil
}

// IsMember reports whether userID belongs to ref.
func (e *Engine) IsMember(ref ConversationRef, userID UserID) bool {
	view, err := e.Conversation(ref)
	return err == nil && lo.Contains(view.MemberIDs, userID)
}

// IsOwner reports whether userID owns ref.
func (e *Engine) IsOwner(ref ConversationRef, userID UserID) bool {
	view, err := e.Conversation(ref)
	return err == nil && lo.Contains(view.OwnerIDs, userID)
}
