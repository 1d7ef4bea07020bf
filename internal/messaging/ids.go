package messaging

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const maxIdentifierLength = 190

// UserID identifies a registered user.
type UserID int64

// NewUserID validates a raw user identifier.
func NewUserID(value int64) (UserID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: user id must be positive, got %d", ErrInvalidInput, value)
	}
	return UserID(value), nil
}

// ParseUserID validates textual input such as a token subject or path parameter.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: user id %q is not numeric", ErrInvalidInput, raw)
	}
	return NewUserID(parsed)
}

// Int64 exposes the raw value.
func (id UserID) Int64() int64 {
	return int64(id)
}

// String renders the id in base 10.
func (id UserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ConversationID identifies a channel or a DM within its kind.
type ConversationID int64

// ParseConversationID validates textual input.
func ParseConversationID(raw string) (ConversationID, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || parsed <= 0 {
		return 0, fmt.Errorf("%w: conversation id %q is not a positive integer", ErrInvalidInput, raw)
	}
	return ConversationID(parsed), nil
}

// Int64 exposes the raw value.
func (id ConversationID) Int64() int64 {
	return int64(id)
}

// ConversationKind distinguishes channels from direct-message groups.
type ConversationKind string

const (
	// KindChannel is a named channel with owners.
	KindChannel ConversationKind = "channel"
	// KindDM is a direct-message group owned by its creator.
	KindDM ConversationKind = "dm"
)

// ConversationRef addresses one conversation.
type ConversationRef struct {
	Kind ConversationKind
	ID   ConversationID
}

// Channel builds a channel reference.
func Channel(id ConversationID) ConversationRef {
	return ConversationRef{Kind: KindChannel, ID: id}
}

// DM builds a direct-message reference.
func DM(id ConversationID) ConversationRef {
	return ConversationRef{Kind: KindDM, ID: id}
}

// ChannelIDOrSentinel returns the channel id, or -1 for DMs.
func (r ConversationRef) ChannelIDOrSentinel() int64 {
	if r.Kind == KindChannel {
		return r.ID.Int64()
	}
	return -1
}

// DMIDOrSentinel returns the DM id, or -1 for channels.
func (r ConversationRef) DMIDOrSentinel() int64 {
	if r.Kind == KindDM {
		return r.ID.Int64()
	}
	return -1
}

func (r ConversationRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// MessageID identifies a message across every conversation.
type MessageID string

// NewMessageID validates raw input and returns a MessageID.
func NewMessageID(raw string) (MessageID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty message id", ErrInvalidInput)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: message id exceeds %d characters", ErrInvalidInput, maxIdentifierLength)
	}
	return MessageID(trimmed), nil
}

// String returns the underlying identifier.
func (id MessageID) String() string {
	return string(id)
}

// ReactKind enumerates reactions. Only ReactKindLike is accepted.
type ReactKind int

// ReactKindLike is the single supported reaction.
const ReactKindLike ReactKind = 1

// NewReactKind validates a raw reaction identifier.
func NewReactKind(value int) (ReactKind, error) {
	if ReactKind(value) != ReactKindLike {
		return 0, fmt.Errorf("%w: unsupported react kind %d", ErrInvalidInput, value)
	}
	return ReactKindLike, nil
}

// IDProvider issues message identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}
