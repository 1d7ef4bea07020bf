package messaging

import (
	"time"
	"unicode/utf8"
)

const (
	// MaxBodyLength bounds message bodies, standup lines and search queries, in characters.
	MaxBodyLength = 1000
	// PageSize is the number of messages returned by one Paginate call.
	PageSize = 50
	// EndOfLog is the sentinel end value meaning no further messages exist.
	EndOfLog = -1
	// RecentNotificationLimit bounds the notifications returned per user.
	RecentNotificationLimit = 20
	excerptLength           = 20
)

// Message is one record in a conversation log.
type Message struct {
	ID        MessageID
	AuthorID  UserID
	Body      string
	CreatedAt int64
	Reactors  []UserID
	Pinned    bool
}

func (m *Message) hasReactor(userID UserID) bool {
	for _, reactor := range m.Reactors {
		if reactor == userID {
			return true
		}
	}
	return false
}

func (m *Message) clone() Message {
	copied := *m
	copied.Reactors = append([]UserID(nil), m.Reactors...)
	return copied
}

// ReactSummary is the requester-dependent projection of one reaction kind.
type ReactSummary struct {
	ReactKind         ReactKind
	UserIDs           []UserID
	IsThisUserReacted bool
}

// MessageView is a message as seen by a particular requester.
type MessageView struct {
	ID        MessageID
	AuthorID  UserID
	Body      string
	CreatedAt int64
	Reacts    []ReactSummary
	Pinned    bool
}

func viewFor(message *Message, requester UserID) MessageView {
	return MessageView{
		ID:        message.ID,
		AuthorID:  message.AuthorID,
		Body:      message.Body,
		CreatedAt: message.CreatedAt,
		Reacts: []ReactSummary{{
			ReactKind:         ReactKindLike,
			UserIDs:           append([]UserID{}, message.Reactors...),
			IsThisUserReacted: message.hasReactor(requester),
		}},
		Pinned: message.Pinned,
	}
}

// Page is one window of the reverse-chronological log.
type Page struct {
	Messages []MessageView
	Start    int
	End      int
}

// SearchResult pairs a matching message with its conversation.
type SearchResult struct {
	Conversation ConversationRef
	Message      MessageView
}

// ConversationView is a read-only copy of a conversation's roster.
type ConversationView struct {
	Ref       ConversationRef
	Name      string
	Public    bool
	OwnerIDs  []UserID
	MemberIDs []UserID
}

// StandupStatus answers query_active.
type StandupStatus struct {
	IsActive bool
	Deadline *int64
}

// MutationEvent is delivered to OnMutation subscribers after a state change.
type MutationEvent struct {
	Operation    string
	Conversation ConversationRef
	MessageID    MessageID
	At           time.Time
}

func bodyLength(body string) int {
	return utf8.RuneCountInString(body)
}

func excerpt(body string) string {
	if bodyLength(body) <= excerptLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:excerptLength])
}
