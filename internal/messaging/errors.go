package messaging

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput classifies malformed, oversized or dangling request data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized classifies callers lacking membership, ownership or admin rights.
	ErrUnauthorized = errors.New("unauthorized")

	errMissingDirectory  = errors.New("user directory is required")
	errMissingIDProvider = errors.New("id provider is required")
)

// ServiceError carries a stable "<operation>.<reason>" code and an error kind.
type ServiceError struct {
	code string
	kind error
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Is reports whether target is the kind of this error.
func (e *ServiceError) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// Code returns the stable error code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opEngineNew    = "messaging.engine.new"
	opSend         = "messaging.send"
	opSendLater    = "messaging.send_later"
	opDeliver      = "messaging.deliver"
	opPaginate     = "messaging.paginate"
	opEdit         = "messaging.edit"
	opRemove       = "messaging.remove"
	opReact        = "messaging.react"
	opUnreact      = "messaging.unreact"
	opPin          = "messaging.pin"
	opUnpin        = "messaging.unpin"
	opSearch       = "messaging.search"
	opShare        = "messaging.share"
	opStandupStart = "messaging.standup.start"
	opStandupSend  = "messaging.standup.send"
	opStandupQuery = "messaging.standup.active"
	opStandupFlush = "messaging.standup.flush"
	opCreateConv   = "messaging.conversation.create"
	opJoin         = "messaging.conversation.join"
	opInvite       = "messaging.conversation.invite"
	opRemoveConv   = "messaging.conversation.remove"
	opAddOwner     = "messaging.conversation.add_owner"
	opRename       = "messaging.conversation.rename"
	opGetConv      = "messaging.conversation.get"
	opNotifyAdded  = "messaging.notify_added"
	opRestore      = "messaging.restore"
)

func invalidInput(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, kind: ErrInvalidInput, err: cause}
}

func unauthorized(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, kind: ErrUnauthorized, err: cause}
}

func internalError(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, err: cause}
}
