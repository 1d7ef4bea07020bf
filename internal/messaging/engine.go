package messaging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

var noOpLogger = zap.NewNop()

// Directory resolves user handles and global privileges. It is owned by the
// user-management collaborator.
type Directory interface {
	Handle(userID UserID) (string, bool)
	IsGlobalOwner(userID UserID) bool
}

// EngineConfig describes the engine's collaborators.
type EngineConfig struct {
	Directory  Directory
	Clock      func() time.Time
	IDProvider IDProvider
	Scheduler  *Scheduler
	Logger     *zap.Logger
}

// Engine is the messaging core: conversation logs, notifications and the
// background producers that append to them.
type Engine struct {
	store     *store
	sink      *notificationSink
	directory Directory
	clock     func() time.Time
	ids       IDProvider
	scheduler *Scheduler
	ownsSched bool
	logger    *zap.Logger

	hooksMu           sync.RWMutex
	mutationHooks     []func(MutationEvent)
	notificationHooks []func(Notification)
}

// NewEngine wires an Engine. When no scheduler is supplied the engine creates
// and starts its own; Close stops it.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Directory == nil {
		return nil, internalError(opEngineNew, "missing_directory", errMissingDirectory)
	}
	if cfg.IDProvider == nil {
		return nil, internalError(opEngineNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	scheduler := cfg.Scheduler
	ownsScheduler := false
	if scheduler == nil {
		scheduler = NewScheduler(logger)
		scheduler.Start()
		ownsScheduler = true
	}
	return &Engine{
		store:     newStore(),
		sink:      &notificationSink{},
		directory: cfg.Directory,
		clock:     clock,
		ids:       cfg.IDProvider,
		scheduler: scheduler,
		ownsSched: ownsScheduler,
		logger:    logger,
	}, nil
}

// Close stops the engine's own scheduler. Pending deferred work is dropped.
func (e *Engine) Close() {
	if e.ownsSched {
		e.scheduler.Stop()
	}
}

// OnMutation subscribes fn to every successful state change. fn runs on the
// mutating goroutine after all locks are released.
func (e *Engine) OnMutation(fn func(MutationEvent)) {
	e.hooksMu.Lock()
	e.mutationHooks = append(e.mutationHooks, fn)
	e.hooksMu.Unlock()
}

// OnNotification subscribes fn to every appended notification.
func (e *Engine) OnNotification(fn func(Notification)) {
	e.hooksMu.Lock()
	e.notificationHooks = append(e.notificationHooks, fn)
	e.hooksMu.Unlock()
}

// Reset clears every conversation and notification. Pending background tasks
// still fire and are dropped because their targets no longer exist.
func (e *Engine) Reset() {
	e.store.reset()
	e.sink.replace(nil)
	e.publish(nil, MutationEvent{Operation: "messaging.reset"})
}

func (e *Engine) publish(notifications []Notification, event MutationEvent) {
	if event.At.IsZero() {
		event.At = e.clock().UTC()
	}
	e.hooksMu.RLock()
	notificationHooks := append([]func(Notification){}, e.notificationHooks...)
	mutationHooks := append([]func(MutationEvent){}, e.mutationHooks...)
	e.hooksMu.RUnlock()

	for _, notification := range notifications {
		for _, hook := range notificationHooks {
			hook(notification)
		}
	}
	for _, hook := range mutationHooks {
		hook(event)
	}
}

func (e *Engine) now() int64 {
	return e.clock().Unix()
}

func (e *Engine) newMessageID(operation string) (MessageID, error) {
	raw, err := e.ids.NewID()
	if err != nil {
		e.logError(operation, "id_generation_failed", err)
		return "", internalError(operation, "id_generation_failed", err)
	}
	return MessageID(raw), nil
}

// lockMessage finds the conversation holding id and returns it locked along
// with the record. The caller must unlock conv.mu.
func (e *Engine) lockMessage(operation string, id MessageID) (*conversation, *Message, error) {
	ref, ok := e.store.locate(id)
	if !ok {
		return nil, nil, invalidInput(operation, "message_not_found", nil)
	}
	conv, ok := e.store.get(ref)
	if !ok {
		return nil, nil, invalidInput(operation, "message_not_found", nil)
	}
	conv.mu.Lock()
	if conv.removed {
		conv.mu.Unlock()
		return nil, nil, invalidInput(operation, "message_not_found", nil)
	}
	message, _ := conv.log.find(id)
	if message == nil {
		conv.mu.Unlock()
		return nil, nil, invalidInput(operation, "message_not_found", nil)
	}
	return conv, message, nil
}

// lockCaptured locks a conversation captured when a background task was
// scheduled. It fails once that conversation has been removed, reset or
// replaced by a restore, even if a new conversation now holds the same ref.
func (e *Engine) lockCaptured(operation string, conv *conversation) error {
	conv.mu.Lock()
	if conv.removed {
		conv.mu.Unlock()
		return invalidInput(operation, "conversation_not_found", nil)
	}
	return nil
}

// fireTime converts a unix deadline on the engine clock into the wall-clock
// instant the scheduler should fire at.
func (e *Engine) fireTime(deadline int64) time.Time {
	return time.Now().Add(time.Unix(deadline, 0).Sub(e.clock()))
}

// lockConversation returns ref's conversation locked. The caller must unlock conv.mu.
func (e *Engine) lockConversation(operation string, ref ConversationRef) (*conversation, error) {
	conv, ok := e.store.get(ref)
	if !ok {
		return nil, invalidInput(operation, "conversation_not_found", nil)
	}
	conv.mu.Lock()
	if conv.removed {
		conv.mu.Unlock()
		return nil, invalidInput(operation, "conversation_not_found", nil)
	}
	return conv, nil
}

func (e *Engine) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	e.logger.Error("messaging engine error", attrs...)
}
