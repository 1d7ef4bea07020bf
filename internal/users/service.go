package users

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/huddle/internal/messaging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidHandle indicates a handle outside 3-20 characters of [a-z0-9_].
	ErrInvalidHandle = errors.New("users: invalid handle")
	// ErrHandleTaken indicates another user already holds the handle.
	ErrHandleTaken = errors.New("users: handle already taken")
	// ErrUnknownUser indicates no user has the requested id.
	ErrUnknownUser = errors.New("users: unknown user")
	// ErrInvalidPermission indicates an unsupported permission value.
	ErrInvalidPermission = errors.New("users: invalid permission")
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)

// ServiceConfig describes the dependencies required for the user directory.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages registered users and answers handle and privilege lookups
// for the messaging engine.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
	cache  sync.Map
	// registerMu serializes first-user detection with the insert.
	registerMu sync.Mutex
}

var _ messaging.Directory = (*Service)(nil)

// NewService constructs the user directory.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
		cache:  sync.Map{},
	}, nil
}

// Register creates a user. A zero permission makes the first registered user
// the global owner and everyone after an ordinary member.
func (s *Service) Register(handle, displayName string, permission Permission) (User, error) {
	handle = normalize(handle)
	if !handlePattern.MatchString(handle) {
		return User{}, ErrInvalidHandle
	}
	if permission != 0 && permission != PermissionGlobalOwner && permission != PermissionMember {
		return User{}, ErrInvalidPermission
	}

	s.registerMu.Lock()
	defer s.registerMu.Unlock()

	var taken int64
	if err := s.db.Model(&User{}).Where("handle = ?", handle).Count(&taken).Error; err != nil {
		return User{}, err
	}
	if taken > 0 {
		return User{}, ErrHandleTaken
	}
	if permission == 0 {
		var total int64
		if err := s.db.Model(&User{}).Count(&total).Error; err != nil {
			return User{}, err
		}
		permission = PermissionMember
		if total == 0 {
			permission = PermissionGlobalOwner
		}
	}

	now := s.now()
	user := User{
		Handle:      handle,
		DisplayName: normalize(displayName),
		Permission:  permission,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return User{}, err
	}
	s.cache.Store(messaging.UserID(user.ID), user)
	s.logger.Info("user registered",
		zap.Int64("user_id", user.ID),
		zap.String("handle", user.Handle),
		zap.Int("permission", int(user.Permission)))
	return user, nil
}

// Lookup returns the user with the given id.
func (s *Service) Lookup(userID messaging.UserID) (User, error) {
	if cached, ok := s.cache.Load(userID); ok {
		if user, ok := cached.(User); ok {
			return user, nil
		}
	}
	var user User
	err := s.db.Where("id = ?", userID.Int64()).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUnknownUser
	}
	if err != nil {
		return User{}, err
	}
	s.cache.Store(userID, user)
	return user, nil
}

// SetPermission changes target's permission on behalf of a global owner.
func (s *Service) SetPermission(actorID, targetID messaging.UserID, permission Permission) error {
	if permission != PermissionGlobalOwner && permission != PermissionMember {
		return ErrInvalidPermission
	}
	if !s.IsGlobalOwner(actorID) {
		return messaging.ErrUnauthorized
	}
	if _, err := s.Lookup(targetID); err != nil {
		return err
	}
	err := s.db.Model(&User{}).
		Where("id = ?", targetID.Int64()).
		Updates(map[string]interface{}{
			"permission": permission,
			"updated_at": s.now(),
		}).
		Error
	if err != nil {
		return err
	}
	s.cache.Delete(targetID)
	return nil
}

// Handle resolves a user's handle.
func (s *Service) Handle(userID messaging.UserID) (string, bool) {
	user, err := s.Lookup(userID)
	if err != nil {
		s.logLookupFailure(userID, err)
		return "", false
	}
	return user.Handle, true
}

// IsGlobalOwner reports whether the user holds administrator privilege.
func (s *Service) IsGlobalOwner(userID messaging.UserID) bool {
	user, err := s.Lookup(userID)
	if err != nil {
		s.logLookupFailure(userID, err)
		return false
	}
	return user.IsGlobalOwner()
}

func (s *Service) logLookupFailure(userID messaging.UserID, err error) {
	if errors.Is(err, ErrUnknownUser) {
		return
	}
	s.logger.Error("user lookup failed", zap.Int64("user_id", userID.Int64()), zap.Error(err))
}
