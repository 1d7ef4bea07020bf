package users

import (
	"strings"
	"time"
)

// Permission is a user's global privilege level.
type Permission int

const (
	// PermissionGlobalOwner may moderate every conversation.
	PermissionGlobalOwner Permission = 1
	// PermissionMember is an ordinary user.
	PermissionMember Permission = 2
)

// User is a registered account addressed by its handle in message bodies.
type User struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	Handle      string     `gorm:"column:handle;size:20;not null;uniqueIndex"`
	DisplayName string     `gorm:"column:display_name;size:320"`
	Permission  Permission `gorm:"column:permission;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// IsGlobalOwner reports whether the user holds administrator privilege.
func (u User) IsGlobalOwner() bool {
	return u.Permission == PermissionGlobalOwner
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
