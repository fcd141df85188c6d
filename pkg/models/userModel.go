package models

import (
	"strings"
	"time"
)

// Base replaces gorm.Model: no soft delete, since unique pairs
// (user/course, enrollment/module, ...) must not collide with deleted rows.
type Base struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Role string

const (
	RoleAdmin             Role = "admin"
	RoleEmployee          Role = "employee"
	RoleHR                Role = "hr"
	RoleResourcePersonnel Role = "resource_personnel"
)

type User struct {
	Base
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"not null" json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Phone        string     `json:"phone,omitempty"`
	Role         Role       `gorm:"type:user_role;default:'employee'" json:"role"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	IsVerified   bool       `gorm:"not null" json:"is_verified"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func (u User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsStaff covers the roles that manage catalog and learners.
func (u User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleHR
}

type AuditAction string

const (
	ActionCreate AuditAction = "CREATE"
	ActionRead   AuditAction = "READ"
	ActionUpdate AuditAction = "UPDATE"
	ActionDelete AuditAction = "DELETE"
	ActionLogin  AuditAction = "LOGIN"
	ActionLogout AuditAction = "LOGOUT"
)

type AuditLog struct {
	ID         uint        `gorm:"primaryKey" json:"id"`
	UserID     *uint       `gorm:"index" json:"user_id"`
	Action     AuditAction `gorm:"size:20;index;not null" json:"action"`
	EntityType string      `gorm:"size:50;index;not null" json:"entity_type"`
	EntityID   *uint       `json:"entity_id"`
	Details    JSON        `json:"details"`
	IPAddress  string      `gorm:"size:64" json:"ip_address"`
	CreatedAt  time.Time   `gorm:"index" json:"created_at"`
}
