// Package school persists tenants and their users: the credential store, the
// school lifecycle state and the server-side refresh-token records.
package school

import (
	"errors"
	"strings"
	"time"
)

// Status is the school lifecycle. Schools are never physically deleted.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.TrimSpace(strings.ToLower(raw))) {
	case StatusTrial:
		return StatusTrial, nil
	case StatusActive:
		return StatusActive, nil
	case StatusPastDue:
		return StatusPastDue, nil
	case StatusSuspended:
		return StatusSuspended, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", errors.New("school: unknown status")
	}
}

// AcceptsRegistrations reports whether new users may sign up.
func (s Status) AcceptsRegistrations() bool {
	return s == StatusTrial || s == StatusActive
}

// School is a tenant account.
type School struct {
	ID               string
	Name             string
	Slug             string
	ContactEmail     string
	Status           Status
	SuspensionReason string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// User is a school-bound account. Users created through self-registration
// start as pending until a school admin approves them.
type User struct {
	ID           string
	SchoolID     string
	Email        string
	PasswordHash string
	FullName     string
	Role         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PlatformOwner operates the platform and is stored apart from school users.
type PlatformOwner struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
}

// RefreshRecord is the server-side half of a refresh token. A token is only
// honored while its record is live: not revoked and not past expiry.
type RefreshRecord struct {
	ID         string
	UserID     string
	TokenHash  string
	Generation int
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// Live reports whether the record still validates its token at time now.
func (r RefreshRecord) Live(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}
