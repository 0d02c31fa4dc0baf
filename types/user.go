package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// User represents an account in the system.
// It contains identity, role, presence status, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Role is the user's authorization level. Exactly one per user.
	Role Role `json:"role" db:"role"`

	// Status is the persisted account status. Presence tracking only
	// toggles between Online and Offline and never touches a Banned row.
	Status AccountStatus `json:"status" db:"status"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Role represents a user's authorization level.
type Role int

// Supported roles.
const (
	// RoleUser is a regular reader/author account.
	RoleUser Role = iota

	// RoleModerator reviews submissions and reports against regular users.
	RoleModerator

	// RoleAdmin manages moderators and handles reports against moderators.
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleUser:      "user",
	RoleModerator: "moderator",
	RoleAdmin:     "admin",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole converts a role name into a Role.
func ParseRole(s string) (Role, error) {
	return parseEnum("role", roleNames, s)
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseRole, r)
}

// Value implements driver.Valuer.
func (r Role) Value() (driver.Value, error) {
	return valueEnum(r)
}

// Scan implements sql.Scanner.
func (r *Role) Scan(src any) error {
	return scanEnum(src, ParseRole, r)
}

// AccountStatus is the persisted status of an account.
type AccountStatus int

// Supported account statuses.
const (
	// StatusOffline means no live connection is known for the account.
	StatusOffline AccountStatus = iota

	// StatusOnline means the account has at least one live connection.
	StatusOnline

	// StatusBanned is set by an administrator or a report enforcement.
	// Only an explicit unban clears it.
	StatusBanned

	// StatusSuspended is reserved. It round-trips through storage but no
	// operation assigns it.
	StatusSuspended
)

var accountStatusNames = map[AccountStatus]string{
	StatusOffline:   "offline",
	StatusOnline:    "online",
	StatusBanned:    "banned",
	StatusSuspended: "suspended",
}

func (s AccountStatus) String() string {
	if name, ok := accountStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the known statuses.
func (s AccountStatus) Valid() bool {
	_, ok := accountStatusNames[s]
	return ok
}

// ParseAccountStatus converts a status name into an AccountStatus.
func ParseAccountStatus(s string) (AccountStatus, error) {
	return parseEnum("account status", accountStatusNames, s)
}

func (s AccountStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *AccountStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseAccountStatus, s)
}

// Value implements driver.Valuer.
func (s AccountStatus) Value() (driver.Value, error) {
	return valueEnum(s)
}

// Scan implements sql.Scanner.
func (s *AccountStatus) Scan(src any) error {
	return scanEnum(src, ParseAccountStatus, s)
}
