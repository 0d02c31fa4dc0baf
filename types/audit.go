package types

import "time"

// AuditEntry is an append-only record of an action applied to an account.
type AuditEntry struct {
	ID int `json:"id" db:"id"`

	// UserID is the account the action was applied to.
	UserID int `json:"user_id" db:"user_id"`

	// ActorID is the staff member who caused the entry, when known.
	ActorID *int `json:"actor_id,omitempty" db:"actor_id"`

	// Action is the human-readable description, e.g. "Banned: spam".
	Action string `json:"action" db:"action"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Notification is an in-app message delivered to one user.
type Notification struct {
	ID        int       `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Link      string    `json:"link,omitempty" db:"link"`
	IsRead    bool      `json:"is_read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DecisionEvent describes a moderation or report outcome that the affected
// user should hear about. It is delivered best-effort.
type DecisionEvent struct {
	Kind    string `json:"kind"`
	UserID  int    `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

// Decision event kinds.
const (
	DecisionComicApproved  = "comic.approved"
	DecisionComicRejected  = "comic.rejected"
	DecisionComicHidden    = "comic.hidden"
	DecisionReportResolved = "report.resolved"
	DecisionReportRejected = "report.rejected"
	DecisionWarning        = "account.warning"
)
