package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Comic is a content submission. Only the fields moderation needs are
// modelled here.
type Comic struct {
	// ID is the unique identifier of the comic.
	ID int `json:"id" db:"id"`

	// AuthorID identifies the user who submitted the comic.
	AuthorID int `json:"author_id" db:"author_id"`

	// Title is the display title.
	Title string `json:"title" db:"title"`

	// Description is the free-text synopsis.
	Description string `json:"description" db:"description"`

	// PublicStatus is the reader-facing visibility. It mirrors the
	// moderation record through PublicStatusFor and is never written
	// independently of a moderation transition.
	PublicStatus PublicStatus `json:"public_status" db:"public_status"`

	// CreatedAt is the submission time. The pending queue is ordered by it.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ModerationRecord tracks one comic through the review pipeline.
//
// ReviewerID and ProcessedAt are set together, exactly when Status leaves
// Pending.
type ModerationRecord struct {
	ID          int              `json:"id" db:"id"`
	ComicID     int              `json:"comic_id" db:"comic_id"`
	Status      ModerationStatus `json:"status" db:"status"`
	ReviewerID  *int             `json:"reviewer_id,omitempty" db:"reviewer_id"`
	Note        string           `json:"note,omitempty" db:"note"`
	ProcessedAt *time.Time       `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`

	// Comic fields joined for queue and history views.
	ComicTitle     string    `json:"comic_title" db:"comic_title"`
	ComicAuthorID  int       `json:"comic_author_id" db:"comic_author_id"`
	ComicCreatedAt time.Time `json:"comic_created_at" db:"comic_created_at"`
}

// Processed reports whether a reviewer decision has been recorded.
func (r ModerationRecord) Processed() bool {
	return r.Status != ModerationPending
}

// ModerationCounts summarizes the moderation backlog and recent activity.
type ModerationCounts struct {
	Pending           int `json:"pending"`
	ApprovedThisMonth int `json:"approved_this_month"`
	RejectedThisMonth int `json:"rejected_this_month"`
	Hidden            int `json:"hidden"`
}

// ModerationStatus is the review state of a moderation record.
type ModerationStatus int

// Supported moderation statuses.
const (
	// ModerationPending is the initial state of every record.
	ModerationPending ModerationStatus = iota

	// ModerationApproved publishes the comic.
	ModerationApproved

	// ModerationRejected is terminal and keeps the comic unpublished.
	ModerationRejected

	// ModerationHidden unpublishes a previously approved comic.
	ModerationHidden
)

var moderationStatusNames = map[ModerationStatus]string{
	ModerationPending:  "pending",
	ModerationApproved: "approved",
	ModerationRejected: "rejected",
	ModerationHidden:   "hidden",
}

// moderationEdges is the complete transition graph.
var moderationEdges = map[ModerationStatus][]ModerationStatus{
	ModerationPending:  {ModerationApproved, ModerationRejected},
	ModerationApproved: {ModerationHidden},
}

func (s ModerationStatus) String() string {
	if name, ok := moderationStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the known statuses.
func (s ModerationStatus) Valid() bool {
	_, ok := moderationStatusNames[s]
	return ok
}

// CanTransitionTo reports whether next is directly reachable from s.
func (s ModerationStatus) CanTransitionTo(next ModerationStatus) bool {
	for _, candidate := range moderationEdges[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// RequiresNote reports whether entering s needs a non-empty reason.
func (s ModerationStatus) RequiresNote() bool {
	return s == ModerationRejected || s == ModerationHidden
}

// PublicStatus returns the comic visibility that mirrors s.
func (s ModerationStatus) PublicStatus() PublicStatus {
	if s == ModerationApproved {
		return PublicStatusPublished
	}
	return PublicStatusUnpublished
}

// ParseModerationStatus converts a status name into a ModerationStatus.
func ParseModerationStatus(s string) (ModerationStatus, error) {
	return parseEnum("moderation status", moderationStatusNames, s)
}

func (s ModerationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ModerationStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseModerationStatus, s)
}

// Value implements driver.Valuer.
func (s ModerationStatus) Value() (driver.Value, error) {
	return valueEnum(s)
}

// Scan implements sql.Scanner.
func (s *ModerationStatus) Scan(src any) error {
	return scanEnum(src, ParseModerationStatus, s)
}

// PublicStatus is the reader-facing visibility of a comic.
type PublicStatus int

const (
	PublicStatusUnpublished PublicStatus = iota
	PublicStatusPublished
)

var publicStatusNames = map[PublicStatus]string{
	PublicStatusUnpublished: "unpublished",
	PublicStatusPublished:   "published",
}

func (s PublicStatus) String() string {
	if name, ok := publicStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the known values.
func (s PublicStatus) Valid() bool {
	_, ok := publicStatusNames[s]
	return ok
}

// Visible reports whether readers can see the comic.
func (s PublicStatus) Visible() bool {
	return s == PublicStatusPublished
}

// ParsePublicStatus converts a name into a PublicStatus.
func ParsePublicStatus(s string) (PublicStatus, error) {
	return parseEnum("public status", publicStatusNames, s)
}

func (s PublicStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PublicStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParsePublicStatus, s)
}

// Value implements driver.Valuer.
func (s PublicStatus) Value() (driver.Value, error) {
	return valueEnum(s)
}

// Scan implements sql.Scanner.
func (s *PublicStatus) Scan(src any) error {
	return scanEnum(src, ParsePublicStatus, s)
}
