package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Report is a conduct complaint filed by one user against another.
type Report struct {
	// ID is the unique identifier of the report.
	ID int `json:"id" db:"id"`

	// ReporterID identifies the user who filed the report.
	ReporterID int `json:"reporter_id" db:"reporter_id"`

	// TargetID identifies the reported user. Never equal to ReporterID.
	TargetID int `json:"target_id" db:"target_id"`

	// Reason is the required short complaint text.
	Reason string `json:"reason" db:"reason"`

	// Description is optional supporting detail.
	Description string `json:"description,omitempty" db:"description"`

	// Status is the review state of the report.
	Status ReportStatus `json:"status" db:"status"`

	// ActionTaken is the enforcement applied on resolution.
	ActionTaken *EnforcementAction `json:"action_taken,omitempty" db:"action_taken"`

	// ResolutionNote is the processor's note.
	ResolutionNote string `json:"resolution_note,omitempty" db:"resolution_note"`

	// ProcessedBy and ProcessedAt are set together when the report leaves Pending.
	ProcessedBy *int       `json:"processed_by,omitempty" db:"processed_by"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`

	// CreatedAt is the filing time. Queues list newest first.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Usernames joined for queue views.
	ReporterName string `json:"reporter_name,omitempty" db:"reporter_name"`
	TargetName   string `json:"target_name,omitempty" db:"target_name"`
	TargetRole   Role   `json:"target_role" db:"target_role"`
}

// ReportResolution carries the fields written when a report leaves Pending.
type ReportResolution struct {
	Status      ReportStatus
	Action      EnforcementAction
	Note        string
	ProcessedBy int
	ProcessedAt time.Time
}

// ReportStatus is the review state of a report.
type ReportStatus int

// Supported report statuses.
const (
	ReportPending ReportStatus = iota
	ReportResolved
	ReportRejected
)

var reportStatusNames = map[ReportStatus]string{
	ReportPending:  "pending",
	ReportResolved: "resolved",
	ReportRejected: "rejected",
}

func (s ReportStatus) String() string {
	if name, ok := reportStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the known statuses.
func (s ReportStatus) Valid() bool {
	_, ok := reportStatusNames[s]
	return ok
}

// ParseReportStatus converts a status name into a ReportStatus.
func ParseReportStatus(s string) (ReportStatus, error) {
	return parseEnum("report status", reportStatusNames, s)
}

func (s ReportStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ReportStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseReportStatus, s)
}

// Value implements driver.Valuer.
func (s ReportStatus) Value() (driver.Value, error) {
	return valueEnum(s)
}

// Scan implements sql.Scanner.
func (s *ReportStatus) Scan(src any) error {
	return scanEnum(src, ParseReportStatus, s)
}

// EnforcementAction is the consequence applied to a report's target.
type EnforcementAction int

// Supported enforcement actions.
const (
	// ActionWarning records an audit entry only.
	ActionWarning EnforcementAction = iota

	// ActionBan sets the target's account status to Banned.
	ActionBan

	// ActionRemoveRole demotes a moderator to a regular user.
	ActionRemoveRole

	// ActionDismiss closes the report without consequence.
	ActionDismiss
)

var enforcementActionNames = map[EnforcementAction]string{
	ActionWarning:    "warning",
	ActionBan:        "ban",
	ActionRemoveRole: "remove_role",
	ActionDismiss:    "dismiss",
}

func (a EnforcementAction) String() string {
	if name, ok := enforcementActionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether a is one of the known actions.
func (a EnforcementAction) Valid() bool {
	_, ok := enforcementActionNames[a]
	return ok
}

// ParseEnforcementAction converts an action name into an EnforcementAction.
func ParseEnforcementAction(s string) (EnforcementAction, error) {
	return parseEnum("enforcement action", enforcementActionNames, s)
}

func (a EnforcementAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *EnforcementAction) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, ParseEnforcementAction, a)
}

// Value implements driver.Valuer.
func (a EnforcementAction) Value() (driver.Value, error) {
	return valueEnum(a)
}

// Scan implements sql.Scanner.
func (a *EnforcementAction) Scan(src any) error {
	return scanEnum(src, ParseEnforcementAction, a)
}
