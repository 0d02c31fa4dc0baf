// Package rbac provides role-based access control checks.
package rbac

import (
	"errors"
	"fmt"

	"github.com/inkwell-comics/modsvc/types"
)

// Permission is a capability granted to a role.
type Permission int

const (
	PermSubmitComic Permission = iota
	PermFileReport
	PermReviewComics
	PermHandleUserReports
	PermHandleModeratorReports
	PermManageModerators
	PermViewAudit
	PermViewPresence
)

// ErrPermissionDenied is returned by Require when the role lacks a permission.
var ErrPermissionDenied = errors.New("permission denied")

// permissionMatrix maps roles to their allowed permissions.
var permissionMatrix = map[types.Role]map[Permission]bool{
	types.RoleAdmin: {
		PermSubmitComic:            true,
		PermFileReport:             true,
		PermReviewComics:           true,
		PermHandleModeratorReports: true,
		PermManageModerators:       true,
		PermViewAudit:              true,
		PermViewPresence:           true,
	},
	types.RoleModerator: {
		PermSubmitComic:       true,
		PermFileReport:        true,
		PermReviewComics:      true,
		PermHandleUserReports: true,
	},
	types.RoleUser: {
		PermSubmitComic: true,
		PermFileReport:  true,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role types.Role, perm Permission) bool {
	perms, ok := permissionMatrix[role]
	if !ok {
		return false
	}
	return perms[perm]
}

// Require returns ErrPermissionDenied, annotated with the permission name,
// when the role lacks perm.
func Require(role types.Role, perm Permission) error {
	if HasPermission(role, perm) {
		return nil
	}
	return fmt.Errorf("%w: %s requires higher role than %s", ErrPermissionDenied, perm, role)
}

// ReportPermission returns the permission needed to handle reports against
// a target with the given role. Reports against admins cannot be handled.
func ReportPermission(targetRole types.Role) (Permission, bool) {
	switch targetRole {
	case types.RoleUser:
		return PermHandleUserReports, true
	case types.RoleModerator:
		return PermHandleModeratorReports, true
	default:
		return 0, false
	}
}

// ReportQueueRole returns the target role whose reports the acting role
// reviews.
func ReportQueueRole(role types.Role) (types.Role, bool) {
	switch {
	case HasPermission(role, PermHandleModeratorReports):
		return types.RoleModerator, true
	case HasPermission(role, PermHandleUserReports):
		return types.RoleUser, true
	default:
		return 0, false
	}
}

func (p Permission) String() string {
	switch p {
	case PermSubmitComic:
		return "submit_comic"
	case PermFileReport:
		return "file_report"
	case PermReviewComics:
		return "review_comics"
	case PermHandleUserReports:
		return "handle_user_reports"
	case PermHandleModeratorReports:
		return "handle_moderator_reports"
	case PermManageModerators:
		return "manage_moderators"
	case PermViewAudit:
		return "view_audit"
	case PermViewPresence:
		return "view_presence"
	default:
		return "unknown"
	}
}
