package rbac

import (
	"errors"
	"testing"

	"github.com/inkwell-comics/modsvc/types"
	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role types.Role
		perm Permission
		want bool
	}{
		{types.RoleUser, PermFileReport, true},
		{types.RoleUser, PermReviewComics, false},
		{types.RoleModerator, PermReviewComics, true},
		{types.RoleModerator, PermHandleUserReports, true},
		{types.RoleModerator, PermHandleModeratorReports, false},
		{types.RoleModerator, PermManageModerators, false},
		{types.RoleAdmin, PermHandleModeratorReports, true},
		{types.RoleAdmin, PermHandleUserReports, false},
		{types.RoleAdmin, PermManageModerators, true},
		{types.Role(42), PermSubmitComic, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HasPermission(tt.role, tt.perm), "%s/%s", tt.role, tt.perm)
	}
}

func TestRequire(t *testing.T) {
	assert.NoError(t, Require(types.RoleAdmin, PermViewAudit))

	err := Require(types.RoleModerator, PermViewAudit)
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.Contains(t, err.Error(), "view_audit")
}

func TestReportRouting(t *testing.T) {
	perm, ok := ReportPermission(types.RoleUser)
	assert.True(t, ok)
	assert.Equal(t, PermHandleUserReports, perm)

	perm, ok = ReportPermission(types.RoleModerator)
	assert.True(t, ok)
	assert.Equal(t, PermHandleModeratorReports, perm)

	_, ok = ReportPermission(types.RoleAdmin)
	assert.False(t, ok)

	role, ok := ReportQueueRole(types.RoleAdmin)
	assert.True(t, ok)
	assert.Equal(t, types.RoleModerator, role)

	role, ok = ReportQueueRole(types.RoleModerator)
	assert.True(t, ok)
	assert.Equal(t, types.RoleUser, role)

	_, ok = ReportQueueRole(types.RoleUser)
	assert.False(t, ok)
}
