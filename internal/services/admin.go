package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/inkwell-comics/modsvc/internal/metrics"
	"github.com/inkwell-comics/modsvc/internal/presence"
	"github.com/inkwell-comics/modsvc/internal/store"
	"github.com/inkwell-comics/modsvc/types"
	"golang.org/x/crypto/bcrypt"
)

// AccountRepository defines the account writes used by administrators and
// report enforcement.
type AccountRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	ListByRole(ctx context.Context, role types.Role) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Ban(ctx context.Context, id int) (types.User, error)
	Unban(ctx context.Context, id int) (types.User, error)
	ChangeRole(ctx context.Context, id int, from, to types.Role) (types.User, error)
}

// AuditRepository defines persistence operations for the audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entry types.AuditEntry) (types.AuditEntry, error)
	List(ctx context.Context, offset, limit int) ([]types.AuditEntry, int, error)
}

// Audit actions written by administrators.
const (
	AuditBannedByAdmin   = "Banned by administrator"
	AuditUnbannedByAdmin = "Unbanned by administrator"
)

// AdminAccountService manages moderator accounts and applies account
// enforcement.
type AdminAccountService struct {
	users       AccountRepository
	audit       AuditRepository
	broadcaster presence.Broadcaster
	logger      *slog.Logger
}

func NewAdminAccountService(
	users AccountRepository,
	audit AuditRepository,
	broadcaster presence.Broadcaster,
	logger *slog.Logger,
) *AdminAccountService {
	if broadcaster == nil {
		broadcaster = presence.NopBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminAccountService{
		users:       users,
		audit:       audit,
		broadcaster: broadcaster,
		logger:      logger.With("component", "admin"),
	}
}

func (s *AdminAccountService) ListModerators(ctx context.Context) ([]types.User, error) {
	return s.users.ListByRole(ctx, types.RoleModerator)
}

// CreateModerator creates an Offline account with the Moderator role.
func (s *AdminAccountService) CreateModerator(ctx context.Context, username, email, name, password string) (types.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if username == "" || email == "" || name == "" || password == "" {
		return types.User{}, fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.users.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		Name:         name,
		Role:         types.RoleModerator,
		Status:       types.StatusOffline,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrDuplicateAccount
		}
		return types.User{}, err
	}
	s.logger.Info("moderator created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// BanModerator bans a Moderator account.
func (s *AdminAccountService) BanModerator(ctx context.Context, adminID, userID int) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	if user.Role != types.RoleModerator {
		return user, fmt.Errorf("%w: user %d is not a moderator", ErrInvalidTransition, userID)
	}
	if user.Status == types.StatusBanned {
		return user, ErrConflict
	}
	return s.BanAccount(ctx, &adminID, userID, AuditBannedByAdmin)
}

// UnbanModerator returns a Banned Moderator account to Offline.
func (s *AdminAccountService) UnbanModerator(ctx context.Context, adminID, userID int) (types.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, err
	}
	if user.Role != types.RoleModerator {
		return user, fmt.Errorf("%w: user %d is not a moderator", ErrInvalidTransition, userID)
	}
	if user.Status != types.StatusBanned {
		return user, ErrConflict
	}

	updated, err := s.users.Unban(ctx, userID)
	if err != nil {
		return s.reload(ctx, user), err
	}

	s.RecordAudit(ctx, userID, &adminID, AuditUnbannedByAdmin)
	s.broadcaster.Notify(presence.Admins(), presence.EventUserOffline, presence.UserPayload{UserID: userID})
	s.broadcaster.Notify(presence.All(), presence.EventUserStatusChanged, presence.StatusPayload{
		UserID: userID,
		Status: types.StatusOffline.String(),
	})
	s.logger.Info("account unbanned", "user_id", userID, "admin_id", adminID)
	return updated, nil
}

// BanAccount sets any account's status to Banned, records the audit action
// and tells connected clients. The banned user's sessions get ForceLogout
// and are then closed when the broadcaster is a presence.SessionCloser.
func (s *AdminAccountService) BanAccount(ctx context.Context, actorID *int, userID int, action string) (types.User, error) {
	updated, err := s.users.Ban(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			current, getErr := s.users.GetByID(ctx, userID)
			if getErr == nil {
				return current, ErrConflict
			}
		}
		return types.User{}, err
	}

	s.RecordAudit(ctx, userID, actorID, action)
	s.broadcaster.Notify(presence.Admins(), presence.EventUserBanned, presence.UserPayload{UserID: userID})
	s.broadcaster.Notify(presence.All(), presence.EventUserStatusChanged, presence.StatusPayload{
		UserID: userID,
		Status: types.StatusBanned.String(),
	})
	s.broadcaster.Notify(presence.User(userID), presence.EventForceLogout, nil)
	if closer, ok := s.broadcaster.(presence.SessionCloser); ok {
		closer.CloseUser(userID, "account banned")
	}
	s.logger.Info("account banned", "user_id", userID, "action", action)
	return updated, nil
}

// DemoteModerator changes a Moderator back to a regular user.
func (s *AdminAccountService) DemoteModerator(ctx context.Context, actorID *int, userID int, action string) (types.User, error) {
	updated, err := s.users.ChangeRole(ctx, userID, types.RoleModerator, types.RoleUser)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.User{}, fmt.Errorf("%w: user %d is not a moderator", ErrInvalidTransition, userID)
		}
		return types.User{}, err
	}
	s.RecordAudit(ctx, userID, actorID, action)
	s.logger.Info("moderator role removed", "user_id", userID)
	return updated, nil
}

// RecordAudit appends an audit entry. Failures are logged and counted but
// never returned.
func (s *AdminAccountService) RecordAudit(ctx context.Context, userID int, actorID *int, action string) {
	if _, err := s.audit.Append(ctx, types.AuditEntry{
		UserID:  userID,
		ActorID: actorID,
		Action:  action,
	}); err != nil {
		metrics.AuditWriteFailures.Inc()
		s.logger.Error("failed to write audit entry", "user_id", userID, "action", action, "err", err)
	}
}

// ListAudit returns the audit trail, newest first.
func (s *AdminAccountService) ListAudit(ctx context.Context, offset, limit int) ([]types.AuditEntry, int, error) {
	return s.audit.List(ctx, offset, limit)
}

func (s *AdminAccountService) reload(ctx context.Context, fallback types.User) types.User {
	user, err := s.users.GetByID(ctx, fallback.ID)
	if err != nil {
		return fallback
	}
	return user
}
