// Package memory provides an in-memory implementation of every repository
// used by the services. It mirrors the postgres store's conditional-update
// and uniqueness semantics so service tests exercise the same error paths.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/inkwell-comics/modsvc/internal/store"
	"github.com/inkwell-comics/modsvc/types"
)

// Store holds all tables behind one mutex.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	nextUserID         int
	nextComicID        int
	nextRecordID       int
	nextReportID       int
	nextAuditID        int
	nextNotificationID int

	users         map[int]types.User
	comics        map[int]types.Comic
	records       map[int]types.ModerationRecord
	reports       map[int]types.Report
	audit         []types.AuditEntry
	notifications map[int]types.Notification

	failures map[string]error
}

// New creates a Store using time.Now().UTC().
func New() *Store {
	return NewWithClock(nil)
}

// NewWithClock creates a Store with a custom clock.
func NewWithClock(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		now:                now,
		nextUserID:         1,
		nextComicID:        1,
		nextRecordID:       1,
		nextReportID:       1,
		nextAuditID:        1,
		nextNotificationID: 1,
		users:              make(map[int]types.User),
		comics:             make(map[int]types.Comic),
		records:            make(map[int]types.ModerationRecord),
		reports:            make(map[int]types.Report),
		notifications:      make(map[int]types.Notification),
		failures:           make(map[string]error),
	}
}

// Fail makes the named operation return err until cleared with a nil err.
// Operation names are "<table>.<method>", e.g. "audit.append".
func (s *Store) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s: s} }

// Moderation returns the moderation repository view.
func (s *Store) Moderation() *Moderation { return &Moderation{s: s} }

// Reports returns the report repository view.
func (s *Store) Reports() *Reports { return &Reports{s: s} }

// Audit returns the audit log repository view.
func (s *Store) Audit() *Audit { return &Audit{s: s} }

// Notifications returns the notification repository view.
func (s *Store) Notifications() *Notifications { return &Notifications{s: s} }

// SeedUser inserts a user as-is, assigning an id when zero.
func (s *Store) SeedUser(user types.User) types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == 0 {
		user.ID = s.nextUserID
	}
	if user.ID >= s.nextUserID {
		s.nextUserID = user.ID + 1
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
		user.UpdatedAt = user.CreatedAt
	}
	s.users[user.ID] = user
	return user
}

// User returns a copy of the stored user.
func (s *Store) User(id int) (types.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	return user, ok
}

// Comic returns a copy of the stored comic.
func (s *Store) Comic(id int) (types.Comic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comic, ok := s.comics[id]
	return comic, ok
}

// AuditEntries returns a copy of the audit trail in insertion order.
func (s *Store) AuditEntries() []types.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.AuditEntry(nil), s.audit...)
}

// ---- users ----

// Users implements the user repository interfaces.
type Users struct{ s *Store }

func (u *Users) GetByID(_ context.Context, id int) (types.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.failure("users.get"); err != nil {
		return types.User{}, err
	}
	user, ok := u.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (u *Users) GetByUsername(_ context.Context, username string) (types.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) GetByEmail(_ context.Context, email string) (types.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (u *Users) ListByRole(_ context.Context, role types.Role) ([]types.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	var users []types.User
	for _, user := range u.s.users {
		if user.Role == role {
			users = append(users, user)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (u *Users) Create(_ context.Context, user types.User) (types.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, existing := range u.s.users {
		if existing.Username == user.Username || strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrDuplicate
		}
	}
	user.ID = u.s.nextUserID
	u.s.nextUserID++
	user.CreatedAt = u.s.now()
	user.UpdatedAt = user.CreatedAt
	u.s.users[user.ID] = user
	return user, nil
}

func (u *Users) SetPresence(_ context.Context, id int, status types.AccountStatus) (bool, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.failure("users.setpresence"); err != nil {
		return false, err
	}
	user, ok := u.s.users[id]
	if !ok || user.Status == types.StatusBanned {
		return false, nil
	}
	user.Status = status
	user.UpdatedAt = u.s.now()
	u.s.users[id] = user
	return true, nil
}

func (u *Users) ResetOnline(_ context.Context) (int64, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.failure("users.resetonline"); err != nil {
		return 0, err
	}
	var n int64
	for id, user := range u.s.users {
		if user.Status == types.StatusOnline {
			user.Status = types.StatusOffline
			u.s.users[id] = user
			n++
		}
	}
	return n, nil
}

func (u *Users) Ban(_ context.Context, id int) (types.User, error) {
	return u.update(id, func(user *types.User) bool {
		if user.Status == types.StatusBanned {
			return false
		}
		user.Status = types.StatusBanned
		return true
	})
}

func (u *Users) Unban(_ context.Context, id int) (types.User, error) {
	return u.update(id, func(user *types.User) bool {
		if user.Status != types.StatusBanned {
			return false
		}
		user.Status = types.StatusOffline
		return true
	})
}

func (u *Users) ChangeRole(_ context.Context, id int, from, to types.Role) (types.User, error) {
	return u.update(id, func(user *types.User) bool {
		if user.Role != from {
			return false
		}
		user.Role = to
		return true
	})
}

func (u *Users) update(id int, apply func(*types.User) bool) (types.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if err := u.s.failure("users.update"); err != nil {
		return types.User{}, err
	}
	user, ok := u.s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	if !apply(&user) {
		return types.User{}, store.ErrConflict
	}
	user.UpdatedAt = u.s.now()
	u.s.users[id] = user
	return user, nil
}

// ---- moderation ----

// Moderation implements the moderation repository interface.
type Moderation struct{ s *Store }

// SeedSubmission inserts a comic and a Pending record, keeping a non-zero
// comic CreatedAt so queue ordering can be tested independently of
// insertion order.
func (m *Moderation) SeedSubmission(comic types.Comic) (types.Comic, types.ModerationRecord) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	return m.insertSubmission(comic)
}

func (m *Moderation) insertSubmission(comic types.Comic) (types.Comic, types.ModerationRecord) {
	now := m.s.now()
	comic.ID = m.s.nextComicID
	m.s.nextComicID++
	comic.PublicStatus = types.PublicStatusUnpublished
	if comic.CreatedAt.IsZero() {
		comic.CreatedAt = now
	}
	comic.UpdatedAt = now
	m.s.comics[comic.ID] = comic

	rec := m.insertRecord(comic.ID, now)
	return comic, m.join(rec)
}

func (m *Moderation) insertRecord(comicID int, now time.Time) types.ModerationRecord {
	rec := types.ModerationRecord{
		ID:        m.s.nextRecordID,
		ComicID:   comicID,
		Status:    types.ModerationPending,
		CreatedAt: now,
	}
	m.s.nextRecordID++
	m.s.records[rec.ID] = rec
	return rec
}

func (m *Moderation) join(rec types.ModerationRecord) types.ModerationRecord {
	comic := m.s.comics[rec.ComicID]
	rec.ComicTitle = comic.Title
	rec.ComicAuthorID = comic.AuthorID
	rec.ComicCreatedAt = comic.CreatedAt
	return rec
}

func (m *Moderation) CreateSubmission(_ context.Context, comic types.Comic) (types.Comic, types.ModerationRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("moderation.create"); err != nil {
		return types.Comic{}, types.ModerationRecord{}, err
	}
	comic.CreatedAt = time.Time{}
	created, rec := m.insertSubmission(comic)
	return created, rec, nil
}

func (m *Moderation) Reopen(_ context.Context, comicID int) (types.ModerationRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	comic, ok := m.s.comics[comicID]
	if !ok {
		return types.ModerationRecord{}, store.ErrNotFound
	}
	for _, rec := range m.s.records {
		if rec.ComicID == comicID && rec.Status == types.ModerationPending {
			return types.ModerationRecord{}, store.ErrConflict
		}
	}
	now := m.s.now()
	rec := m.insertRecord(comicID, now)
	comic.PublicStatus = types.PublicStatusUnpublished
	comic.UpdatedAt = now
	m.s.comics[comicID] = comic
	return m.join(rec), nil
}

func (m *Moderation) Get(_ context.Context, id int) (types.ModerationRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	rec, ok := m.s.records[id]
	if !ok {
		return types.ModerationRecord{}, store.ErrNotFound
	}
	return m.join(rec), nil
}

func (m *Moderation) Latest(_ context.Context, comicID int) (types.ModerationRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var latest types.ModerationRecord
	for _, rec := range m.s.records {
		if rec.ComicID == comicID && rec.ID > latest.ID {
			latest = rec
		}
	}
	if latest.ID == 0 {
		return types.ModerationRecord{}, store.ErrNotFound
	}
	return m.join(latest), nil
}

func (m *Moderation) GetComic(_ context.Context, id int) (types.Comic, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	comic, ok := m.s.comics[id]
	if !ok {
		return types.Comic{}, store.ErrNotFound
	}
	return comic, nil
}

func (m *Moderation) ListPending(_ context.Context, offset, limit int) ([]types.ModerationRecord, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	records := m.filter(func(rec types.ModerationRecord) bool { return rec.Status == types.ModerationPending })
	sort.Slice(records, func(i, j int) bool {
		if !records[i].ComicCreatedAt.Equal(records[j].ComicCreatedAt) {
			return records[i].ComicCreatedAt.Before(records[j].ComicCreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return page(records, offset, limit), len(records), nil
}

func (m *Moderation) ListProcessed(_ context.Context, offset, limit int) ([]types.ModerationRecord, int, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	records := m.filter(func(rec types.ModerationRecord) bool { return rec.Status != types.ModerationPending })
	sort.Slice(records, func(i, j int) bool {
		a, b := *records[i].ProcessedAt, *records[j].ProcessedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return records[i].ID > records[j].ID
	})
	return page(records, offset, limit), len(records), nil
}

func (m *Moderation) filter(keep func(types.ModerationRecord) bool) []types.ModerationRecord {
	records := make([]types.ModerationRecord, 0)
	for _, rec := range m.s.records {
		if keep(rec) {
			records = append(records, m.join(rec))
		}
	}
	return records
}

func (m *Moderation) Transition(
	_ context.Context,
	id int,
	from, to types.ModerationStatus,
	reviewerID int,
	note string,
	at time.Time,
) (types.ModerationRecord, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if err := m.s.failure("moderation.transition"); err != nil {
		return types.ModerationRecord{}, err
	}
	rec, ok := m.s.records[id]
	if !ok {
		return types.ModerationRecord{}, store.ErrNotFound
	}
	if rec.Status != from {
		return types.ModerationRecord{}, store.ErrConflict
	}
	reviewer := reviewerID
	processed := at
	rec.Status = to
	rec.ReviewerID = &reviewer
	rec.Note = note
	rec.ProcessedAt = &processed
	m.s.records[id] = rec

	comic := m.s.comics[rec.ComicID]
	comic.PublicStatus = to.PublicStatus()
	comic.UpdatedAt = at
	m.s.comics[rec.ComicID] = comic
	return m.join(rec), nil
}

func (m *Moderation) Counts(_ context.Context, monthStart, monthEnd time.Time) (types.ModerationCounts, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var counts types.ModerationCounts
	inMonth := func(rec types.ModerationRecord) bool {
		return rec.ProcessedAt != nil && !rec.ProcessedAt.Before(monthStart) && rec.ProcessedAt.Before(monthEnd)
	}
	for _, rec := range m.s.records {
		switch rec.Status {
		case types.ModerationPending:
			counts.Pending++
		case types.ModerationApproved:
			if inMonth(rec) {
				counts.ApprovedThisMonth++
			}
		case types.ModerationRejected:
			if inMonth(rec) {
				counts.RejectedThisMonth++
			}
		case types.ModerationHidden:
			counts.Hidden++
		}
	}
	return counts, nil
}

// ---- reports ----

// Reports implements the report repository interface.
type Reports struct{ s *Store }

func (r *Reports) join(report types.Report) types.Report {
	reporter := r.s.users[report.ReporterID]
	target := r.s.users[report.TargetID]
	report.ReporterName = reporter.Username
	report.TargetName = target.Username
	report.TargetRole = target.Role
	return report
}

func (r *Reports) Get(_ context.Context, id int) (types.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	report, ok := r.s.reports[id]
	if !ok {
		return types.Report{}, store.ErrNotFound
	}
	return r.join(report), nil
}

func (r *Reports) Create(_ context.Context, report types.Report) (types.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.reports {
		if existing.Status == types.ReportPending &&
			existing.ReporterID == report.ReporterID &&
			existing.TargetID == report.TargetID {
			return types.Report{}, store.ErrDuplicate
		}
	}
	report.ID = r.s.nextReportID
	r.s.nextReportID++
	report.Status = types.ReportPending
	report.CreatedAt = r.s.now()
	r.s.reports[report.ID] = report
	return r.join(report), nil
}

func (r *Reports) HasPending(_ context.Context, reporterID, targetID int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.reports {
		if existing.Status == types.ReportPending &&
			existing.ReporterID == reporterID &&
			existing.TargetID == targetID {
			return true, nil
		}
	}
	return false, nil
}

func (r *Reports) ListPendingByTargetRole(_ context.Context, role types.Role, offset, limit int) ([]types.Report, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reports := r.pendingFor(role)
	sort.Slice(reports, func(i, j int) bool {
		if !reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].CreatedAt.After(reports[j].CreatedAt)
		}
		return reports[i].ID > reports[j].ID
	})
	return page(reports, offset, limit), len(reports), nil
}

func (r *Reports) CountPendingByTargetRole(_ context.Context, role types.Role) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.pendingFor(role)), nil
}

func (r *Reports) pendingFor(role types.Role) []types.Report {
	reports := make([]types.Report, 0)
	for _, report := range r.s.reports {
		if report.Status != types.ReportPending {
			continue
		}
		if joined := r.join(report); joined.TargetRole == role {
			reports = append(reports, joined)
		}
	}
	return reports
}

func (r *Reports) Resolve(_ context.Context, id int, res types.ReportResolution) (types.Report, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("reports.resolve"); err != nil {
		return types.Report{}, err
	}
	report, ok := r.s.reports[id]
	if !ok {
		return types.Report{}, store.ErrNotFound
	}
	if report.Status != types.ReportPending {
		return types.Report{}, store.ErrConflict
	}
	action := res.Action
	processor := res.ProcessedBy
	at := res.ProcessedAt
	report.Status = res.Status
	report.ActionTaken = &action
	report.ResolutionNote = res.Note
	report.ProcessedBy = &processor
	report.ProcessedAt = &at
	r.s.reports[id] = report
	return r.join(report), nil
}

// ---- audit ----

// Audit implements the audit log repository interface.
type Audit struct{ s *Store }

func (a *Audit) Append(_ context.Context, entry types.AuditEntry) (types.AuditEntry, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if err := a.s.failure("audit.append"); err != nil {
		return types.AuditEntry{}, err
	}
	entry.ID = a.s.nextAuditID
	a.s.nextAuditID++
	entry.CreatedAt = a.s.now()
	a.s.audit = append(a.s.audit, entry)
	return entry, nil
}

func (a *Audit) List(_ context.Context, offset, limit int) ([]types.AuditEntry, int, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	entries := make([]types.AuditEntry, len(a.s.audit))
	for i, entry := range a.s.audit {
		entries[len(entries)-1-i] = entry
	}
	return page(entries, offset, limit), len(entries), nil
}

func (a *Audit) ListBetween(_ context.Context, from, to time.Time) ([]types.AuditEntry, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	entries := make([]types.AuditEntry, 0)
	for _, entry := range a.s.audit {
		if !entry.CreatedAt.Before(from) && entry.CreatedAt.Before(to) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// ---- notifications ----

// Notifications implements the notification repository interface.
type Notifications struct{ s *Store }

func (n *Notifications) Create(_ context.Context, item types.Notification) (types.Notification, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	if err := n.s.failure("notifications.create"); err != nil {
		return types.Notification{}, err
	}
	item.ID = n.s.nextNotificationID
	n.s.nextNotificationID++
	item.IsRead = false
	item.CreatedAt = n.s.now()
	n.s.notifications[item.ID] = item
	return item, nil
}

func (n *Notifications) ListByUser(_ context.Context, userID, limit int) ([]types.Notification, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	items := make([]types.Notification, 0)
	for _, item := range n.s.notifications {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID > items[j].ID })
	return page(items, 0, limit), nil
}

func (n *Notifications) CountUnread(_ context.Context, userID int) (int, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	count := 0
	for _, item := range n.s.notifications {
		if item.UserID == userID && !item.IsRead {
			count++
		}
	}
	return count, nil
}

func (n *Notifications) MarkRead(_ context.Context, userID, id int) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	item, ok := n.s.notifications[id]
	if !ok || item.UserID != userID {
		return store.ErrNotFound
	}
	item.IsRead = true
	n.s.notifications[id] = item
	return nil
}

func (n *Notifications) MarkAllRead(_ context.Context, userID int) (int64, error) {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	var changed int64
	for id, item := range n.s.notifications {
		if item.UserID == userID && !item.IsRead {
			item.IsRead = true
			n.s.notifications[id] = item
			changed++
		}
	}
	return changed, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
