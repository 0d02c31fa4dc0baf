package presence

// AudienceKind selects which connections receive a broadcast.
type AudienceKind int

const (
	AudienceAll AudienceKind = iota
	AudienceAdmins
	AudienceUser
)

// Audience is the set of connections a broadcast is delivered to.
type Audience struct {
	Kind   AudienceKind
	UserID int
}

// All addresses every live connection.
func All() Audience { return Audience{Kind: AudienceAll} }

// Admins addresses connections of administrator accounts.
func Admins() Audience { return Audience{Kind: AudienceAdmins} }

// User addresses every connection of one user.
func User(id int) Audience { return Audience{Kind: AudienceUser, UserID: id} }

// Broadcaster delivers an event to an audience at most once. Implementations
// must not block on slow recipients.
type Broadcaster interface {
	Notify(audience Audience, event string, payload any)
}

// SessionCloser is implemented by broadcasters that can end a user's live
// connections. Closed connections leave the registry through the normal
// disconnect path.
type SessionCloser interface {
	CloseUser(userID int, reason string) int
}

// Event names pushed to realtime clients.
const (
	EventUserOnline          = "UserOnline"
	EventUserOffline         = "UserOffline"
	EventUserBanned          = "UserBanned"
	EventUserStatusChanged   = "UserStatusChanged"
	EventForceLogout         = "ForceLogout"
	EventReceiveNotification = "ReceiveNotification"
)

// UserPayload is the body of UserOnline, UserOffline and UserBanned.
type UserPayload struct {
	UserID int `json:"userId"`
}

// StatusPayload is the body of UserStatusChanged.
type StatusPayload struct {
	UserID int    `json:"userId"`
	Status string `json:"status"`
}

// NopBroadcaster discards every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Notify(Audience, string, any) {}
