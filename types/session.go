package types

import "time"

// Session is a server-side authenticated-identity binding. It is created at
// login, checked on every authenticated request, and removed at logout.
type Session struct {
	Token     string    `json:"-" db:"token"`
	UserID    int       `json:"-" db:"user_id"`
	ExpiresAt time.Time `json:"-" db:"expires_at"`
	CreatedAt time.Time `json:"-" db:"created_at"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
