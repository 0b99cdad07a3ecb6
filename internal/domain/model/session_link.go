package model

import "time"

// SessionLinkState is the initiator-side view of a pairing code.
type SessionLinkState string

const (
	LinkAwaitingCode SessionLinkState = "AWAITING_CODE"
	LinkCodeIssued   SessionLinkState = "CODE_ISSUED"
	LinkSynced       SessionLinkState = "SYNCED"
	LinkExpired      SessionLinkState = "EXPIRED"
)

// SessionLink is a single-use pairing code persisted by the backend.
type SessionLink struct {
	ID        int64
	Code      string
	UserID    *int64     // set once a secondary device syncs
	UsedAt    *time.Time // sync time
	ClaimedAt *time.Time // time the initiator collected the session
	CreatedAt time.Time
}

// Synced reports whether a secondary device already consumed the code.
func (l *SessionLink) Synced() bool { return l != nil && l.UsedAt != nil }

// LinkedSession is what the initiator receives once the code is synced.
type LinkedSession struct {
	Username    string `json:"username"`
	PiID        string `json:"piId"`
	AccessToken string `json:"accessToken,omitempty"`
	Role        Role   `json:"role,omitempty"`
}

// AsUserSession converts the linked session into the client's current-user record.
func (s LinkedSession) AsUserSession() UserSession {
	return UserSession{Username: s.Username, PiID: s.PiID, AccessToken: s.AccessToken, Role: s.Role}
}
