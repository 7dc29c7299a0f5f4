package domain

import "time"

// DefaultSessionID is used when a request does not name a session.
const DefaultSessionID = "default_session"

// Session is a logical conversation thread identified by the client.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}
