// Package domain contains the core types shared across the service.
package domain

import "time"

// Message is a single persisted conversation message.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	CreatedAt time.Time `json:"created_at"`
}
