package domain

// Role identifies the speaker of a transcript entry.
type Role string

const (
	// RoleUser marks a message written by the human user.
	RoleUser Role = "user"
	// RoleAssistant marks a message generated by the model.
	RoleAssistant Role = "assistant"
)

// Turn is one transcript entry as held in the in-memory session context.
type Turn struct {
	Role Role
	Text string
}
