package audit

import "time"

// Event is an immutable, append-only audit log record of a user mutation.
//
// Invariants:
// - Events are never updated or deleted.
// - target_user_id is always set.
// - actor and ip capture are best-effort; do not block mutations on audit failures.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	// ActorSubject is the token subject of the caller.
	ActorSubject string `json:"actor_subject,omitempty"`
	ActorName    string `json:"actor_name,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`

	TargetUserID string `json:"target_user_id"`
	// Columns lists the fields written by an update, in declared order.
	Columns []string `json:"columns,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventUserCreated EventType = "user_created"
	EventUserUpdated EventType = "user_updated"
	EventUserDeleted EventType = "user_deleted"
)

// Actor identifies who performed a mutation.
type Actor struct {
	Subject string
	Name    string
	IP      string
}
