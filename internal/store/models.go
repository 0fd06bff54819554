package store

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Avatar       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Board struct {
	ID          string
	Title       string
	Description string
	Background  string
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type List struct {
	ID        string
	Title     string
	BoardID   string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Task struct {
	ID          string
	Title       string
	Description string
	ListID      string
	BoardID     string
	Position    int
	Priority    string
	DueDate     *time.Time
	Labels      []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Activity is an append-only audit record. EntityTitle is a snapshot taken at
// mutation time so the log stays readable after renames and deletions.
type Activity struct {
	ID          int64
	ActorID     string
	ActorName   string
	BoardID     string
	Action      string
	EntityType  string
	EntityID    string
	EntityTitle string
	Details     map[string]any
	CreatedAt   time.Time
}
