package domain

import "context"

// BoardStore persists an owner's columns and tasks. Implementations enforce
// (owner, column key) uniqueness and owner scoping; they hold no locks.
type BoardStore interface {
	// ListColumns returns the owner's columns in board order.
	ListColumns(ctx context.Context, ownerID string) ([]Column, error)
	// InsertColumn returns ErrColumnKeyTaken when the key already exists.
	InsertColumn(ctx context.Context, col Column) error
	// SaveColumns writes label and position changes, guarded by each column's ETag.
	SaveColumns(ctx context.Context, ownerID string, cols []Column) error
	// RemoveColumn rewrites the given tasks (already carrying their new
	// status) and deletes col. Task rewrites are never applied after the
	// column is gone.
	RemoveColumn(ctx context.Context, col Column, migrated []Task) error

	ListTasks(ctx context.Context, ownerID string) ([]Task, error)
	// GetTask returns nil when the task does not exist for the owner.
	GetTask(ctx context.Context, ownerID, taskID string) (*Task, error)
	// InsertTask fails with ErrNotFound when the task's column no longer exists.
	InsertTask(ctx context.Context, task Task) error
	// UpdateTask replaces the task guarded by task.ETag.
	UpdateTask(ctx context.Context, task Task) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// CachedStore is a BoardStore whose list reads may be served from a cache.
// Mutations read through Backing so they never act on a stale list.
type CachedStore interface {
	BoardStore
	Backing() BoardStore
}

// UserStore persists accounts.
type UserStore interface {
	// InsertUser returns ErrEmailTaken when the email is already registered.
	InsertUser(ctx context.Context, u User) error
	// GetUserByEmail returns nil when no account exists.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// EventPublisher delivers board events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
