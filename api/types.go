package api

import (
	"context"
	"time"

	"kanban-api/domain"
	"kanban-api/summary"
)

// Board is the board service used by the handlers.
type Board interface {
	Board(ctx context.Context, ownerID string) (domain.Board, error)
	Onboard(ctx context.Context, ownerID string) ([]domain.Column, error)
	ListColumns(ctx context.Context, ownerID string) ([]domain.Column, error)
	CreateColumn(ctx context.Context, ownerID, label string) (domain.Column, error)
	RenameColumn(ctx context.Context, ownerID, keyOrLabel, label string) (domain.Column, error)
	MoveColumn(ctx context.Context, ownerID, keyOrLabel string, index int) ([]domain.Column, error)
	DeleteColumn(ctx context.Context, ownerID, keyOrLabel, migrateTo string) error
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	CreateTask(ctx context.Context, ownerID string, in domain.NewTaskInput) (domain.Task, error)
	UpdateTask(ctx context.Context, ownerID, taskID string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, ownerID, taskID string) error
}

// Accounts registers and authenticates users.
type Accounts interface {
	Register(ctx context.Context, email, password string) (domain.User, error)
	Login(ctx context.Context, email, password string) (domain.User, error)
}

// Authenticator resolves the caller from an Authorization header.
type Authenticator interface {
	UserIDFromAuthHeader(h string) (string, error)
}

// TokenIssuer signs access tokens for a user.
type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

// Summarizer turns a board snapshot into prose.
type Summarizer interface {
	Summarize(ctx context.Context, snap summary.Snapshot) (string, error)
}

// Deduper records idempotency keys.
type Deduper interface {
	Add(ctx context.Context, userID, key string) (bool, error)
	Remove(ctx context.Context, userID, key string) error
}

// Services bundles the collaborators served over HTTP. Summarizer and
// Deduper may be nil.
type Services struct {
	Board      Board
	Accounts   Accounts
	Auth       Authenticator
	Tokens     TokenIssuer
	Summarizer Summarizer
	Deduper    Deduper
}
