package domain

const (
	ColumnCreated = "column-created"
	ColumnRenamed = "column-renamed"
	ColumnMoved   = "column-moved"
	ColumnDeleted = "column-deleted"
	TaskCreated   = "task-created"
	TaskUpdated   = "task-updated"
	TaskDeleted   = "task-deleted"
)

// Event represents a committed change to a board.
type Event struct {
	ID         string         `json:"id"`
	EntityID   string         `json:"entityId"`
	EntityType string         `json:"entityType"`
	Type       string         `json:"type"`
	Data       map[string]any `json:"data,omitempty"`
	Time       int64          `json:"time"`
	UserID     string         `json:"userId"`
}
