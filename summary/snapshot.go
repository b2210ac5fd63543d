package summary

import (
	"kanban-api/domain"
)

const dateLayout = "2006-01-02"

// Snapshot is the board as handed to the summarizer.
type Snapshot struct {
	Columns []Column `json:"columns"`
	Tasks   []Task   `json:"tasks"`
}

type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Task carries dates as plain calendar dates.
type Task struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"dueDate,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// BuildSnapshot normalizes board for the summarizer.
func BuildSnapshot(board domain.Board) Snapshot {
	snap := Snapshot{
		Columns: make([]Column, 0, len(board.Columns)),
		Tasks:   make([]Task, 0, len(board.Tasks)),
	}
	for _, c := range board.Columns {
		snap.Columns = append(snap.Columns, Column{Key: c.Key, Label: c.Label})
	}
	for _, t := range board.Tasks {
		st := Task{
			Title:       t.Title,
			Description: t.Description,
			Status:      t.Status,
			Priority:    string(t.Priority),
			CreatedAt:   t.CreatedAt.UTC().Format(dateLayout),
		}
		if t.DueDate != nil {
			st.DueDate = t.DueDate.UTC().Format(dateLayout)
		}
		snap.Tasks = append(snap.Tasks, st)
	}
	return snap
}
