package domain

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ListTasks returns the owner's tasks in creation order.
func (s *BoardService) ListTasks(ctx context.Context, ownerID string) ([]Task, error) {
	tasks, err := s.st.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	SortTasks(tasks)
	return tasks, nil
}

// CreateTask resolves the requested status against the owner's columns and
// stores the task with its creation activity.
func (s *BoardService) CreateTask(ctx context.Context, ownerID string, in NewTaskInput) (Task, error) {
	cols, err := s.currentColumns(ctx, ownerID)
	if err != nil {
		return Task{}, err
	}
	task, err := NewTask(s.newID(), ownerID, in, cols, s.now())
	if err != nil {
		return Task{}, err
	}
	if err := s.st.InsertTask(ctx, task); err != nil {
		if errors.Is(err, ErrNotFound) {
			// the column was removed between resolution and insert
			return Task{}, fmt.Errorf("column %q: %w", task.Status, ErrConcurrencyConflict)
		}
		return Task{}, err
	}
	s.publish(ctx, ownerID, TaskCreated, "task", task.ID, map[string]any{"title": task.Title, "status": task.Status})
	return task, nil
}

// UpdateTask applies patch to the task. Fields absent from the patch are
// left alone; when no field actually changes nothing is written.
func (s *BoardService) UpdateTask(ctx context.Context, ownerID, taskID string, patch TaskPatch) (Task, error) {
	if patch.Empty() {
		return Task{}, invalid("", "no updatable fields in request")
	}
	task, err := s.st.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return Task{}, err
	}
	if task == nil {
		return Task{}, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	var cols []Column
	if patch.Status != nil {
		if cols, err = s.currentColumns(ctx, ownerID); err != nil {
			return Task{}, err
		}
	}
	res, err := applyUpdate(*task, patch, cols, s.now())
	if err != nil {
		return Task{}, err
	}
	if len(res.fields) == 0 {
		return *task, nil
	}
	if err := s.st.UpdateTask(ctx, res.task); err != nil {
		if errors.Is(err, ErrNotFound) && res.task.Status != task.Status {
			// the target column was removed between resolution and write
			return Task{}, fmt.Errorf("column %q: %w", res.task.Status, ErrConcurrencyConflict)
		}
		return Task{}, err
	}
	log.WithFields(log.Fields{"owner": ownerID, "task": taskID, "fields": res.fields}).Debug("task updated")
	s.publish(ctx, ownerID, TaskUpdated, "task", taskID, map[string]any{"fields": res.fields, "status": res.task.Status})
	return res.task, nil
}

// DeleteTask removes the task and its activity log.
func (s *BoardService) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if err := s.st.DeleteTask(ctx, ownerID, taskID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return err
	}
	s.publish(ctx, ownerID, TaskDeleted, "task", taskID, nil)
	return nil
}
