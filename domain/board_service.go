package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Board is a snapshot of everything an owner sees.
type Board struct {
	Columns []Column `json:"columns"`
	Tasks   []Task   `json:"tasks"`
}

// BoardService owns column lifecycle and task mutation for every owner.
type BoardService struct {
	st     BoardStore
	events EventPublisher
	now    func() time.Time
	newID  func() string
}

// NewBoardService creates a service over st. events may be nil.
func NewBoardService(st BoardStore, events EventPublisher) *BoardService {
	return &BoardService{
		st:     st,
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Board returns the owner's columns and tasks.
func (s *BoardService) Board(ctx context.Context, ownerID string) (Board, error) {
	cols, err := s.ListColumns(ctx, ownerID)
	if err != nil {
		return Board{}, err
	}
	tasks, err := s.ListTasks(ctx, ownerID)
	if err != nil {
		return Board{}, err
	}
	return Board{Columns: cols, Tasks: tasks}, nil
}

// ListColumns returns the owner's columns in board order.
func (s *BoardService) ListColumns(ctx context.Context, ownerID string) ([]Column, error) {
	cols, err := s.st.ListColumns(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	SortColumns(cols)
	return cols, nil
}

// source returns the store mutations read from, bypassing any read cache.
func (s *BoardService) source() BoardStore {
	if c, ok := s.st.(CachedStore); ok {
		return c.Backing()
	}
	return s.st
}

// currentColumns lists the owner's columns from the backing store in board order.
func (s *BoardService) currentColumns(ctx context.Context, ownerID string) ([]Column, error) {
	cols, err := s.source().ListColumns(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	SortColumns(cols)
	return cols, nil
}

// Onboard seeds the default columns when the owner has none.
func (s *BoardService) Onboard(ctx context.Context, ownerID string) ([]Column, error) {
	cols, err := s.currentColumns(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		return cols, nil
	}
	for i, def := range DefaultColumns {
		col := Column{ID: s.newID(), OwnerID: ownerID, Key: def.Key, Label: def.Label, Position: i}
		if err := s.st.InsertColumn(ctx, col); err != nil {
			// a concurrent onboarding already created it
			if errors.Is(err, ErrColumnKeyTaken) {
				continue
			}
			return nil, err
		}
	}
	return s.currentColumns(ctx, ownerID)
}

// CreateColumn appends a column with a key derived from label. Key
// collisions reported by the store are retried with a fresh derivation.
func (s *BoardService) CreateColumn(ctx context.Context, ownerID, label string) (Column, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Column{}, invalid("label", "must not be empty")
	}
	base := Slugify(label)
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		cols, err := s.currentColumns(ctx, ownerID)
		if err != nil {
			return Column{}, err
		}
		col := Column{
			ID:       s.newID(),
			OwnerID:  ownerID,
			Key:      EnsureUniqueKey(base, cols),
			Label:    label,
			Position: nextPosition(cols),
		}
		err = s.st.InsertColumn(ctx, col)
		if errors.Is(err, ErrColumnKeyTaken) {
			log.WithFields(log.Fields{"owner": ownerID, "key": col.Key, "attempt": attempt + 1}).Debug("column key taken, retrying")
			continue
		}
		if err != nil {
			return Column{}, err
		}
		s.publish(ctx, ownerID, ColumnCreated, "column", col.Key, map[string]any{"label": col.Label, "position": col.Position})
		return col, nil
	}
	return Column{}, fmt.Errorf("column %q: %w", base, ErrColumnKeyTaken)
}

// RenameColumn changes the label of the column matching keyOrLabel. The key
// never changes.
func (s *BoardService) RenameColumn(ctx context.Context, ownerID, keyOrLabel, label string) (Column, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Column{}, invalid("label", "must not be empty")
	}
	cols, err := s.currentColumns(ctx, ownerID)
	if err != nil {
		return Column{}, err
	}
	col, _, ok := findColumn(cols, keyOrLabel)
	if !ok {
		return Column{}, fmt.Errorf("column %q: %w", keyOrLabel, ErrNotFound)
	}
	if col.Label == label {
		return col, nil
	}
	col.Label = label
	if err := s.st.SaveColumns(ctx, ownerID, []Column{col}); err != nil {
		return Column{}, err
	}
	s.publish(ctx, ownerID, ColumnRenamed, "column", col.Key, map[string]any{"label": col.Label})
	return col, nil
}

// MoveColumn places the column at index (clamped to the board) and
// renumbers every column so positions are 0..n-1.
func (s *BoardService) MoveColumn(ctx context.Context, ownerID, keyOrLabel string, index int) ([]Column, error) {
	cols, err := s.currentColumns(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	col, from, ok := findColumn(cols, keyOrLabel)
	if !ok {
		return nil, fmt.Errorf("column %q: %w", keyOrLabel, ErrNotFound)
	}
	if index < 0 {
		index = 0
	}
	if index > len(cols)-1 {
		index = len(cols) - 1
	}
	ordered := make([]Column, 0, len(cols))
	ordered = append(ordered, cols[:from]...)
	ordered = append(ordered, cols[from+1:]...)
	ordered = append(ordered[:index], append([]Column{col}, ordered[index:]...)...)

	var changed []Column
	for i := range ordered {
		if ordered[i].Position != i {
			ordered[i].Position = i
			changed = append(changed, ordered[i])
		}
	}
	if len(changed) == 0 {
		return ordered, nil
	}
	if err := s.st.SaveColumns(ctx, ownerID, changed); err != nil {
		return nil, err
	}
	s.publish(ctx, ownerID, ColumnMoved, "column", col.Key, map[string]any{"position": index})
	return ordered, nil
}

// DeleteColumn removes the column and moves its tasks to migrateTo, or to
// the first other column when migrateTo is empty. The owner must keep at
// least one column.
func (s *BoardService) DeleteColumn(ctx context.Context, ownerID, keyOrLabel, migrateTo string) error {
	cols, err := s.currentColumns(ctx, ownerID)
	if err != nil {
		return err
	}
	col, _, ok := findColumn(cols, keyOrLabel)
	if !ok {
		return fmt.Errorf("column %q: %w", keyOrLabel, ErrNotFound)
	}
	if len(cols) <= 1 {
		return ErrLastColumn
	}
	target, err := migrationTarget(cols, col, migrateTo)
	if err != nil {
		return err
	}

	tasks, err := s.source().ListTasks(ctx, ownerID)
	if err != nil {
		return err
	}
	now := s.now()
	var migrated []Task
	for _, t := range tasks {
		if t.Status != col.Key {
			continue
		}
		t.Status = target.Key
		t.UpdatedAt = now
		migrated = append(migrated, t)
	}
	if err := s.st.RemoveColumn(ctx, col, migrated); err != nil {
		return err
	}
	log.WithFields(log.Fields{"owner": ownerID, "column": col.Key, "target": target.Key, "moved": len(migrated)}).Info("column deleted")
	s.publish(ctx, ownerID, ColumnDeleted, "column", col.Key, map[string]any{"migratedTo": target.Key, "moved": len(migrated)})
	return nil
}

func migrationTarget(cols []Column, deleted Column, migrateTo string) (Column, error) {
	if strings.TrimSpace(migrateTo) == "" {
		for _, c := range cols {
			if c.Key != deleted.Key {
				return c, nil
			}
		}
		return Column{}, ErrInvalidMigrationTarget
	}
	target, _, ok := findColumn(cols, migrateTo)
	if !ok || target.Key == deleted.Key {
		return Column{}, fmt.Errorf("%w %q", ErrInvalidMigrationTarget, migrateTo)
	}
	return target, nil
}

func (s *BoardService) publish(ctx context.Context, ownerID, typ, entityType, entityID string, data map[string]any) {
	if s.events == nil {
		return
	}
	ev := Event{
		ID:         s.newID(),
		EntityID:   entityID,
		EntityType: entityType,
		Type:       typ,
		Data:       data,
		Time:       s.now().UnixNano(),
		UserID:     ownerID,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		log.WithFields(log.Fields{"owner": ownerID, "type": typ, "entity": entityID}).WithError(err).Warn("publish board event failed")
	}
}
