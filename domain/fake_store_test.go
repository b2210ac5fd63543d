package domain

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

type fakeStore struct {
	mu      sync.Mutex
	columns map[string]map[string]Column
	tasks   map[string]map[string]Task
	users   map[string]User
	etag    int

	writes        int
	failRemove    error
	failInsertCol func(col Column) error
	beforeUpdate  func(task Task)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		columns: map[string]map[string]Column{},
		tasks:   map[string]map[string]Task{},
		users:   map[string]User{},
	}
}

func (f *fakeStore) nextETag() string {
	f.etag++
	return "W/\"" + strconv.Itoa(f.etag) + "\""
}

func (f *fakeStore) ListColumns(ctx context.Context, ownerID string) ([]Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Column{}
	for _, c := range f.columns[ownerID] {
		out = append(out, c)
	}
	SortColumns(out)
	return out, nil
}

func (f *fakeStore) InsertColumn(ctx context.Context, col Column) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsertCol != nil {
		if err := f.failInsertCol(col); err != nil {
			return err
		}
	}
	if f.columns[col.OwnerID] == nil {
		f.columns[col.OwnerID] = map[string]Column{}
	}
	if _, exists := f.columns[col.OwnerID][col.Key]; exists {
		return ErrColumnKeyTaken
	}
	col.ETag = f.nextETag()
	f.columns[col.OwnerID][col.Key] = col
	f.writes++
	return nil
}

func (f *fakeStore) SaveColumns(ctx context.Context, ownerID string, cols []Column) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range cols {
		cur, ok := f.columns[ownerID][c.Key]
		if !ok {
			return ErrNotFound
		}
		if cur.ETag != c.ETag {
			return ErrConcurrencyConflict
		}
	}
	for _, c := range cols {
		c.ETag = f.nextETag()
		f.columns[ownerID][c.Key] = c
	}
	f.writes++
	return nil
}

func (f *fakeStore) RemoveColumn(ctx context.Context, col Column, migrated []Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRemove != nil {
		return f.failRemove
	}
	cur, ok := f.columns[col.OwnerID][col.Key]
	if !ok {
		return ErrNotFound
	}
	if cur.ETag != col.ETag {
		return ErrConcurrencyConflict
	}
	for _, t := range migrated {
		if _, ok := f.columns[col.OwnerID][t.Status]; !ok {
			return ErrNotFound
		}
		if f.tasks[col.OwnerID][t.ID].ETag != t.ETag {
			return ErrConcurrencyConflict
		}
	}
	for _, t := range migrated {
		t.ETag = f.nextETag()
		f.tasks[col.OwnerID][t.ID] = t
	}
	delete(f.columns[col.OwnerID], col.Key)
	f.writes++
	return nil
}

func (f *fakeStore) ListTasks(ctx context.Context, ownerID string) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Task{}
	for _, t := range f.tasks[ownerID] {
		out = append(out, t.clone())
	}
	return out, nil
}

func (f *fakeStore) GetTask(ctx context.Context, ownerID, taskID string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[ownerID][taskID]
	if !ok {
		return nil, nil
	}
	c := t.clone()
	return &c, nil
}

// touch mirrors the store merging the task's column so concurrent deletes conflict.
func (f *fakeStore) touch(ownerID, key string) error {
	col, ok := f.columns[ownerID][key]
	if !ok {
		return ErrNotFound
	}
	col.ETag = f.nextETag()
	f.columns[ownerID][key] = col
	return nil
}

func (f *fakeStore) InsertTask(ctx context.Context, task Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.touch(task.OwnerID, task.Status); err != nil {
		return err
	}
	if f.tasks[task.OwnerID] == nil {
		f.tasks[task.OwnerID] = map[string]Task{}
	}
	task.ETag = f.nextETag()
	f.tasks[task.OwnerID][task.ID] = task.clone()
	f.writes++
	return nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, task Task) error {
	if f.beforeUpdate != nil {
		f.beforeUpdate(task)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.tasks[task.OwnerID][task.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.ETag != task.ETag {
		return ErrConcurrencyConflict
	}
	if err := f.touch(task.OwnerID, task.Status); err != nil {
		return err
	}
	task.ETag = f.nextETag()
	f.tasks[task.OwnerID][task.ID] = task.clone()
	f.writes++
	return nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[ownerID][taskID]; !ok {
		return ErrNotFound
	}
	delete(f.tasks[ownerID], taskID)
	f.writes++
	return nil
}

func (f *fakeStore) InsertUser(ctx context.Context, u User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.Email]; ok {
		return ErrEmailTaken
	}
	f.users[u.Email] = u
	return nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

var errBoom = errors.New("boom")
