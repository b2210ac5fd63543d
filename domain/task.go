package domain

import (
	"sort"
	"strings"
	"time"
)

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority accepts one of low, medium, high or urgent in any case.
// An empty value yields medium.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	default:
		return "", invalid("priority", "must be one of low, medium, high, urgent")
	}
}

// ParseDueDate accepts an RFC3339 instant or a plain YYYY-MM-DD date
// (midnight UTC).
func ParseDueDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dueDateLayout, s); err == nil {
		return t, nil
	}
	return time.Time{}, invalid("dueDate", "expected RFC3339 timestamp or YYYY-MM-DD")
}

// Task represents a single board item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
	Priority    Priority   `json:"priority"`
	Activities  []Activity `json:"activities"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	OwnerID     string     `json:"-"`
	ETag        string     `json:"-"`
}

// clone returns a copy that shares no mutable state with t.
func (t Task) clone() Task {
	out := t
	out.Activities = append([]Activity(nil), t.Activities...)
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	return out
}

// NewTaskInput carries the fields accepted on task creation.
type NewTaskInput struct {
	Title       string
	Description string
	Status      string
	DueDate     *time.Time
	Priority    Priority
}

// NewTask validates in and builds a task seeded with its creation activity.
func NewTask(id, ownerID string, in NewTaskInput, columns []Column, now time.Time) (Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Task{}, invalid("title", "must not be empty")
	}
	if len(columns) == 0 {
		return Task{}, ErrNoColumns
	}
	col, ok := ResolveStatus(columns, in.Status)
	if !ok {
		return Task{}, invalid("status", "unknown column %q", in.Status)
	}
	priority, err := ParsePriority(string(in.Priority))
	if err != nil {
		return Task{}, err
	}
	t := Task{
		ID:          id,
		OwnerID:     ownerID,
		Title:       title,
		Description: in.Description,
		Status:      col.Key,
		Priority:    priority,
		Activities:  []Activity{createdActivity(now)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.DueDate != nil {
		d := in.DueDate.UTC()
		t.DueDate = &d
	}
	return t, nil
}

// TaskPatch carries optional task fields for partial updates. A nil pointer
// means the field was absent from the request. DueDateSet distinguishes an
// explicit clear (DueDateSet with nil DueDate) from an absent due date.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *Priority
	DueDate     *time.Time
	DueDateSet  bool
}

// Empty reports whether the patch names no field at all.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil && !p.DueDateSet
}

// resolvedPatch is a validated patch with its status already resolved.
type resolvedPatch struct {
	TaskPatch
	target Column
}

// fieldRule describes how one task field is diffed, applied and logged.
type fieldRule struct {
	name    string
	present func(p *resolvedPatch) bool
	changed func(t *Task, p *resolvedPatch) bool
	apply   func(t *Task, p *resolvedPatch)
	kind    ActivityKind
	message func(t *Task, p *resolvedPatch) string
}

// fieldRules run in this order, which is also the order of the activities
// appended by a single update.
var fieldRules = []fieldRule{
	{
		name:    "title",
		present: func(p *resolvedPatch) bool { return p.Title != nil },
		changed: func(t *Task, p *resolvedPatch) bool { return *p.Title != t.Title },
		apply:   func(t *Task, p *resolvedPatch) { t.Title = *p.Title },
		kind:    ActivityUpdate,
		message: func(*Task, *resolvedPatch) string { return "Title updated" },
	},
	{
		name:    "description",
		present: func(p *resolvedPatch) bool { return p.Description != nil },
		changed: func(t *Task, p *resolvedPatch) bool { return *p.Description != t.Description },
		apply:   func(t *Task, p *resolvedPatch) { t.Description = *p.Description },
		kind:    ActivityUpdate,
		message: func(*Task, *resolvedPatch) string { return "Description updated" },
	},
	{
		name:    "status",
		present: func(p *resolvedPatch) bool { return p.Status != nil },
		changed: func(t *Task, p *resolvedPatch) bool { return p.target.Key != t.Status },
		apply:   func(t *Task, p *resolvedPatch) { t.Status = p.target.Key },
		kind:    ActivityStatus,
		message: func(_ *Task, p *resolvedPatch) string { return "Moved to " + p.target.Label },
	},
	{
		name:    "priority",
		present: func(p *resolvedPatch) bool { return p.Priority != nil },
		changed: func(t *Task, p *resolvedPatch) bool { return *p.Priority != t.Priority },
		apply:   func(t *Task, p *resolvedPatch) { t.Priority = *p.Priority },
		kind:    ActivityUpdate,
		message: func(t *Task, _ *resolvedPatch) string { return "Priority set to " + string(t.Priority) },
	},
	{
		name:    "dueDate",
		present: func(p *resolvedPatch) bool { return p.DueDateSet },
		changed: func(t *Task, p *resolvedPatch) bool { return !sameInstant(t.DueDate, p.DueDate) },
		apply: func(t *Task, p *resolvedPatch) {
			if p.DueDate == nil {
				t.DueDate = nil
				return
			}
			d := p.DueDate.UTC()
			t.DueDate = &d
		},
		kind:    ActivityUpdate,
		message: func(t *Task, _ *resolvedPatch) string { return dueDateMessage(t.DueDate) },
	},
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// validate checks every present field before anything is applied, so an
// invalid field rejects the whole patch.
func (p TaskPatch) validate(columns []Column) (*resolvedPatch, error) {
	rp := &resolvedPatch{TaskPatch: p}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, invalid("title", "must not be empty")
		}
		rp.Title = &title
	}
	if p.Priority != nil {
		pr, err := ParsePriority(string(*p.Priority))
		if err != nil {
			return nil, err
		}
		rp.Priority = &pr
	}
	if p.Status != nil {
		col, ok := ResolveStatus(columns, *p.Status)
		if !ok {
			return nil, invalid("status", "unknown column %q", *p.Status)
		}
		rp.target = col
	}
	return rp, nil
}

// ApplyUpdate diffs the patch against task field by field, applies the real
// changes and appends one activity per changed field. The returned task is a
// copy; the input is never modified. When nothing changed the returned
// activities slice is empty and the task is returned as it was.
func ApplyUpdate(task Task, patch TaskPatch, columns []Column, now time.Time) (Task, []Activity, error) {
	res, err := applyUpdate(task, patch, columns, now)
	if err != nil {
		return task, nil, err
	}
	return res.task, res.activities, nil
}

type updateResult struct {
	task       Task
	activities []Activity
	fields     []string
}

func applyUpdate(task Task, patch TaskPatch, columns []Column, now time.Time) (updateResult, error) {
	rp, err := patch.validate(columns)
	if err != nil {
		return updateResult{}, err
	}
	out := task.clone()
	rec := recorder{at: now}
	var fields []string
	for _, rule := range fieldRules {
		if !rule.present(rp) || !rule.changed(&out, rp) {
			continue
		}
		rule.apply(&out, rp)
		rec.record(&out, rule.kind, rule.message(&out, rp))
		fields = append(fields, rule.name)
	}
	if len(fields) == 0 {
		return updateResult{task: task}, nil
	}
	out.UpdatedAt = now
	return updateResult{task: out, activities: rec.appended, fields: fields}, nil
}

// SortTasks orders tasks by creation time, breaking ties by id.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
