package domain

import (
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func priorityPtr(p Priority) *Priority { return &p }

var (
	t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func seedTask(t *testing.T) Task {
	t.Helper()
	task, err := NewTask("t1", "owner", NewTaskInput{Title: "Ship v1"}, testColumns(), t0)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	return task
}

func TestNewTaskDefaults(t *testing.T) {
	task := seedTask(t)
	if task.Status != "todo" {
		t.Fatalf("expected first column, got %q", task.Status)
	}
	if task.Priority != PriorityMedium {
		t.Fatalf("expected medium priority, got %q", task.Priority)
	}
	if len(task.Activities) != 1 || task.Activities[0].Kind != ActivityCreate || task.Activities[0].Message != "Task created" {
		t.Fatalf("unexpected activities: %+v", task.Activities)
	}
	if !task.CreatedAt.Equal(t0) || !task.UpdatedAt.Equal(t0) {
		t.Fatalf("unexpected timestamps: %v %v", task.CreatedAt, task.UpdatedAt)
	}
}

func TestNewTaskValidation(t *testing.T) {
	cols := testColumns()
	_, err := NewTask("t", "o", NewTaskInput{Title: "   "}, cols, t0)
	if verr, ok := AsValidation(err); !ok || verr.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
	_, err = NewTask("t", "o", NewTaskInput{Title: "x", Status: "archive"}, cols, t0)
	if verr, ok := AsValidation(err); !ok || verr.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}
	_, err = NewTask("t", "o", NewTaskInput{Title: "x", Priority: "critical"}, cols, t0)
	if verr, ok := AsValidation(err); !ok || verr.Field != "priority" {
		t.Fatalf("expected priority validation error, got %v", err)
	}
	_, err = NewTask("t", "o", NewTaskInput{Title: "x"}, nil, t0)
	if !errors.Is(err, ErrNoColumns) || !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrNoColumns, got %v", err)
	}
}

func TestNewTaskNormalizesInput(t *testing.T) {
	due := time.Date(2026, 4, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	task, err := NewTask("t", "o", NewTaskInput{Title: "  Write docs ", Status: "IN PROGRESS", Priority: "HIGH", DueDate: &due}, testColumns(), t0)
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if task.Title != "Write docs" || task.Status != "in-progress" || task.Priority != PriorityHigh {
		t.Fatalf("unexpected task: %+v", task)
	}
	if task.DueDate.Location() != time.UTC || !task.DueDate.Equal(due) {
		t.Fatalf("expected due date in UTC, got %v", task.DueDate)
	}
}

func TestApplyUpdateAbsentFieldsUnchanged(t *testing.T) {
	task := seedTask(t)
	task.Description = "keep me"
	out, acts, err := ApplyUpdate(task, TaskPatch{Priority: priorityPtr(PriorityHigh)}, nil, t1)
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if out.Title != task.Title || out.Description != "keep me" || out.Status != task.Status || out.DueDate != nil {
		t.Fatalf("absent fields changed: %+v", out)
	}
	if len(acts) != 1 || acts[0].Message != "Priority set to high" || acts[0].Kind != ActivityUpdate {
		t.Fatalf("unexpected activities: %+v", acts)
	}
	if !out.UpdatedAt.Equal(t1) {
		t.Fatalf("expected updatedAt bump, got %v", out.UpdatedAt)
	}
	if len(task.Activities) != 1 {
		t.Fatalf("input task was modified: %+v", task.Activities)
	}
}

func TestApplyUpdateUnchangedValuesAreNoop(t *testing.T) {
	task := seedTask(t)
	patch := TaskPatch{
		Title:    strPtr("  Ship v1  "),
		Status:   strPtr("To Do"),
		Priority: priorityPtr("MEDIUM"),
	}
	out, acts, err := ApplyUpdate(task, patch, testColumns(), t1)
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if len(acts) != 0 {
		t.Fatalf("expected no activities, got %+v", acts)
	}
	if !out.UpdatedAt.Equal(t0) || len(out.Activities) != 1 {
		t.Fatalf("expected task untouched, got %+v", out)
	}
}

func TestApplyUpdateIsIdempotent(t *testing.T) {
	task := seedTask(t)
	patch := TaskPatch{Status: strPtr("done"), Description: strPtr("notes")}
	first, acts, err := ApplyUpdate(task, patch, testColumns(), t1)
	if err != nil || len(acts) != 2 {
		t.Fatalf("first apply: acts=%+v err=%v", acts, err)
	}
	second, acts, err := ApplyUpdate(first, patch, testColumns(), t1.Add(time.Hour))
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(acts) != 0 || len(second.Activities) != len(first.Activities) {
		t.Fatalf("second apply appended activities: %+v", acts)
	}
}

func TestApplyUpdateActivityOrder(t *testing.T) {
	task := seedTask(t)
	due := time.Date(2026, 5, 20, 23, 30, 0, 0, time.UTC)
	patch := TaskPatch{
		Title:       strPtr("Ship v2"),
		Description: strPtr("d"),
		Status:      strPtr("inprogress"),
		Priority:    priorityPtr(PriorityUrgent),
		DueDate:     &due,
		DueDateSet:  true,
	}
	out, acts, err := ApplyUpdate(task, patch, testColumns(), t1)
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	want := []struct {
		kind ActivityKind
		msg  string
	}{
		{ActivityUpdate, "Title updated"},
		{ActivityUpdate, "Description updated"},
		{ActivityStatus, "Moved to In Progress"},
		{ActivityUpdate, "Priority set to urgent"},
		{ActivityUpdate, "Due date set to 2026-05-20"},
	}
	if len(acts) != len(want) {
		t.Fatalf("expected %d activities, got %+v", len(want), acts)
	}
	for i, w := range want {
		if acts[i].Kind != w.kind || acts[i].Message != w.msg || !acts[i].At.Equal(t1) {
			t.Fatalf("activity %d = %+v, want %v %q", i, acts[i], w.kind, w.msg)
		}
	}
	if len(out.Activities) != 6 {
		t.Fatalf("expected 6 activities in log, got %d", len(out.Activities))
	}
	if out.Status != "in-progress" {
		t.Fatalf("expected status key, got %q", out.Status)
	}
}

func TestApplyUpdateDueDateClear(t *testing.T) {
	task := seedTask(t)
	due := time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC)
	task.DueDate = &due

	out, acts, err := ApplyUpdate(task, TaskPatch{DueDateSet: true}, nil, t1)
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if out.DueDate != nil || len(acts) != 1 || acts[0].Message != "Due date cleared" {
		t.Fatalf("expected clear, got due=%v acts=%+v", out.DueDate, acts)
	}

	_, acts, err = ApplyUpdate(out, TaskPatch{DueDateSet: true}, nil, t1)
	if err != nil || len(acts) != 0 {
		t.Fatalf("clearing an absent due date should be a no-op: acts=%+v err=%v", acts, err)
	}
}

func TestApplyUpdateSameDueDateDifferentZone(t *testing.T) {
	task := seedTask(t)
	due := time.Date(2026, 5, 20, 12, 0, 0, 0, time.UTC)
	task.DueDate = &due
	same := due.In(time.FixedZone("plus2", 7200))
	_, acts, err := ApplyUpdate(task, TaskPatch{DueDate: &same, DueDateSet: true}, nil, t1)
	if err != nil || len(acts) != 0 {
		t.Fatalf("same instant should not change: acts=%+v err=%v", acts, err)
	}
}

func TestApplyUpdateRejectsWholePatch(t *testing.T) {
	task := seedTask(t)
	patch := TaskPatch{Title: strPtr("renamed"), Status: strPtr("archive")}
	out, acts, err := ApplyUpdate(task, patch, testColumns(), t1)
	if verr, ok := AsValidation(err); !ok || verr.Field != "status" {
		t.Fatalf("expected status validation error, got %v", err)
	}
	if out.Title != "Ship v1" || acts != nil {
		t.Fatalf("partial patch applied: %+v", out)
	}

	_, _, err = ApplyUpdate(task, TaskPatch{Title: strPtr(" ")}, nil, t1)
	if verr, ok := AsValidation(err); !ok || verr.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}
}

func TestParseDueDate(t *testing.T) {
	d, err := ParseDueDate("2026-07-04")
	if err != nil || !d.Equal(time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("plain date: %v %v", d, err)
	}
	d, err = ParseDueDate("2026-07-04T10:00:00+02:00")
	if err != nil || d.Hour() != 8 || d.Location() != time.UTC {
		t.Fatalf("rfc3339: %v %v", d, err)
	}
	if _, err := ParseDueDate("next tuesday"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSortTasks(t *testing.T) {
	tasks := []Task{
		{ID: "b", CreatedAt: t1},
		{ID: "c", CreatedAt: t0},
		{ID: "a", CreatedAt: t0},
	}
	SortTasks(tasks)
	if tasks[0].ID != "a" || tasks[1].ID != "c" || tasks[2].ID != "b" {
		t.Fatalf("unexpected order: %v %v %v", tasks[0].ID, tasks[1].ID, tasks[2].ID)
	}
}
