package domain

import "time"

// ActivityKind classifies an activity log entry.
type ActivityKind string

const (
	ActivityCreate ActivityKind = "create"
	ActivityUpdate ActivityKind = "update"
	ActivityStatus ActivityKind = "status"
)

// Activity is one immutable entry in a task's log.
type Activity struct {
	Kind    ActivityKind `json:"kind"`
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}

const dueDateLayout = "2006-01-02"

// recorder appends entries to a task log. Entries are never edited.
type recorder struct {
	at       time.Time
	appended []Activity
}

func (r *recorder) record(t *Task, kind ActivityKind, message string) {
	a := Activity{Kind: kind, Message: message, At: r.at}
	t.Activities = append(t.Activities, a)
	r.appended = append(r.appended, a)
}

func createdActivity(at time.Time) Activity {
	return Activity{Kind: ActivityCreate, Message: "Task created", At: at}
}

func dueDateMessage(d *time.Time) string {
	if d == nil {
		return "Due date cleared"
	}
	return "Due date set to " + d.UTC().Format(dueDateLayout)
}
