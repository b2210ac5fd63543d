package api

import (
	"bytes"
	"io"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"kanban-api/domain"
)

const maxBodySize = 64 << 10

var errInvalidBody = &domain.ValidationError{Message: "invalid body"}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type columnRequest struct {
	Label string `json:"label"`
}

type moveColumnRequest struct {
	Index *int `json:"index"`
}

type createTaskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	DueDate     *string `json:"dueDate"`
	Priority    string  `json:"priority"`
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errInvalidBody
	}
	return nil
}

func (r createTaskRequest) input() (domain.NewTaskInput, error) {
	in := domain.NewTaskInput{
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
	}
	p, err := domain.ParsePriority(r.Priority)
	if err != nil {
		return in, err
	}
	in.Priority = p
	if r.DueDate != nil && strings.TrimSpace(*r.DueDate) != "" {
		d, err := domain.ParseDueDate(*r.DueDate)
		if err != nil {
			return in, err
		}
		in.DueDate = &d
	}
	return in, nil
}

var patchFields = []string{"title", "description", "status", "priority", "dueDate"}

// decodeTaskPatch reads a partial task update. Absent keys stay nil; a null
// or empty dueDate clears it and a null description empties it.
func decodeTaskPatch(c echo.Context) (domain.TaskPatch, error) {
	var raw map[string]sonic.NoCopyRawMessage
	if err := decodeBody(c, &raw); err != nil {
		return domain.TaskPatch{}, err
	}
	for name := range raw {
		if !slices.Contains(patchFields, name) {
			return domain.TaskPatch{}, &domain.ValidationError{Field: name, Message: "unknown field"}
		}
	}

	var patch domain.TaskPatch
	for _, name := range patchFields {
		val, ok := raw[name]
		if !ok {
			continue
		}
		isNull := bytes.Equal(bytes.TrimSpace(val), []byte("null"))
		var s string
		if !isNull {
			if err := sonic.Unmarshal(val, &s); err != nil {
				return domain.TaskPatch{}, &domain.ValidationError{Field: name, Message: "must be a string"}
			}
		}
		switch name {
		case "description":
			patch.Description = &s
		case "dueDate":
			patch.DueDateSet = true
			if isNull || strings.TrimSpace(s) == "" {
				continue
			}
			d, err := domain.ParseDueDate(s)
			if err != nil {
				return domain.TaskPatch{}, err
			}
			patch.DueDate = &d
		default:
			if isNull {
				return domain.TaskPatch{}, &domain.ValidationError{Field: name, Message: "must not be null"}
			}
			switch name {
			case "title":
				patch.Title = &s
			case "status":
				patch.Status = &s
			case "priority":
				if strings.TrimSpace(s) == "" {
					return domain.TaskPatch{}, &domain.ValidationError{Field: name, Message: "must not be empty"}
				}
				p, err := domain.ParsePriority(s)
				if err != nil {
					return domain.TaskPatch{}, err
				}
				patch.Priority = &p
			}
		}
	}
	return patch, nil
}

// pathParam returns the unescaped path parameter so labels with spaces or
// slashes resolve.
func pathParam(c echo.Context, name string) string {
	v := c.Param(name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

type authResponse struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type columnsResponse struct {
	Columns []domain.Column `json:"columns"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}
