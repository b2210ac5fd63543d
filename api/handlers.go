package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
	"kanban-api/summary"
)

const userContextKey = "userID"

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Services, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	e.GET("/healthz", healthz())

	g := e.Group("/api", observe(logger))
	g.POST("/auth/register", register(svc.Accounts, svc.Tokens, logger))
	g.POST("/auth/login", login(svc.Accounts, svc.Tokens, logger))

	authed := authenticate(svc.Auth)
	g.POST("/board/onboard", onboard(svc.Board, logger), authed)
	g.GET("/board", getBoard(svc.Board, logger), authed)
	g.GET("/summary", getSummary(svc.Board, svc.Summarizer, logger), authed)

	g.GET("/columns", listColumns(svc.Board, logger), authed)
	g.POST("/columns", createColumn(svc.Board, logger), authed)
	g.PATCH("/columns/:key", renameColumn(svc.Board, logger), authed)
	g.POST("/columns/:key/move", moveColumn(svc.Board, logger), authed)
	g.DELETE("/columns/:key", deleteColumn(svc.Board, logger), authed)

	g.GET("/tasks", listTasks(svc.Board, logger), authed)
	g.POST("/tasks", createTask(svc.Board, svc.Deduper, logger), authed)
	g.PATCH("/tasks/:id", updateTask(svc.Board, logger), authed)
	g.DELETE("/tasks/:id", deleteTask(svc.Board, logger), authed)
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
}

// authenticate resolves the caller and stores its id on the context.
func authenticate(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
			m := metricsFrom(c)
			if err != nil {
				if m != nil {
					m.SetError("auth", err)
				}
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
			}
			if m != nil {
				m.SetUser(userID)
			}
			c.Set(userContextKey, userID)
			return next(c)
		}
	}
}

func currentUser(c echo.Context) string {
	id, _ := c.Get(userContextKey).(string)
	return id
}

func register(accounts Accounts, tokens TokenIssuer, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, logger, "decode", err)
		}
		user, err := accounts.Register(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			return writeError(c, logger, "register", err)
		}
		return respondWithToken(c, tokens, logger, http.StatusCreated, user)
	}
}

func login(accounts Accounts, tokens TokenIssuer, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req credentialsRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, logger, "decode", err)
		}
		user, err := accounts.Login(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			return writeError(c, logger, "login", err)
		}
		return respondWithToken(c, tokens, logger, http.StatusOK, user)
	}
}

func respondWithToken(c echo.Context, tokens TokenIssuer, logger *log.Logger, status int, user domain.User) error {
	token, exp, err := tokens.Issue(user.ID)
	if err != nil {
		return writeError(c, logger, "issue_token", err)
	}
	if m := metricsFrom(c); m != nil {
		m.SetUser(user.ID)
	}
	return c.JSON(status, authResponse{User: user, Token: token, ExpiresAt: exp})
}

func onboard(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		cols, err := board.Onboard(c.Request().Context(), currentUser(c))
		if err != nil {
			return writeError(c, logger, "onboard", err)
		}
		return c.JSON(http.StatusOK, columnsResponse{Columns: nonNil(cols)})
	}
}

func getBoard(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, err := board.Board(c.Request().Context(), currentUser(c))
		if err != nil {
			return writeError(c, logger, "storage", err)
		}
		b.Columns = nonNil(b.Columns)
		b.Tasks = nonNil(b.Tasks)
		return c.JSON(http.StatusOK, b)
	}
}

func getSummary(board Board, summarizer Summarizer, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		b, err := board.Board(ctx, currentUser(c))
		if err != nil {
			return writeError(c, logger, "storage", err)
		}
		if summarizer == nil {
			return writeError(c, logger, "summarize", summary.ErrUnavailable)
		}
		text, err := summarizer.Summarize(ctx, summary.BuildSnapshot(b))
		if err != nil {
			return writeError(c, logger, "summarize", err)
		}
		return c.JSON(http.StatusOK, summaryResponse{Summary: text})
	}
}

func listColumns(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		cols, err := board.ListColumns(c.Request().Context(), currentUser(c))
		if err != nil {
			return writeError(c, logger, "storage", err)
		}
		return c.JSON(http.StatusOK, columnsResponse{Columns: nonNil(cols)})
	}
}

func createColumn(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req columnRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, logger, "decode", err)
		}
		col, err := board.CreateColumn(c.Request().Context(), currentUser(c), req.Label)
		if err != nil {
			return writeError(c, logger, "create_column", err)
		}
		return c.JSON(http.StatusCreated, col)
	}
}

func renameColumn(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req columnRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, logger, "decode", err)
		}
		col, err := board.RenameColumn(c.Request().Context(), currentUser(c), pathParam(c, "key"), req.Label)
		if err != nil {
			return writeError(c, logger, "rename_column", err)
		}
		return c.JSON(http.StatusOK, col)
	}
}

func moveColumn(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveColumnRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, logger, "decode", err)
		}
		if req.Index == nil {
			return writeError(c, logger, "decode", &domain.ValidationError{Field: "index", Message: "is required"})
		}
		cols, err := board.MoveColumn(c.Request().Context(), currentUser(c), pathParam(c, "key"), *req.Index)
		if err != nil {
			return writeError(c, logger, "move_column", err)
		}
		return c.JSON(http.StatusOK, columnsResponse{Columns: nonNil(cols)})
	}
}

func deleteColumn(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		migrateTo := strings.TrimSpace(c.QueryParam("migrateTo"))
		if err := board.DeleteColumn(c.Request().Context(), currentUser(c), pathParam(c, "key"), migrateTo); err != nil {
			return writeError(c, logger, "delete_column", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func listTasks(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks, err := board.ListTasks(c.Request().Context(), currentUser(c))
		if err != nil {
			return writeError(c, logger, "storage", err)
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: nonNil(tasks)})
	}
}

func createTask(board Board, deduper Deduper, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID := currentUser(c)

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, logger, "decode", err)
		}
		in, err := req.input()
		if err != nil {
			return writeError(c, logger, "decode", err)
		}

		key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
		recorded := false
		if key != "" && deduper != nil {
			added, dedupeErr := deduper.Add(ctx, userID, key)
			switch {
			case dedupeErr != nil:
				logger.WithField("user", userID).WithError(dedupeErr).Warn("record idempotency key failed")
			case !added:
				return writeError(c, logger, "idempotency", domain.ErrConflict)
			default:
				recorded = true
			}
		}

		task, err := board.CreateTask(ctx, userID, in)
		if err != nil {
			if recorded {
				if rmErr := deduper.Remove(context.WithoutCancel(ctx), userID, key); rmErr != nil {
					logger.WithField("user", userID).WithError(rmErr).Warn("release idempotency key failed")
				}
			}
			return writeError(c, logger, "create_task", err)
		}
		return c.JSON(http.StatusCreated, task)
	}
}

func updateTask(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		patch, err := decodeTaskPatch(c)
		if err != nil {
			return writeError(c, logger, "decode", err)
		}
		task, err := board.UpdateTask(c.Request().Context(), currentUser(c), c.Param("id"), patch)
		if err != nil {
			return writeError(c, logger, "update_task", err)
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(board Board, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := board.DeleteTask(c.Request().Context(), currentUser(c), c.Param("id")); err != nil {
			return writeError(c, logger, "delete_task", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
