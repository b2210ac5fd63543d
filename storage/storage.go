package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// maxBatch is the table service's limit on actions per transaction.
const maxBatch = 100

// table is the subset of *aztables.Client used by Storage.
type table interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey string, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey string, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	SubmitTransaction(ctx context.Context, transactionActions []aztables.TransactionAction, tableSubmitTransactionOptions *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

// Storage keeps columns and tasks in one table partitioned by owner, and
// accounts in a second table keyed by email hash.
type Storage struct {
	boardTable table
	usersTable table
	now        func() time.Time
}

// New creates a Storage instance from the given connection string.
func New(connStr, boardTable, usersTable string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		boardTable: svc.NewClient(boardTable),
		usersTable: svc.NewClient(usersTable),
		now:        time.Now,
	}, nil
}

// EnsureTables creates the board and users tables when missing.
func (s *Storage) EnsureTables(ctx context.Context) error {
	for _, t := range []table{s.boardTable, s.usersTable} {
		if _, err := t.CreateTable(ctx, nil); err != nil {
			var respErr *azcore.ResponseError
			if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
				return err
			}
		}
	}
	return nil
}

const (
	columnPrefix = "column:"
	taskPrefix   = "task:"
)

func columnRowKey(key string) string { return columnPrefix + key }
func taskRowKey(id string) string    { return taskPrefix + id }

// prefixFilter selects rows of one kind within the owner's partition.
// ';' sorts directly after ':', closing the prefix range.
func prefixFilter(ownerID, prefix string) string {
	upper := strings.TrimSuffix(prefix, ":") + ";"
	return fmt.Sprintf("PartitionKey eq '%s' and RowKey ge '%s' and RowKey lt '%s'", escape(ownerID), prefix, upper)
}

func escape(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func (s *Storage) list(ctx context.Context, t table, filter string, fn func([]byte) error) error {
	pager := t.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListColumns returns the owner's columns ordered by position.
func (s *Storage) ListColumns(ctx context.Context, ownerID string) ([]domain.Column, error) {
	cols := []domain.Column{}
	err := s.list(ctx, s.boardTable, prefixFilter(ownerID, columnPrefix), func(data []byte) error {
		c, err := decodeColumnEntity(data)
		if err != nil {
			return err
		}
		cols = append(cols, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortColumns(cols)
	return cols, nil
}

// InsertColumn adds a new column. The row key makes (owner, key) unique.
func (s *Storage) InsertColumn(ctx context.Context, col domain.Column) error {
	payload, err := encodeColumnEntity(col)
	if err != nil {
		return err
	}
	_, err = s.boardTable.AddEntity(ctx, payload, nil)
	return mapError(err, domain.ErrColumnKeyTaken)
}

// SaveColumns merges label and position changes, each guarded by its ETag.
func (s *Storage) SaveColumns(ctx context.Context, ownerID string, cols []domain.Column) error {
	actions := make([]aztables.TransactionAction, 0, len(cols))
	for _, c := range cols {
		payload, err := encodeColumnUpdate(ownerID, c)
		if err != nil {
			return err
		}
		actions = append(actions, mergeAction(payload, c.ETag))
	}
	for start := 0; start < len(actions); start += maxBatch {
		end := min(start+maxBatch, len(actions))
		if err := s.submit(ctx, actions[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// RemoveColumn moves the migrated tasks and deletes col. When everything
// fits in one transaction it commits atomically. Otherwise tasks are moved
// in batches first and the column is deleted with the last batch, so a task
// never points at a missing column.
func (s *Storage) RemoveColumn(ctx context.Context, col domain.Column, migrated []domain.Task) error {
	target := ""
	if len(migrated) > 0 {
		target = migrated[0].Status
	}
	deletion, err := deleteAction(col.OwnerID, columnRowKey(col.Key), col.ETag)
	if err != nil {
		return err
	}

	perBatch := maxBatch - 2
	for start := 0; ; start += perBatch {
		end := min(start+perBatch, len(migrated))
		var actions []aztables.TransactionAction
		for _, t := range migrated[start:end] {
			payload, err := encodeTaskStatusUpdate(t)
			if err != nil {
				return err
			}
			actions = append(actions, mergeAction(payload, t.ETag))
		}
		if target != "" {
			touch, err := s.touchAction(col.OwnerID, target)
			if err != nil {
				return err
			}
			actions = append(actions, touch)
		}
		last := end >= len(migrated)
		if last {
			actions = append(actions, deletion)
		}
		if err := s.submit(ctx, actions); err != nil {
			if start > 0 {
				log.WithFields(log.Fields{"owner": col.OwnerID, "column": col.Key, "moved": start}).WithError(err).Warn("column removal stopped after partial migration")
			}
			return err
		}
		if last {
			return nil
		}
	}
}

// ListTasks returns every task of the owner.
func (s *Storage) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	tasks := []domain.Task{}
	err := s.list(ctx, s.boardTable, prefixFilter(ownerID, taskPrefix), func(data []byte) error {
		t, err := decodeTaskEntity(data)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask retrieves a task if present.
func (s *Storage) GetTask(ctx context.Context, ownerID, taskID string) (*domain.Task, error) {
	resp, err := s.boardTable.GetEntity(ctx, ownerID, taskRowKey(taskID), nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	t, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	if resp.ETag != "" {
		t.ETag = string(resp.ETag)
	}
	return &t, nil
}

// InsertTask adds the task and touches its column in one transaction; the
// touch fails when the column has been deleted.
func (s *Storage) InsertTask(ctx context.Context, task domain.Task) error {
	payload, err := encodeTaskEntity(task)
	if err != nil {
		return err
	}
	touch, err := s.touchAction(task.OwnerID, task.Status)
	if err != nil {
		return err
	}
	return s.submit(ctx, []aztables.TransactionAction{
		{ActionType: aztables.TransactionTypeAdd, Entity: payload},
		touch,
	})
}

// UpdateTask replaces the task if its ETag still matches and touches its
// column.
func (s *Storage) UpdateTask(ctx context.Context, task domain.Task) error {
	payload, err := encodeTaskEntity(task)
	if err != nil {
		return err
	}
	touch, err := s.touchAction(task.OwnerID, task.Status)
	if err != nil {
		return err
	}
	etag := etagOrAny(task.ETag)
	return s.submit(ctx, []aztables.TransactionAction{
		{ActionType: aztables.TransactionTypeUpdateReplace, Entity: payload, IfMatch: &etag},
		touch,
	})
}

// DeleteTask removes the task.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	_, err := s.boardTable.DeleteEntity(ctx, ownerID, taskRowKey(taskID), nil)
	return mapError(err, nil)
}

// InsertUser adds an account; a second account for the same email fails.
func (s *Storage) InsertUser(ctx context.Context, u domain.User) error {
	payload, err := encodeUserEntity(u)
	if err != nil {
		return err
	}
	_, err = s.usersTable.AddEntity(ctx, payload, nil)
	return mapError(err, domain.ErrEmailTaken)
}

// GetUserByEmail retrieves the account registered for email, if any.
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	key := userKey(email)
	resp, err := s.usersTable.GetEntity(ctx, key, key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	u, err := decodeUserEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Storage) touchAction(ownerID, key string) (aztables.TransactionAction, error) {
	payload, err := encodeTouch(ownerID, key, s.now().UnixNano())
	if err != nil {
		return aztables.TransactionAction{}, err
	}
	return mergeAction(payload, ""), nil
}

func (s *Storage) submit(ctx context.Context, actions []aztables.TransactionAction) error {
	if len(actions) == 0 {
		return nil
	}
	_, err := s.boardTable.SubmitTransaction(ctx, actions, nil)
	return mapError(err, nil)
}

func mergeAction(payload []byte, etag string) aztables.TransactionAction {
	et := etagOrAny(etag)
	return aztables.TransactionAction{ActionType: aztables.TransactionTypeUpdateMerge, Entity: payload, IfMatch: &et}
}

func deleteAction(pk, rk, etag string) (aztables.TransactionAction, error) {
	payload, err := encodeKeys(pk, rk)
	if err != nil {
		return aztables.TransactionAction{}, err
	}
	et := etagOrAny(etag)
	return aztables.TransactionAction{ActionType: aztables.TransactionTypeDelete, Entity: payload, IfMatch: &et}, nil
}

func etagOrAny(etag string) azcore.ETag {
	if etag == "" {
		return azcore.ETagAny
	}
	return azcore.ETag(etag)
}

// mapError translates table service failures into domain errors. conflict
// replaces a plain "already exists" failure when non-nil.
func mapError(err error, conflict error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	var mapped error
	switch {
	case respErr.ErrorCode == "UpdateConditionNotSatisfied" || respErr.StatusCode == http.StatusPreconditionFailed:
		mapped = domain.ErrConcurrencyConflict
	case respErr.ErrorCode == "ResourceNotFound" || respErr.StatusCode == http.StatusNotFound:
		mapped = domain.ErrNotFound
	case respErr.ErrorCode == "EntityAlreadyExists" || respErr.StatusCode == http.StatusConflict:
		mapped = conflict
		if mapped == nil {
			mapped = domain.ErrConflict
		}
	default:
		return err
	}
	if respErr.ErrorCode == "" {
		return mapped
	}
	return fmt.Errorf("%w (%s)", mapped, respErr.ErrorCode)
}
