package storage

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
)

// fakeTable is an in-memory table with the table service's ETag and
// all-or-nothing transaction semantics.
type fakeTable struct {
	mu    sync.Mutex
	rows  map[string]map[string]any
	etags map[string]string
	seq   int

	txns      [][]aztables.TransactionAction
	created   int
	createErr error
	failTxnAt int
}

func newFakeTable() *fakeTable {
	return &fakeTable{rows: map[string]map[string]any{}, etags: map[string]string{}, failTxnAt: -1}
}

func rowID(pk, rk string) string { return pk + "\x00" + rk }

func respErr(status int, code string) error {
	return &azcore.ResponseError{StatusCode: status, ErrorCode: code}
}

func (f *fakeTable) bump(id string) string {
	f.seq++
	et := fmt.Sprintf("W/\"%d\"", f.seq)
	f.etags[id] = et
	return et
}

func decodeProps(data []byte) (map[string]any, string, error) {
	props := map[string]any{}
	if err := sonic.Unmarshal(data, &props); err != nil {
		return nil, "", err
	}
	pk, _ := props["PartitionKey"].(string)
	rk, _ := props["RowKey"].(string)
	return props, rowID(pk, rk), nil
}

func (f *fakeTable) matches(id string, ifMatch *azcore.ETag) bool {
	return ifMatch == nil || *ifMatch == azcore.ETagAny || string(*ifMatch) == f.etags[id]
}

// apply runs one action against rows; the caller holds the lock.
func (f *fakeTable) apply(rows map[string]map[string]any, a aztables.TransactionAction) error {
	props, id, err := decodeProps(a.Entity)
	if err != nil {
		return err
	}
	_, exists := rows[id]
	switch a.ActionType {
	case aztables.TransactionTypeAdd:
		if exists {
			return respErr(http.StatusConflict, "EntityAlreadyExists")
		}
		rows[id] = props
	case aztables.TransactionTypeUpdateMerge, aztables.TransactionTypeUpdateReplace:
		if !exists {
			return respErr(http.StatusNotFound, "ResourceNotFound")
		}
		if !f.matches(id, a.IfMatch) {
			return respErr(http.StatusPreconditionFailed, "UpdateConditionNotSatisfied")
		}
		if a.ActionType == aztables.TransactionTypeUpdateReplace {
			rows[id] = props
		} else {
			merged := maps.Clone(rows[id])
			maps.Copy(merged, props)
			rows[id] = merged
		}
	case aztables.TransactionTypeDelete:
		if !exists {
			return respErr(http.StatusNotFound, "ResourceNotFound")
		}
		if !f.matches(id, a.IfMatch) {
			return respErr(http.StatusPreconditionFailed, "UpdateConditionNotSatisfied")
		}
		delete(rows, id)
	default:
		return fmt.Errorf("unsupported action %v", a.ActionType)
	}
	return nil
}

func (f *fakeTable) AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := aztables.TransactionAction{ActionType: aztables.TransactionTypeAdd, Entity: entity}
	if err := f.apply(f.rows, a); err != nil {
		return aztables.AddEntityResponse{}, err
	}
	_, id, _ := decodeProps(entity)
	f.bump(id)
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTable) GetEntity(ctx context.Context, partitionKey string, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := rowID(partitionKey, rowKey)
	props, ok := f.rows[id]
	if !ok {
		return aztables.GetEntityResponse{}, respErr(http.StatusNotFound, "ResourceNotFound")
	}
	data, err := sonic.Marshal(props)
	if err != nil {
		return aztables.GetEntityResponse{}, err
	}
	return aztables.GetEntityResponse{ETag: azcore.ETag(f.etags[id]), Value: data}, nil
}

func (f *fakeTable) DeleteEntity(ctx context.Context, partitionKey string, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := rowID(partitionKey, rowKey)
	if _, ok := f.rows[id]; !ok {
		return aztables.DeleteEntityResponse{}, respErr(http.StatusNotFound, "ResourceNotFound")
	}
	delete(f.rows, id)
	delete(f.etags, id)
	return aztables.DeleteEntityResponse{}, nil
}

var filterPattern = regexp.MustCompile(`^PartitionKey eq '((?:[^']|'')*)' and RowKey ge '([^']*)' and RowKey lt '([^']*)'$`)

func (f *fakeTable) NewListEntitiesPager(listOptions *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	var pk, lo, hi string
	if listOptions != nil && listOptions.Filter != nil {
		if m := filterPattern.FindStringSubmatch(*listOptions.Filter); m != nil {
			pk, lo, hi = strings.ReplaceAll(m[1], "''", "'"), m[2], m[3]
		}
	}
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var ids []string
			for id := range f.rows {
				parts := strings.SplitN(id, "\x00", 2)
				if parts[0] == pk && parts[1] >= lo && parts[1] < hi {
					ids = append(ids, id)
				}
			}
			sort.Strings(ids)
			var resp aztables.ListEntitiesResponse
			for _, id := range ids {
				props := maps.Clone(f.rows[id])
				props["odata.etag"] = f.etags[id]
				data, err := sonic.Marshal(props)
				if err != nil {
					return aztables.ListEntitiesResponse{}, err
				}
				resp.Entities = append(resp.Entities, data)
			}
			return resp, nil
		},
	})
}

func (f *fakeTable) SubmitTransaction(ctx context.Context, transactionActions []aztables.TransactionAction, tableSubmitTransactionOptions *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(transactionActions) > maxBatch {
		return aztables.TransactionResponse{}, respErr(http.StatusBadRequest, "InvalidInput")
	}
	f.txns = append(f.txns, transactionActions)
	if f.failTxnAt == len(f.txns)-1 {
		return aztables.TransactionResponse{}, respErr(http.StatusServiceUnavailable, "ServerBusy")
	}
	staged := maps.Clone(f.rows)
	var touched []string
	for _, a := range transactionActions {
		if err := f.apply(staged, a); err != nil {
			return aztables.TransactionResponse{}, err
		}
		_, id, _ := decodeProps(a.Entity)
		touched = append(touched, id)
	}
	f.rows = staged
	for _, id := range touched {
		if _, ok := f.rows[id]; ok {
			f.bump(id)
		} else {
			delete(f.etags, id)
		}
	}
	return aztables.TransactionResponse{}, nil
}

func (f *fakeTable) CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	return aztables.CreateTableResponse{}, f.createErr
}
