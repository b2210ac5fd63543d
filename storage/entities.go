package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"kanban-api/domain"
)

const edmInt64 = "Edm.Int64"

// Entity carries the table keys. ETag is only populated on reads.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	ETag         string `json:"odata.etag,omitempty"`
}

type columnEntity struct {
	Entity
	ID       string `json:"ID"`
	Key      string `json:"Key"`
	Label    string `json:"Label"`
	Position int    `json:"Position"`
}

type columnUpdate struct {
	Entity
	Label    *string `json:"Label,omitempty"`
	Position *int    `json:"Position,omitempty"`
}

// columnTouch is merged into a column by every task write so that a
// concurrent column delete fails its ETag check.
type columnTouch struct {
	Entity
	TouchedAt     int64  `json:"TouchedAt,string"`
	TouchedAtType string `json:"TouchedAt@odata.type"`
}

type taskEntity struct {
	Entity
	ID            string `json:"ID"`
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	Status        string `json:"Status"`
	Priority      string `json:"Priority"`
	DueDate       *int64 `json:"DueDate,omitempty,string"`
	DueDateType   string `json:"DueDate@odata.type,omitempty"`
	Activities    string `json:"Activities"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type taskStatusUpdate struct {
	Entity
	Status        string `json:"Status"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type userEntity struct {
	Entity
	ID            string `json:"ID"`
	Email         string `json:"Email"`
	PasswordHash  string `json:"PasswordHash"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

func encodeKeys(pk, rk string) ([]byte, error) {
	return sonic.Marshal(Entity{PartitionKey: pk, RowKey: rk})
}

func encodeColumnEntity(c domain.Column) ([]byte, error) {
	return sonic.Marshal(columnEntity{
		Entity:   Entity{PartitionKey: c.OwnerID, RowKey: columnRowKey(c.Key)},
		ID:       c.ID,
		Key:      c.Key,
		Label:    c.Label,
		Position: c.Position,
	})
}

func encodeColumnUpdate(ownerID string, c domain.Column) ([]byte, error) {
	label, pos := c.Label, c.Position
	return sonic.Marshal(columnUpdate{
		Entity:   Entity{PartitionKey: ownerID, RowKey: columnRowKey(c.Key)},
		Label:    &label,
		Position: &pos,
	})
}

func encodeTouch(ownerID, key string, at int64) ([]byte, error) {
	return sonic.Marshal(columnTouch{
		Entity:        Entity{PartitionKey: ownerID, RowKey: columnRowKey(key)},
		TouchedAt:     at,
		TouchedAtType: edmInt64,
	})
}

func decodeColumnEntity(data []byte) (domain.Column, error) {
	var ent columnEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Column{}, fmt.Errorf("decode column: %w", err)
	}
	key := ent.Key
	if key == "" {
		key = strings.TrimPrefix(ent.RowKey, columnPrefix)
	}
	return domain.Column{
		ID:       ent.ID,
		OwnerID:  ent.PartitionKey,
		Key:      key,
		Label:    ent.Label,
		Position: ent.Position,
		ETag:     ent.ETag,
	}, nil
}

func encodeTaskEntity(t domain.Task) ([]byte, error) {
	activities, err := sonic.MarshalString(t.Activities)
	if err != nil {
		return nil, fmt.Errorf("encode activities: %w", err)
	}
	ent := taskEntity{
		Entity:        Entity{PartitionKey: t.OwnerID, RowKey: taskRowKey(t.ID)},
		ID:            t.ID,
		Title:         t.Title,
		Description:   t.Description,
		Status:        t.Status,
		Priority:      string(t.Priority),
		Activities:    activities,
		CreatedAt:     t.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
		UpdatedAt:     t.UpdatedAt.UnixNano(),
		UpdatedAtType: edmInt64,
	}
	if t.DueDate != nil {
		due := t.DueDate.UnixNano()
		ent.DueDate = &due
		ent.DueDateType = edmInt64
	}
	return sonic.Marshal(ent)
}

func encodeTaskStatusUpdate(t domain.Task) ([]byte, error) {
	return sonic.Marshal(taskStatusUpdate{
		Entity:        Entity{PartitionKey: t.OwnerID, RowKey: taskRowKey(t.ID)},
		Status:        t.Status,
		UpdatedAt:     t.UpdatedAt.UnixNano(),
		UpdatedAtType: edmInt64,
	})
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, fmt.Errorf("decode task: %w", err)
	}
	t := domain.Task{
		ID:          ent.ID,
		OwnerID:     ent.PartitionKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      ent.Status,
		Priority:    domain.Priority(ent.Priority),
		CreatedAt:   time.Unix(0, ent.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, ent.UpdatedAt).UTC(),
		ETag:        ent.ETag,
		Activities:  []domain.Activity{},
	}
	if t.ID == "" {
		t.ID = strings.TrimPrefix(ent.RowKey, taskPrefix)
	}
	if ent.DueDate != nil {
		due := time.Unix(0, *ent.DueDate).UTC()
		t.DueDate = &due
	}
	if ent.Activities != "" {
		if err := sonic.UnmarshalString(ent.Activities, &t.Activities); err != nil {
			return domain.Task{}, fmt.Errorf("decode activities: %w", err)
		}
	}
	return t, nil
}

// userKey hashes the normalized email; raw emails may contain characters
// that are not allowed in table keys.
func userKey(email string) string {
	sum := sha256.Sum256([]byte(domain.NormalizeEmail(email)))
	return hex.EncodeToString(sum[:])
}

func encodeUserEntity(u domain.User) ([]byte, error) {
	key := userKey(u.Email)
	return sonic.Marshal(userEntity{
		Entity:        Entity{PartitionKey: key, RowKey: key},
		ID:            u.ID,
		Email:         u.Email,
		PasswordHash:  string(u.PasswordHash),
		CreatedAt:     u.CreatedAt.UnixNano(),
		CreatedAtType: edmInt64,
	})
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.User{}, fmt.Errorf("decode user: %w", err)
	}
	return domain.User{
		ID:           ent.ID,
		Email:        ent.Email,
		PasswordHash: []byte(ent.PasswordHash),
		CreatedAt:    time.Unix(0, ent.CreatedAt).UTC(),
	}, nil
}
