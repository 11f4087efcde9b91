package storage

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

// tablePartition groups every slot row in the table.
const tablePartition = "tasklist"

type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
}

// TableSlot stores each key as one Azure Table entity.
type TableSlot struct {
	table tableClient
}

// NewTableSlot connects to the named table and creates it when missing.
func NewTableSlot(ctx context.Context, connStr, table string) (*TableSlot, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	client := svc.NewClient(table)
	if _, err := client.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return nil, err
		}
	}
	return &TableSlot{table: client}, nil
}

type slotEntity struct {
	aztables.Entity
	Data string `json:"Data"`
}

func (s *TableSlot) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.table.GetEntity(ctx, tablePartition, key, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
			return nil, ErrSlotEmpty
		}
		return nil, err
	}
	return decodeSlotEntity(resp.Value)
}

func (s *TableSlot) Put(ctx context.Context, key string, value []byte) error {
	payload, err := json.Marshal(slotEntity{
		Entity: aztables.Entity{PartitionKey: tablePartition, RowKey: key},
		Data:   string(value),
	})
	if err != nil {
		return err
	}
	_, err = s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func decodeSlotEntity(data []byte) ([]byte, error) {
	var ent slotEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return nil, err
	}
	if ent.Data == "" {
		return nil, ErrSlotEmpty
	}
	return []byte(ent.Data), nil
}
