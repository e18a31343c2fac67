package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"
	"mqw.szuro.net/pkg/item"
	"mqw.szuro.net/pkg/plugin"
)

// Characters Azure Tables refuses in PartitionKey and RowKey.
var keyReplacer = strings.NewReplacer("/", "_", `\`, "_", "#", "_", "?", "_")

// MessageEntity is the row written for one item.
type MessageEntity struct {
	aztables.Entity
	Topic    string
	Section  string
	Title    string
	Message  string
	Priority int
}

// AzureTable adds one entity per item to the table addrs[0] of the account
// at the "connection" option (a SAS service URL). Rows are partitioned by
// topic.
type AzureTable struct {
	plugin.BaseService

	mu      sync.Mutex
	clients map[string]*aztables.Client
}

func (az *AzureTable) Reentrant() bool { return true }

func (az *AzureTable) client(connection, table string, retries int) (*aztables.Client, error) {
	az.mu.Lock()
	defer az.mu.Unlock()
	key := connection + "|" + table
	if c, ok := az.clients[key]; ok {
		return c, nil
	}
	opts := &aztables.ClientOptions{ClientOptions: azcore.ClientOptions{
		Retry: policy.RetryOptions{MaxRetries: int32(retries)},
	}}
	service, err := aztables.NewServiceClientWithNoCredential(connection, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", plugin.ErrInvalidAddress, err)
	}
	if az.clients == nil {
		az.clients = map[string]*aztables.Client{}
	}
	c := service.NewClient(table)
	az.clients[key] = c
	return c, nil
}

func (az *AzureTable) Deliver(ctx context.Context, it *item.Item) error {
	table, err := it.Addr(0)
	if err != nil {
		return err
	}
	connection := it.ConfigString("connection", "")
	if connection == "" {
		return fmt.Errorf("%w: azure table connection not configured", plugin.ErrInvalidAddress)
	}
	client, err := az.client(connection, table, it.ConfigInt("retries", 3))
	if err != nil {
		return err
	}

	marshalled, err := json.Marshal(newMessageEntity(it, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	if _, err := client.AddEntity(ctx, marshalled, nil); err != nil {
		return fmt.Errorf("failed to save entity to %s: %w", table, err)
	}
	return nil
}

func newMessageEntity(it *item.Item, now time.Time) MessageEntity {
	return MessageEntity{
		Entity: aztables.Entity{
			PartitionKey: keyReplacer.Replace(it.Topic),
			RowKey:       fmt.Sprintf("%d.%s", now.UnixNano(), uuid.NewString()),
		},
		Topic:    it.Topic,
		Section:  it.Section,
		Title:    it.Title,
		Message:  it.Text(),
		Priority: it.Priority,
	}
}

func (az *AzureTable) Cleanup() {
	az.mu.Lock()
	defer az.mu.Unlock()
	az.clients = nil
}
