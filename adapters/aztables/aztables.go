// Package aztables stores reservo aggregate state in Azure Table Storage.
//
// Each aggregate is one entity: the partition key is the aggregate key and
// the row key is fixed, so reads are point lookups.
package aztables

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/AshkanYarmoradi/go-reservo"
)

// Defaults for the table and row key.
const (
	DefaultTable  = "ReservoStates"
	DefaultRowKey = "state"
)

// ErrEmptyKey is returned when setting state under an empty key.
var ErrEmptyKey = errors.New("reservo/aztables: empty aggregate key")

// Table is the subset of *aztables.Client used by the store.
type Table interface {
	GetEntity(ctx context.Context, partitionKey string, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey string, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// NewTable opens a table client from a storage connection string.
func NewTable(connStr, name string) (*aztables.Client, error) {
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
		return nil, fmt.Errorf("reservo/aztables: open service: %w", err)
	}
	return svc.NewClient(name), nil
}

// stateEntity is the table row. Data holds the encoded state, as text for
// JSON and base64 otherwise.
type stateEntity struct {
	aztables.Entity
	Codec string `json:"Codec"`
	Data  string `json:"Data"`
}

var _ reservo.StateStore = (*StateStore)(nil)

// StateStore keeps aggregate state in an Azure table.
type StateStore struct {
	table  Table
	codec  reservo.Codec
	rowKey string
}

// Option configures a StateStore.
type Option func(*StateStore)

// WithCodec sets the state codec.
func WithCodec(codec reservo.Codec) Option {
	return func(s *StateStore) {
		s.codec = codec
	}
}

// WithRowKey sets the row key used for state entities.
func WithRowKey(rowKey string) Option {
	return func(s *StateStore) {
		s.rowKey = rowKey
	}
}

// NewStateStore creates a StateStore on table.
func NewStateStore(table Table, opts ...Option) *StateStore {
	s := &StateStore{
		table:  table,
		codec:  reservo.NewJSONCodec(),
		rowKey: DefaultRowKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}

// Get returns the state at key, or an empty map. An entity that no longer
// decodes is returned as a map carrying the error marker.
func (s *StateStore) Get(ctx context.Context, key string) (reservo.StateMap, error) {
	resp, err := s.table.GetEntity(ctx, key, s.rowKey, nil)
	if isNotFound(err) {
		return reservo.EmptyState(), nil
	}
	if err != nil {
		return reservo.StateMap{}, fmt.Errorf("reservo/aztables: get %s: %w", key, err)
	}

	var ent stateEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return reservo.ErrorState(err.Error()), nil
	}
	if ent.Codec != s.codec.Name() {
		return reservo.ErrorState(fmt.Sprintf("state %s was written with codec %s, store uses %s", key, ent.Codec, s.codec.Name())), nil
	}

	data, err := s.decodeText(ent.Data)
	if err != nil {
		return reservo.ErrorState(err.Error()), nil
	}
	state, err := s.codec.DecodeState(data)
	if err != nil {
		return reservo.ErrorState(err.Error()), nil
	}
	return state, nil
}

// Set upserts the state at key and returns it.
func (s *StateStore) Set(ctx context.Context, key string, state reservo.StateMap) (reservo.StateMap, error) {
	if key == "" {
		return reservo.StateMap{}, ErrEmptyKey
	}

	data, err := s.codec.EncodeState(state)
	if err != nil {
		return reservo.StateMap{}, err
	}

	ent := stateEntity{
		Entity: aztables.Entity{PartitionKey: key, RowKey: s.rowKey},
		Codec:  s.codec.Name(),
		Data:   s.encodeText(data),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return reservo.StateMap{}, fmt.Errorf("reservo/aztables: encode entity: %w", err)
	}

	mode := aztables.UpdateModeReplace
	if _, err := s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: mode}); err != nil {
		return reservo.StateMap{}, fmt.Errorf("reservo/aztables: upsert %s: %w", key, err)
	}
	return state, nil
}

// Delete removes the state at key. Deleting a missing key is not an error.
func (s *StateStore) Delete(ctx context.Context, key string) error {
	_, err := s.table.DeleteEntity(ctx, key, s.rowKey, nil)
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("reservo/aztables: delete %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) encodeText(data []byte) string {
	if s.codec.Name() == "json" {
		return string(data)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func (s *StateStore) decodeText(text string) ([]byte, error) {
	if s.codec.Name() == "json" {
		return []byte(text), nil
	}
	return base64.StdEncoding.DecodeString(text)
}
