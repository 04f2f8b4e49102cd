package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrecall/internal/settings"
	"chatrecall/internal/storage"
)

func TestHistoryUnconfiguredIsEmpty(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(store, &fakeProvider{}, settings.EnvDefaults{}, time.Second)

	logs, err := svc.History(context.Background(), HistoryRequest{Search: "x"})
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
	assert.Zero(t, store.read+store.searched)
}

func TestHistoryUsesSettingsOverEnv(t *testing.T) {
	store := &fakeStore{records: []storage.Record{{Question: "q"}}}
	svc, _ := newTestService(store, &fakeProvider{}, settings.EnvDefaults{MongoURI: "mongodb://env", MongoDB: "envdb"}, time.Second)

	logs, err := svc.History(context.Background(), HistoryRequest{
		Settings: settings.Raw{"database": map[string]any{"mongoUri": "mongodb://req"}},
	})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, store.read)
	assert.Equal(t, "mongodb://req", store.lastURI)
	assert.Equal(t, "envdb", store.lastDB)
}

func TestHistorySearchTrimsTerm(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(store, &fakeProvider{}, settings.EnvDefaults{MongoURI: "mongodb://env"}, time.Second)

	logs, err := svc.History(context.Background(), HistoryRequest{Search: "  hello "})
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Equal(t, 1, store.searched)
	assert.Equal(t, "hello", store.lastTerm)

	_, err = svc.History(context.Background(), HistoryRequest{Search: "   "})
	require.NoError(t, err)
	assert.Equal(t, 1, store.read)
}

func TestHistoryReadFailureDegrades(t *testing.T) {
	store := &fakeStore{readErr: storage.ErrRead}
	svc, _ := newTestService(store, &fakeProvider{}, settings.EnvDefaults{MongoURI: "mongodb://env"}, time.Second)

	logs, err := svc.History(context.Background(), HistoryRequest{})
	assert.ErrorIs(t, err, storage.ErrRead)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestTestConnection(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(store, &fakeProvider{}, settings.EnvDefaults{}, time.Second)

	assert.ErrorIs(t, svc.TestConnection(context.Background(), "  ", "db"), ErrMissingURI)

	require.NoError(t, svc.TestConnection(context.Background(), " mongodb://h ", " app "))
	assert.Equal(t, "mongodb://h", store.lastURI)
	assert.Equal(t, "app", store.lastDB)

	store.pingErr = errors.New("server selection timeout")
	assert.EqualError(t, svc.TestConnection(context.Background(), "mongodb://h", ""), "server selection timeout")
}
