package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatrecall/internal/providers"
	"chatrecall/internal/settings"
	"chatrecall/internal/storage"
)

type fakeStore struct {
	mu       sync.Mutex
	writes   []storage.Record
	lastURI  string
	lastDB   string
	lastTerm string
	records  []storage.Record
	writeErr error
	readErr  error
	pingErr  error
	panicOn  bool
	searched int
	read     int
	ctxErr   error
}

func (f *fakeStore) Ping(_ context.Context, uri, dbName string) error {
	f.lastURI, f.lastDB = uri, dbName
	return f.pingErr
}

func (f *fakeStore) Write(ctx context.Context, uri, dbName string, rec storage.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxErr = ctx.Err()
	if f.panicOn {
		panic("driver exploded")
	}
	f.lastURI, f.lastDB = uri, dbName
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, rec)
	return nil
}

func (f *fakeStore) ReadRecent(_ context.Context, uri, dbName string, _ int) ([]storage.Record, error) {
	f.read++
	f.lastURI, f.lastDB = uri, dbName
	return f.records, f.readErr
}

func (f *fakeStore) Search(_ context.Context, uri, dbName, term string, _ int) ([]storage.Record, error) {
	f.searched++
	f.lastURI, f.lastDB, f.lastTerm = uri, dbName, term
	return f.records, f.readErr
}

type fakeProvider struct {
	res    providers.Result
	err    error
	calls  int
	system string
	user   string
}

func (p *fakeProvider) Complete(_ context.Context, system, user string) (providers.Result, error) {
	p.calls++
	p.system, p.user = system, user
	return p.res, p.err
}

// steppingClock advances by step on every read.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func newTestService(store LogStore, p *fakeProvider, env settings.EnvDefaults, step time.Duration) (*Service, *settings.Effective) {
	var seen settings.Effective
	svc := NewService(Config{
		Store: store,
		Env:   env,
		Providers: func(cfg settings.Effective) (providers.Provider, error) {
			seen = cfg
			return p, nil
		},
		Logger: zerolog.Nop(),
		Now:    steppingClock(step),
	})
	return svc, &seen
}

func TestChatSkipsPersistenceWithoutDatabase(t *testing.T) {
	store := &fakeStore{}
	p := &fakeProvider{res: providers.Result{Answer: "hi", Model: "gpt-3.5-turbo", CompletionTokens: 4, TotalTokens: 9}}
	svc, _ := newTestService(store, p, settings.EnvDefaults{OpenAIAPIKey: "sk"}, time.Second)

	resp, err := svc.Chat(context.Background(), Request{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Answer)
	assert.False(t, resp.Logged)
	assert.Nil(t, resp.Stats.DBMs)
	assert.Empty(t, store.writes)
	assert.Equal(t, settings.ProviderHosted, resp.Stats.Provider)
}

func TestChatPersistsExchange(t *testing.T) {
	store := &fakeStore{}
	p := &fakeProvider{res: providers.Result{Answer: "4", Model: "gpt-4o-mini", PromptTokens: 10, CompletionTokens: 50, TotalTokens: 60}}
	svc, seen := newTestService(store, p, settings.EnvDefaults{OpenAIAPIKey: "sk", MongoURI: "mongodb://env"}, 2*time.Second)

	session := "abc"
	resp, err := svc.Chat(context.Background(), Request{
		Message:   "2+2?",
		SessionID: &session,
		Settings: settings.Raw{
			"database":          map[string]any{"mongoDb": "custom"},
			"systemInstruction": "be brief",
		},
	})
	require.NoError(t, err)
	assert.True(t, resp.Logged)
	assert.Equal(t, "mongodb://env", store.lastURI)
	assert.Equal(t, "custom", store.lastDB)
	assert.Equal(t, "mongodb://env", seen.DatabaseURI)
	assert.Equal(t, "be brief", p.system)

	require.Len(t, store.writes, 1)
	rec := store.writes[0]
	assert.Equal(t, "2+2?", rec.Question)
	assert.Equal(t, "4", rec.Answer)
	assert.Equal(t, "gpt-4o-mini", rec.Model)
	require.NotNil(t, rec.SessionID)
	assert.Equal(t, "abc", *rec.SessionID)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())

	assert.Equal(t, int64(2000), resp.Stats.LLMMs)
	require.NotNil(t, resp.Stats.DBMs)
	assert.Equal(t, int64(2000), *resp.Stats.DBMs)
	require.NotNil(t, resp.Stats.TokensPerSecond)
	assert.Equal(t, 25.0, *resp.Stats.TokensPerSecond)
	assert.Equal(t, 60, resp.Stats.TotalTokens)
}

func TestChatWriteFailureIsNotAnError(t *testing.T) {
	store := &fakeStore{writeErr: errors.New("connection refused")}
	p := &fakeProvider{res: providers.Result{Answer: "ok"}}
	svc, _ := newTestService(store, p, settings.EnvDefaults{OpenAIAPIKey: "sk", MongoURI: "mongodb://down"}, time.Millisecond)

	resp, err := svc.Chat(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Answer)
	assert.False(t, resp.Logged)
	assert.Nil(t, resp.Stats.DBMs)
}

func TestChatWritePanicIsNotAnError(t *testing.T) {
	store := &fakeStore{panicOn: true}
	p := &fakeProvider{res: providers.Result{Answer: "ok"}}
	svc, _ := newTestService(store, p, settings.EnvDefaults{OpenAIAPIKey: "sk", MongoURI: "mongodb://x"}, time.Millisecond)

	resp, err := svc.Chat(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	assert.False(t, resp.Logged)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	store := &fakeStore{}
	p := &fakeProvider{}
	svc, _ := newTestService(store, p, settings.EnvDefaults{MongoURI: "mongodb://x"}, time.Second)

	_, err := svc.Chat(context.Background(), Request{Message: ""})
	assert.ErrorIs(t, err, ErrInvalidMessage)
	assert.Zero(t, p.calls)
	assert.Empty(t, store.writes)
}

func TestChatAcceptsWhitespaceMessage(t *testing.T) {
	store := &fakeStore{}
	p := &fakeProvider{res: providers.Result{Answer: "?"}}
	svc, _ := newTestService(store, p, settings.EnvDefaults{MongoURI: "mongodb://x"}, time.Second)

	resp, err := svc.Chat(context.Background(), Request{Message: "   "})
	require.NoError(t, err)
	assert.Equal(t, "?", resp.Answer)
	assert.Equal(t, "   ", p.user)
	require.Len(t, store.writes, 1)
	assert.Equal(t, "   ", store.writes[0].Question)
}

func TestChatWriteOutlivesCancelledRequest(t *testing.T) {
	store := &fakeStore{}
	p := &fakeProvider{res: providers.Result{Answer: "ok"}}
	svc, _ := newTestService(store, p, settings.EnvDefaults{MongoURI: "mongodb://x"}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := svc.Chat(ctx, Request{Message: "hi"})
	require.NoError(t, err)
	assert.True(t, resp.Logged)
	assert.NoError(t, store.ctxErr)
	require.Len(t, store.writes, 1)
}

func TestChatProviderFailurePropagates(t *testing.T) {
	store := &fakeStore{}
	upstream := &providers.UpstreamError{Provider: "LM Studio", StatusCode: 503, Message: "Service Unavailable"}
	p := &fakeProvider{err: upstream}
	svc, _ := newTestService(store, p, settings.EnvDefaults{MongoURI: "mongodb://x"}, time.Second)

	_, err := svc.Chat(context.Background(), Request{
		Message:  "hi",
		Settings: settings.Raw{"llm": map[string]any{"provider": "lmstudio"}},
	})
	var ue *providers.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "LM Studio API error: 503 Service Unavailable", err.Error())
	assert.Empty(t, store.writes)
}

func TestChatBuildFailurePropagates(t *testing.T) {
	svc := NewService(Config{
		Store:  &fakeStore{},
		Logger: zerolog.Nop(),
	})
	_, err := svc.Chat(context.Background(), Request{Message: "hi"})
	assert.ErrorIs(t, err, providers.ErrMissingAPIKey)
}

func TestChatPassesSystemInstructionAndFallsBackToConfiguredModel(t *testing.T) {
	p := &fakeProvider{res: providers.Result{Answer: "yo"}}
	svc, _ := newTestService(&fakeStore{}, p, settings.EnvDefaults{}, time.Second)

	resp, err := svc.Chat(context.Background(), Request{
		Message:  "hey",
		Settings: settings.Raw{"llm": map[string]any{"selectedModel": "local-model"}},
	})
	require.NoError(t, err)
	assert.Equal(t, settings.DefaultSystemInstruction, p.system)
	assert.Equal(t, "hey", p.user)
	assert.Equal(t, settings.ProviderLocal, resp.Stats.Provider)
	assert.Equal(t, settings.DefaultLocalModel, resp.Stats.Model)
	assert.Nil(t, resp.Stats.TokensPerSecond)
}

func TestChatBlankSessionIsNull(t *testing.T) {
	store := &fakeStore{}
	p := &fakeProvider{res: providers.Result{Answer: "a"}}
	svc, _ := newTestService(store, p, settings.EnvDefaults{OpenAIAPIKey: "sk", MongoURI: "mongodb://x"}, time.Second)

	blank := " "
	_, err := svc.Chat(context.Background(), Request{Message: "q", SessionID: &blank})
	require.NoError(t, err)
	require.Len(t, store.writes, 1)
	assert.Nil(t, store.writes[0].SessionID)
}
