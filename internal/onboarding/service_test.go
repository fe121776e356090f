package onboarding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"Empleaido-Core/internal/activation"
	"Empleaido-Core/internal/audit"
	xerrors "Empleaido-Core/internal/errors"
	"Empleaido-Core/internal/preference"
	"Empleaido-Core/internal/skill"
)

type recordingWorkspace struct {
	mu       sync.Mutex
	prepared []string
	cleared  []string
	failures int
}

func (w *recordingWorkspace) Prepare(_ context.Context, state *activation.State, _ *skill.Catalog) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("disk full")
	}
	w.prepared = append(w.prepared, state.ActivationID)
	return nil
}

func (w *recordingWorkspace) Clear(_ context.Context, state *activation.State) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cleared = append(w.cleared, state.ActivationID)
	return nil
}

type stubRouter struct {
	calls int
}

func (r *stubRouter) Route(_ context.Context, state *activation.State, message string) (Routed, error) {
	r.calls++
	return Routed{Reply: "routed: " + message, Intent: "conversation"}, nil
}

func newTestService(store activation.Store, opts ...Option) (*Service, *audit.MemorySink) {
	sink := audit.NewMemorySink()
	reg := skill.Default()
	opts = append([]Option{WithAuditSink(sink)}, opts...)
	return NewService(store, newTestMachine(nil), reg, opts...), sink
}

func TestActivateIsIdempotentPerUserAgent(t *testing.T) {
	ws := &recordingWorkspace{}
	svc, sink := newTestService(activation.NewMemoryStore(), WithWorkspace(ws))
	ctx := context.Background()

	first, created, err := svc.Activate(ctx, "user-1", "SERA")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "sera", first.AgentID, "agent id should be resolved to the canonical identifier")
	assert.Equal(t, activation.PhaseAwakening, first.CurrentPhase)

	second, created, err := svc.Activate(ctx, "user-1", "sera")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ActivationID, second.ActivationID)
	assert.Equal(t, []string{first.ActivationID, first.ActivationID}, ws.prepared, "awakening activations rewrite bootstrap files")

	_, _, err = svc.Activate(ctx, "user-1", "ghost")
	assert.Equal(t, skill.CodeUnknownAgent, xerrors.CodeOf(err))

	events, _ := sink.List(ctx, audit.Filter{Kind: audit.KindPhaseTransition})
	require.Len(t, events, 1)
	assert.Equal(t, "spawn->awakening", events[0].Verdict)
}

func TestActivateRetriesWorkspaceAfterFailure(t *testing.T) {
	ws := &recordingWorkspace{failures: 1}
	store := activation.NewMemoryStore()
	svc, _ := newTestService(store, WithWorkspace(ws))
	ctx := context.Background()

	_, _, err := svc.Activate(ctx, "user-1", "kael")
	require.Error(t, err)
	assert.Empty(t, ws.prepared)

	state, created, err := svc.Activate(ctx, "user-1", "kael")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{state.ActivationID}, ws.prepared)

	state.CurrentPhase = activation.PhaseOperational
	require.NoError(t, store.Save(ctx, state))
	_, _, err = svc.Activate(ctx, "user-1", "kael")
	require.NoError(t, err)
	assert.Len(t, ws.prepared, 1, "operational activations keep their workspace")
}

func TestActivateTrimsUserID(t *testing.T) {
	svc, _ := newTestService(activation.NewMemoryStore())
	ctx := context.Background()

	first, created, err := svc.Activate(ctx, " user-1", "sera")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "user-1", first.UserID)

	again, created, err := svc.Activate(ctx, " user-1 ", "sera")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ActivationID, again.ActivationID)

	resp, err := svc.HandleMessage(ctx, MessageRequest{UserID: "user-1  ", AgentID: "sera", Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, first.ActivationID, resp.ActivationID)
}

func TestHandleMessageNeverCreatesState(t *testing.T) {
	store := activation.NewMemoryStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	_, err := svc.HandleMessage(ctx, MessageRequest{UserID: "user-1", AgentID: "sera", Message: "hola"})
	assert.Equal(t, activation.CodeActivationNotFound, xerrors.CodeOf(err))
	_, err = svc.HandleMessage(ctx, MessageRequest{ActivationID: "missing", Message: "hola"})
	assert.Equal(t, activation.CodeActivationNotFound, xerrors.CodeOf(err))
	_, err = store.FindByUserAgent(ctx, "user-1", "sera")
	assert.ErrorIs(t, err, activation.ErrNotFound)

	_, err = svc.HandleMessage(ctx, MessageRequest{Message: "hola"})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestHandleMessageFullOnboarding(t *testing.T) {
	ws := &recordingWorkspace{}
	router := &stubRouter{}
	var transitions []string
	svc, sink := newTestService(activation.NewMemoryStore(), WithWorkspace(ws), WithRouter(router),
		WithTransitionObserver(func(_ string, from, to activation.Phase) {
			transitions = append(transitions, string(from)+"->"+string(to))
		}))
	ctx := context.Background()

	state, _, err := svc.Activate(ctx, "user-1", "kael")
	require.NoError(t, err)

	messages := []string{"hola", "ok", "ok", "tengo un negocio", "de tú y breve", "diario", "ok", "listo", "gracias"}
	var last *MessageResponse
	for _, msg := range messages {
		last, err = svc.HandleMessage(ctx, MessageRequest{UserID: "user-1", AgentID: "kael", Message: msg})
		require.NoError(t, err, msg)
	}
	assert.Equal(t, activation.PhaseOperational, last.Phase)
	assert.Equal(t, []string{state.ActivationID}, ws.cleared)

	stored, err := svc.Get(ctx, state.ActivationID)
	require.NoError(t, err)
	assert.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.BootstrapCleared)
	assert.Equal(t, preference.WorkBusiness, stored.Preferences.WorkType)
	assert.Equal(t, preference.FormalityCasual, stored.Preferences.Formality)

	assert.Equal(t, []string{
		"spawn->awakening", "awakening->trait_disclosure", "trait_disclosure->context_learning",
		"context_learning->scope_calibration", "scope_calibration->complete", "complete->operational",
	}, transitions)
	events, _ := sink.List(ctx, audit.Filter{ActivationID: state.ActivationID, Kind: audit.KindPhaseTransition})
	assert.Len(t, events, 6)

	resp, err := svc.HandleMessage(ctx, MessageRequest{ActivationID: state.ActivationID, Message: "haz un post"})
	require.NoError(t, err)
	assert.Equal(t, "routed: haz un post", resp.Reply)
	assert.Equal(t, 1, router.calls)
	assert.False(t, resp.Transitioned)

	again, _ := svc.Get(ctx, state.ActivationID)
	assert.Equal(t, stored.Version, again.Version, "operational messages must not write the activation row")
}

// barrierStore 让前两次 Get 互相等待，模拟两个请求同时读到相同版本。
type barrierStore struct {
	*activation.MemoryStore
	mu      sync.Mutex
	gets    int
	arrived sync.WaitGroup
}

func newBarrierStore() *barrierStore {
	b := &barrierStore{MemoryStore: activation.NewMemoryStore()}
	b.arrived.Add(2)
	return b
}

func (b *barrierStore) Get(ctx context.Context, id string) (*activation.State, error) {
	state, err := b.MemoryStore.Get(ctx, id)
	b.mu.Lock()
	b.gets++
	n := b.gets
	b.mu.Unlock()
	if n <= 2 {
		b.arrived.Done()
		b.arrived.Wait()
	}
	return state, err
}

func TestConcurrentMessagesTransitionExactlyOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newBarrierStore()
	ctx := context.Background()
	created, err := store.MemoryStore.Create(ctx, "user-1", "sera")
	require.NoError(t, err)
	created.CurrentPhase = activation.PhaseTraitDisclosure
	created.MessagesInPhase = 1
	require.NoError(t, store.MemoryStore.Save(ctx, created))

	svc, sink := newTestService(store)

	var wg sync.WaitGroup
	results := make([]*MessageResponse, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.HandleMessage(ctx, MessageRequest{ActivationID: created.ActivationID, Message: "vale"})
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	transitioned := 0
	for _, r := range results {
		if r.Transitioned {
			transitioned++
		}
	}
	assert.Equal(t, 1, transitioned, "exactly one request may perform the transition")

	final, err := store.MemoryStore.Get(ctx, created.ActivationID)
	require.NoError(t, err)
	assert.Equal(t, activation.PhaseContextLearning, final.CurrentPhase)
	assert.Equal(t, 1, final.MessagesInPhase, "the losing request must observe the new phase and count once")

	events, _ := sink.List(ctx, audit.Filter{Kind: audit.KindPhaseTransition})
	assert.Len(t, events, 1)
}

type conflictStore struct {
	*activation.MemoryStore
	saves int
}

func (c *conflictStore) Save(context.Context, *activation.State) error {
	c.saves++
	return activation.ErrConflict
}

func TestConflictRetriesAreBounded(t *testing.T) {
	store := &conflictStore{MemoryStore: activation.NewMemoryStore()}
	created, _ := store.Create(context.Background(), "user-1", "nora")
	svc, _ := newTestService(store, WithRetries(3))

	_, err := svc.HandleMessage(context.Background(), MessageRequest{ActivationID: created.ActivationID, Message: "hola"})
	assert.Equal(t, activation.CodeActivationConflict, xerrors.CodeOf(err))
	assert.Equal(t, 3, store.saves)

	stored, _ := store.Get(context.Background(), created.ActivationID)
	assert.Equal(t, activation.PhaseAwakening, stored.CurrentPhase, "state must be left untouched")
}

func TestUpdatePreferencesConfirmsFields(t *testing.T) {
	svc, _ := newTestService(activation.NewMemoryStore())
	ctx := context.Background()
	state, _, _ := svc.Activate(ctx, "user-1", "lior")

	updated, err := svc.UpdatePreferences(ctx, state.ActivationID, preference.Patch{Language: preference.LanguageEnglish, Formality: "very"})
	require.NoError(t, err)
	assert.Equal(t, preference.LanguageEnglish, updated.Preferences.Language)
	assert.Empty(t, updated.Preferences.Formality, "invalid values are dropped")
	assert.Equal(t, []preference.Field{preference.FieldLanguage}, updated.Preferences.Confirmed)

	_, err = svc.UpdatePreferences(ctx, state.ActivationID, preference.Patch{})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}
