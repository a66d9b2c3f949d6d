package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"todosync/internal/errs"
	"todosync/internal/model"
	"todosync/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAPI scripts responses per call and can hold calls open so tests can
// observe in-flight behavior.
type fakeAPI struct {
	mu stdsync.Mutex

	loginToken string
	loginErr   error
	loginIn    model.Credentials

	registerErr error
	registerIn  model.Registration

	getOut model.Item
	getErr error

	updateOut  func(id string, f model.ItemFields) (model.Item, error)
	updateLog  []string      // ids in completion order
	updateGate chan struct{} // when set, UpdateItem blocks until it closes
	started    chan string   // when set, receives id as each update starts
}

var _ API = (*fakeAPI)(nil)

func (f *fakeAPI) Login(_ context.Context, creds model.Credentials) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginIn = creds
	return f.loginToken, f.loginErr
}

func (f *fakeAPI) Register(_ context.Context, reg model.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerIn = reg
	return f.registerErr
}

func (f *fakeAPI) GetItem(_ context.Context, id string) (model.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return model.Item{}, f.getErr
	}
	out := f.getOut
	out.ID = id
	return out, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, id string, fields model.ItemFields) (model.Item, error) {
	f.mu.Lock()
	started, gate := f.started, f.updateGate
	f.mu.Unlock()

	if started != nil {
		started <- id
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateLog = append(f.updateLog, id)
	if f.updateOut != nil {
		return f.updateOut(id, fields)
	}
	return model.Item{ID: id, Title: fields.Title, Description: fields.Description}, nil
}

func newController(api API) *Controller {
	return NewController(api, session.NewMemStore(), nil)
}

func TestFetch_AppliesAndNotifies(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{getOut: model.Item{Title: "X", Description: "Y"}}
	c := newController(api)

	var notified []model.Item
	c.Subscribe("42", func(it model.Item) { notified = append(notified, it) })

	got, err := c.Fetch(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, model.Item{ID: "42", Title: "X", Description: "Y"}, got)

	cached, ok := c.Cache().Get("42")
	require.True(t, ok)
	assert.Equal(t, got, cached)
	assert.Equal(t, []model.Item{got}, notified)
	assert.Equal(t, model.StateSuccess, c.State("42"))
}

func TestFetch_FailureLeavesCacheUntouched(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{getOut: model.Item{Title: "X"}}
	c := newController(api)

	_, err := c.Fetch(context.Background(), "42")
	require.NoError(t, err)

	api.mu.Lock()
	api.getErr = errs.New(errs.ErrServer, "")
	api.mu.Unlock()

	_, err = c.Fetch(context.Background(), "42")
	require.ErrorIs(t, err, errs.ErrServer)

	cached, ok := c.Cache().Get("42")
	require.True(t, ok)
	assert.Equal(t, "X", cached.Title, "stale value must survive a failed fetch")
	assert.Equal(t, model.StateFailed, c.State("42"))
}

func TestUpdate_CacheConvergesOnServerItem(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{
		// Server normalizes: the cache must hold this, not the input.
		updateOut: func(id string, f model.ItemFields) (model.Item, error) {
			return model.Item{ID: id, Title: f.Title + " (trimmed)", Description: f.Description}, nil
		},
	}
	c := newController(api)

	var notified []model.Item
	c.Subscribe("42", func(it model.Item) { notified = append(notified, it) })

	got, err := c.Update(context.Background(), "42", model.ItemFields{Title: "Z", Description: "Y"})
	require.NoError(t, err)
	assert.Equal(t, "Z (trimmed)", got.Title)

	cached, _ := c.Cache().Get("42")
	assert.Equal(t, got, cached)
	require.Len(t, notified, 1, "subscriber must be notified exactly once")
	assert.Equal(t, got, notified[0])
}

func TestUpdate_FailureIsIsolated(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{getOut: model.Item{Title: "X", Description: "Y"}}
	c := newController(api)

	_, err := c.Fetch(context.Background(), "42")
	require.NoError(t, err)
	before, _ := c.Cache().Get("42")

	calls := 0
	c.Subscribe("42", func(model.Item) { calls++ })

	api.mu.Lock()
	api.updateOut = func(string, model.ItemFields) (model.Item, error) {
		return model.Item{}, errs.New(errs.ErrValidation, "title too long")
	}
	api.mu.Unlock()

	_, err = c.Update(context.Background(), "42", model.ItemFields{Title: "Z"})
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, "title too long", err.Error())

	after, _ := c.Cache().Get("42")
	assert.Equal(t, before, after, "failed update must not touch the cache")
	assert.Zero(t, calls, "no notification on failure")
}

func TestUpdate_SameIDSerializedInOrder(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	started := make(chan string, 4)
	api := &fakeAPI{updateGate: gate, started: started}
	c := newController(api)

	var wg stdsync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Update(context.Background(), "42", model.ItemFields{Title: "first"})
	}()
	<-started // first update is in flight

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Update(context.Background(), "42", model.ItemFields{Title: "second"})
	}()

	// The second update must queue, not start, while the first is open.
	select {
	case id := <-started:
		t.Fatalf("second update for %q started while first was in flight", id)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	assert.Equal(t, "42", <-started)
	wg.Wait()

	assert.Equal(t, []string{"42", "42"}, api.updateLog)
	cached, _ := c.Cache().Get("42")
	assert.Equal(t, "second", cached.Title, "later update wins")
}

func TestUpdate_DistinctIDsRunConcurrently(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	started := make(chan string, 4)
	api := &fakeAPI{updateGate: gate, started: started}
	c := newController(api)

	var wg stdsync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Update(context.Background(), "1", model.ItemFields{Title: "a"})
	}()
	<-started

	// A write to another id must not wait behind the in-flight one.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.Update(context.Background(), "2", model.ItemFields{Title: "b"})
	}()
	select {
	case id := <-started:
		assert.Equal(t, "2", id)
	case <-time.After(time.Second):
		t.Fatal("update to a distinct id was blocked")
	}

	close(gate)
	wg.Wait()
}

func TestUpdate_UnsubscribedDuringFlightHearsNothing(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	started := make(chan string, 1)
	api := &fakeAPI{updateGate: gate, started: started}
	c := newController(api)

	calls := 0
	sub := c.Subscribe("42", func(model.Item) { calls++ })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Update(context.Background(), "42", model.ItemFields{Title: "Z"})
	}()
	<-started

	// Screen torn down while the write is in flight.
	c.Unsubscribe(sub)
	close(gate)
	<-done

	assert.Zero(t, calls, "revoked subscription must not see the in-flight result")
	cached, ok := c.Cache().Get("42")
	require.True(t, ok)
	assert.Equal(t, "Z", cached.Title, "the write itself still lands")
}

func TestUpdate_CanceledWhileQueued(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	started := make(chan string, 1)
	api := &fakeAPI{updateGate: gate, started: started}
	c := newController(api)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Update(context.Background(), "42", model.ItemFields{Title: "first"})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Update(ctx, "42", model.ItemFields{Title: "second"})
	require.ErrorIs(t, err, errs.ErrNetwork)

	close(gate)
	<-done

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, []string{"42"}, api.updateLog, "canceled update must never reach the server")
}

func TestLogin_SavesToken(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{loginToken: "tok1"}
	store := session.NewMemStore()
	c := NewController(api, store, nil)

	require.NoError(t, c.Login(context.Background(), model.Credentials{Username: "a", Password: "b"}))

	token, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", token)
}

func TestLogin_ValidationSkipsAPI(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{loginToken: "tok1"}
	c := newController(api)

	err := c.Login(context.Background(), model.Credentials{Username: "a"})
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, api.loginIn.Username, "API must not be called on invalid input")
}

func TestLogin_FailurePropagatesMessage(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{loginErr: errs.New(errs.ErrUnauthenticated, "Invalid credentials")}
	store := session.NewMemStore()
	c := NewController(api, store, nil)

	err := c.Login(context.Background(), model.Credentials{Username: "a", Password: "x"})
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	assert.Equal(t, "Invalid credentials", err.Error())

	_, err = store.Load(context.Background())
	assert.True(t, errors.Is(err, errs.ErrNoSession), "no token may be saved on failed login")
}

func TestRegister_DoesNotAuthenticate(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	store := session.NewMemStore()
	c := NewController(api, store, nil)

	reg := model.Registration{Username: "a", Password: "b", Email: "a@example.com"}
	require.NoError(t, c.Register(context.Background(), reg))
	assert.Equal(t, reg, api.registerIn)

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, errs.ErrNoSession, "register must not create a session")
}

func TestRegister_RejectsBadEmail(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	c := newController(api)

	err := c.Register(context.Background(), model.Registration{Username: "a", Password: "b", Email: "not-an-email"})
	require.ErrorIs(t, err, errs.ErrValidation)
	assert.Empty(t, api.registerIn.Username)
}

func TestLogout_ClearsSession(t *testing.T) {
	t.Parallel()
	store := session.NewMemStore()
	require.NoError(t, store.Save(context.Background(), "tok1"))
	c := NewController(&fakeAPI{}, store, nil)

	require.NoError(t, c.Logout(context.Background()))
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, errs.ErrNoSession)
}
