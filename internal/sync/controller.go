// Package sync orchestrates reads and writes of to-do items: it calls the
// API, applies the server's authoritative responses to the cache, and
// notifies subscribers. It is the only component that mutates the cache or
// drives the registry.
package sync

import (
	"context"
	stdsync "sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"todosync/internal/cache"
	"todosync/internal/errs"
	"todosync/internal/model"
	"todosync/internal/session"
	"todosync/internal/watch"
)

// API is the remote surface the controller drives. *api.Client implements it.
type API interface {
	Login(ctx context.Context, creds model.Credentials) (string, error)
	Register(ctx context.Context, reg model.Registration) error
	GetItem(ctx context.Context, id string) (model.Item, error)
	UpdateItem(ctx context.Context, id string, fields model.ItemFields) (model.Item, error)
}

// Controller is the shared mutation/query surface screens talk to. An update
// performed through one screen becomes visible to every subscriber of the
// same item synchronously with the cache write, without a re-fetch.
//
// Write policy: concurrent updates to the same id are queued and run
// strictly in issuance order (never rejected, never dropped). Updates to
// distinct ids proceed independently.
type Controller struct {
	api      API
	cache    *cache.Cache
	registry *watch.Registry
	sessions session.Store
	validate *validator.Validate
	log      *zap.Logger

	writes *gate

	// applyMu makes each cache-put + notify pair atomic so no subscriber
	// observes a window where cache and notification disagree.
	applyMu stdsync.Mutex

	stateMu stdsync.Mutex
	states  map[string]model.ItemState
}

// NewController wires the controller. A nil logger is replaced with a nop.
func NewController(api API, sessions session.Store, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		api:      api,
		cache:    cache.New(),
		registry: watch.NewRegistry(),
		sessions: sessions,
		validate: validator.New(),
		log:      log,
		writes:   newGate(),
		states:   make(map[string]model.ItemState),
	}
}

// Cache exposes the item cache for read-only use by screens.
func (c *Controller) Cache() *cache.Cache { return c.cache }

// State reports the current fetch/update state of id.
func (c *Controller) State(id string) model.ItemState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.states[id]
}

func (c *Controller) setState(id string, s model.ItemState) {
	c.stateMu.Lock()
	c.states[id] = s
	c.stateMu.Unlock()
}

// Subscribe registers cb for mutations of itemID.
func (c *Controller) Subscribe(itemID string, cb watch.Callback) *watch.Subscription {
	return c.registry.Subscribe(itemID, cb)
}

// Unsubscribe revokes a subscription; idempotent.
func (c *Controller) Unsubscribe(sub *watch.Subscription) {
	c.registry.Unsubscribe(sub)
}

// Fetch loads id from the server, applies it to the cache, and notifies
// subscribers. On failure the cache keeps its previous value: stale but
// consistent beats corrupt.
func (c *Controller) Fetch(ctx context.Context, id string) (model.Item, error) {
	c.setState(id, model.StateLoading)
	item, err := c.api.GetItem(ctx, id)
	if err != nil {
		c.setState(id, model.StateFailed)
		c.log.Debug("fetch failed", zap.String("id", id), zap.Error(err))
		return model.Item{}, err
	}
	c.apply(item)
	c.setState(id, model.StateSuccess)
	return item, nil
}

// Update submits fields for id and applies the server's returned item (not
// the submitted fields) to the cache, so every subscriber converges on the
// server's canonical value. A failed update leaves the cache untouched and
// surfaces the error to the initiating caller only.
func (c *Controller) Update(ctx context.Context, id string, fields model.ItemFields) (model.Item, error) {
	release, err := c.writes.enter(ctx, id)
	if err != nil {
		return model.Item{}, errs.New(errs.ErrNetwork, "")
	}
	defer release()

	c.setState(id, model.StateLoading)
	item, err := c.api.UpdateItem(ctx, id, fields)
	if err != nil {
		c.setState(id, model.StateFailed)
		c.log.Debug("update failed", zap.String("id", id), zap.Error(err))
		return model.Item{}, err
	}
	c.apply(item)
	c.setState(id, model.StateSuccess)
	c.log.Debug("update applied", zap.String("id", id))
	return item, nil
}

// apply writes item to the cache and notifies subscribers as one atomic step.
func (c *Controller) apply(item model.Item) {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()
	c.cache.Put(item)
	c.registry.Notify(item.ID, item)
}

// Login validates credentials, exchanges them for a token, and saves it.
func (c *Controller) Login(ctx context.Context, creds model.Credentials) error {
	if err := c.validate.Struct(creds); err != nil {
		return errs.New(errs.ErrValidation, "username and password are required")
	}
	token, err := c.api.Login(ctx, creds)
	if err != nil {
		return err
	}
	if err := c.sessions.Save(ctx, token); err != nil {
		c.log.Warn("token save failed", zap.Error(err))
		return err
	}
	c.log.Info("logged in", zap.String("username", creds.Username))
	return nil
}

// Register creates an account. It does not authenticate; the caller logs in
// explicitly afterwards.
func (c *Controller) Register(ctx context.Context, reg model.Registration) error {
	if err := c.validate.Struct(reg); err != nil {
		msg := "username, password and a valid email are required"
		return errs.New(errs.ErrValidation, msg)
	}
	return c.api.Register(ctx, reg)
}

// Logout clears the stored session token.
func (c *Controller) Logout(ctx context.Context) error {
	return c.sessions.Clear(ctx)
}
