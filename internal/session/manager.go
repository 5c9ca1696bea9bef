package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/checkout"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/gateway"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

const (
	snapshotTimeout = 2 * time.Second

	DefaultIdleTimeout = 30 * time.Minute
	DefaultMaxSessions = 10000
)

// Visitor is everything the storefront holds for one browser session.
type Visitor struct {
	ID          string
	Cart        *cart.Store
	Initializer *cart.Initializer
	Checkout    *checkout.Orchestrator
	Gateway     *gateway.Client
	State       cache.Store

	jar         *JarCookies
	unsubscribe func()
	logger      zerolog.Logger
	// persisted is set when the visitor had a WooCommerce session token or a
	// cart snapshot in Redis at build time.
	persisted bool
	closeOnce sync.Once
}

func (v *Visitor) close() {
	v.closeOnce.Do(func() {
		v.unsubscribe()
		v.Checkout.Close()
		v.Initializer.Close()
	})
}

type ManagerConfig struct {
	Redis          *redis.Client
	Endpoint       string
	Transport      http.RoundTripper
	Breaker        *gobreaker.CircuitBreaker[*gateway.Envelope]
	GatewayTimeout time.Duration
	QueryCacheTTL  time.Duration
	RefetchDelay   time.Duration
	Defaults       checkout.Defaults
	Ledger         checkout.Ledger
	Publisher      checkout.EventPublisher
	LogoutLanding  string
	// IdleTimeout unloads a visitor that has not been opened for this long.
	// Its Redis state stays, so the next request rebuilds it.
	IdleTimeout time.Duration
	// MaxSessions caps the visitors held in memory; the least recently used
	// one is unloaded first.
	MaxSessions int
	Logger      zerolog.Logger
}

// Manager owns the live visitor sessions keyed by session id.
type Manager struct {
	cfg ManagerConfig

	visitors *expirable.LRU[string, *Visitor]
	sfg      singleflight.Group
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	m := &Manager{cfg: cfg}
	m.visitors = expirable.NewLRU[string, *Visitor](cfg.MaxSessions, m.unload, cfg.IdleTimeout)
	return m
}

// unload runs under the LRU lock for every visitor leaving the registry.
func (m *Manager) unload(id string, v *Visitor) {
	m.cfg.Logger.Debug().Str("session_id", id).Msg("unloading visitor")
	go v.close()
}

// Open returns the visitor for id, building it on first use. A new visitor is
// hydrated from its persisted cart snapshot; only a visitor with persisted
// state starts a mount-time fetch, since a brand-new one has no remote cart.
func (m *Manager) Open(ctx context.Context, id string) (*Visitor, error) {
	if v := m.lookup(id); v != nil {
		m.visitors.Add(id, v)
		return v, nil
	}
	res, err, _ := m.sfg.Do(id, func() (interface{}, error) {
		if v := m.lookup(id); v != nil {
			return v, nil
		}
		v, err := m.build(ctx, id)
		if err != nil {
			return nil, err
		}
		// An expired entry not yet swept would be overwritten without closing.
		m.visitors.Remove(id)
		m.visitors.Add(id, v)
		if v.persisted {
			v.Initializer.Start()
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*Visitor), nil
}

// End tears the visitor session down and forgets it. browser, when set,
// receives the cookie expirations for the visitor's own cookies.
func (m *Manager) End(ctx context.Context, id string, browser CookieStore) Redirect {
	ctx = context.WithoutCancel(ctx)
	v := m.lookup(id)
	var err error
	if v == nil {
		// Not loaded in this process; tear down its persisted state anyway.
		v, err = m.build(ctx, id)
	}
	if err != nil {
		m.cfg.Logger.Error().Ctx(ctx).Err(err).Str("session_id", id).Msg("open session for logout")
		td := NewTeardown(noRemote{}, noStore{}, noCart{}, noRemote{}, m.cfg.LogoutLanding, m.cfg.Logger, cookieStores(browser)...)
		return td.Run(ctx)
	}

	v.close()
	td := NewTeardown(v.Gateway, v.State, v.Cart, v.Gateway, m.cfg.LogoutLanding, v.logger,
		append(cookieStores(browser), v.jar)...)
	r := td.Run(ctx)

	if cur, ok := m.visitors.Peek(id); ok && cur == v {
		m.visitors.Remove(id)
	}
	return r
}

// Close stops background work of every live visitor.
func (m *Manager) Close() {
	visitors := m.visitors.Values()
	m.visitors.Purge()
	for _, v := range visitors {
		v.close()
	}
}

func (m *Manager) Len() int {
	return m.visitors.Len()
}

func (m *Manager) lookup(id string) *Visitor {
	v, ok := m.visitors.Get(id)
	if !ok {
		return nil
	}
	return v
}

func (m *Manager) build(ctx context.Context, id string) (*Visitor, error) {
	logger := m.cfg.Logger.With().Str("session_id", id).Logger()
	state := cache.NewRedisStore(m.cfg.Redis, "storefront:"+id+":kv")
	queries := cache.NewRedisCache(m.cfg.Redis, "storefront:"+id+":gql", m.cfg.QueryCacheTTL)

	jar, err := NewJar()
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	jarCookies, err := NewJarCookies(jar, m.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	opts := []gateway.Option{
		gateway.WithSessionState(state),
		gateway.WithQueryCache(queries),
		gateway.WithLogger(logger),
	}
	if m.cfg.Breaker != nil {
		opts = append(opts, gateway.WithBreaker(m.cfg.Breaker))
	}
	gw, err := gateway.NewClient(m.cfg.Endpoint, &http.Client{
		Transport: m.cfg.Transport,
		Jar:       jar,
		Timeout:   m.cfg.GatewayTimeout,
	}, opts...)
	if err != nil {
		return nil, err
	}

	store := cart.NewStore()
	persisted := hydrate(ctx, state, store, logger) || hasSessionToken(ctx, state, logger)
	unsubscribe := store.Subscribe(persistSnapshot(state, logger))

	initializer := cart.NewInitializer(store, gw, logger, m.cfg.GatewayTimeout)

	checkoutOpts := []checkout.Option{
		checkout.WithLogger(logger),
		checkout.WithSessionID(id),
		checkout.WithDefaults(m.cfg.Defaults),
	}
	if m.cfg.RefetchDelay > 0 {
		checkoutOpts = append(checkoutOpts, checkout.WithRefetchDelay(m.cfg.RefetchDelay))
	}
	if m.cfg.GatewayTimeout > 0 {
		checkoutOpts = append(checkoutOpts, checkout.WithTimeout(m.cfg.GatewayTimeout))
	}
	if m.cfg.Ledger != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithLedger(m.cfg.Ledger))
	}
	if m.cfg.Publisher != nil {
		checkoutOpts = append(checkoutOpts, checkout.WithPublisher(m.cfg.Publisher))
	}

	return &Visitor{
		ID:          id,
		Cart:        store,
		Initializer: initializer,
		Checkout:    checkout.NewOrchestrator(store, gw, initializer, checkoutOpts...),
		Gateway:     gw,
		State:       state,
		jar:         jarCookies,
		unsubscribe: unsubscribe,
		logger:      logger,
		persisted:   persisted,
	}, nil
}

// hydrate loads the persisted cart snapshot into store and reports whether
// one was found.
func hydrate(ctx context.Context, state cache.Store, store *cart.Store, logger zerolog.Logger) bool {
	raw, err := state.Get(ctx, CartSnapshotKey)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn().Ctx(ctx).Err(err).Msg("read cart snapshot")
		}
		return false
	}
	var c domain.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		logger.Warn().Ctx(ctx).Err(err).Msg("decode cart snapshot")
		return true
	}
	store.SyncWithWooCommerce(&c)
	return true
}

func hasSessionToken(ctx context.Context, state cache.Store, logger zerolog.Logger) bool {
	_, err := state.Get(ctx, gateway.SessionTokenKey)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.Warn().Ctx(ctx).Err(err).Msg("read session token")
	}
	return false
}

func persistSnapshot(state cache.Store, logger zerolog.Logger) func(*domain.Cart) {
	return func(c *domain.Cart) {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()
		if c == nil {
			if err := state.Delete(ctx, CartSnapshotKey); err != nil {
				logger.Warn().Err(err).Msg("drop cart snapshot")
			}
			return
		}
		raw, err := json.Marshal(c)
		if err != nil {
			logger.Warn().Err(err).Msg("encode cart snapshot")
			return
		}
		if err := state.Set(ctx, CartSnapshotKey, raw); err != nil {
			logger.Warn().Err(err).Msg("write cart snapshot")
		}
	}
}

func cookieStores(browser CookieStore) []CookieStore {
	if browser == nil {
		return nil
	}
	return []CookieStore{browser}
}

type noRemote struct{}

func (noRemote) Logout(context.Context) error     { return nil }
func (noRemote) ResetStore(context.Context) error { return nil }

type noStore struct{}

func (noStore) Get(context.Context, string) ([]byte, error) { return nil, cache.ErrCacheMiss }
func (noStore) Set(context.Context, string, []byte) error   { return nil }
func (noStore) Delete(context.Context, ...string) error     { return nil }
func (noStore) Clear(context.Context) error                 { return nil }

type noCart struct{}

func (noCart) ClearWooCommerceSession() {}

// ReconcileCart refetches the cart of a loaded visitor. It reports false when
// id is not held by this manager.
func (m *Manager) ReconcileCart(ctx context.Context, id string) (bool, error) {
	v := m.lookup(id)
	if v == nil {
		return false, nil
	}
	return true, v.Initializer.Reconcile(ctx)
}
