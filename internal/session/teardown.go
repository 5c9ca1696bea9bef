package session

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cache"
	"github.com/fjod/go_cart/storefront/internal/gateway"
	"github.com/rs/zerolog"
)

// CartSnapshotKey is the persisted key mirroring the visitor's cart.
const CartSnapshotKey = "woocommerce-cart"

const DefaultLanding = "/"

type RemoteLogout interface {
	Logout(ctx context.Context) error
}

type QueryCache interface {
	ResetStore(ctx context.Context) error
}

type CartResetter interface {
	ClearWooCommerceSession()
}

// Redirect is where the visitor lands once the session is gone. Replace means
// the navigation must not leave a history entry behind.
type Redirect struct {
	Location string
	Replace  bool
}

// Teardown ends a visitor session. Every step runs regardless of how the
// previous one went, and Run always yields the signed-out redirect.
type Teardown struct {
	remote  RemoteLogout
	kv      cache.Store
	cart    CartResetter
	queries QueryCache
	cookies []CookieStore
	landing string
	logger  zerolog.Logger
	now     func() time.Time
}

func NewTeardown(remote RemoteLogout, kv cache.Store, cart CartResetter, queries QueryCache, landing string, logger zerolog.Logger, cookies ...CookieStore) *Teardown {
	if landing == "" {
		landing = DefaultLanding
	}
	return &Teardown{
		remote:  remote,
		kv:      kv,
		cart:    cart,
		queries: queries,
		cookies: cookies,
		landing: landing,
		logger:  logger,
		now:     time.Now,
	}
}

func (t *Teardown) Run(ctx context.Context) Redirect {
	t.logger.Info().Ctx(ctx).Msg("starting logout")

	ok := true
	ok = t.runStep(ctx, "remote_logout", func() error { return t.remote.Logout(ctx) }) && ok
	ok = t.runStep(ctx, "remove_session_keys", func() error { return t.removeSessionKeys(ctx) }) && ok
	ok = t.runStep(ctx, "expire_cookies", t.expireCookies) && ok
	ok = t.runStep(ctx, "reset_query_cache", func() error { return t.queries.ResetStore(ctx) }) && ok
	ok = t.runStep(ctx, "clear_storage", func() error { return t.kv.Clear(ctx) }) && ok

	if !ok {
		t.fallback(ctx)
	}

	r := Redirect{Location: t.location(), Replace: true}
	t.logger.Info().Ctx(ctx).Bool("clean", ok).Str("location", r.Location).Msg("logout finished")
	return r
}

// fallback repeats the local cleanup after a failed step. Remote logout is
// not retried.
func (t *Teardown) fallback(ctx context.Context) {
	t.logger.Warn().Ctx(ctx).Msg("logout step failed, running fallback cleanup")
	t.runStep(ctx, "fallback_remove_session_keys", func() error { return t.removeSessionKeys(ctx) })
	t.runStep(ctx, "fallback_expire_cookies", t.expireCookies)
	t.runStep(ctx, "fallback_clear_storage", func() error { return t.kv.Clear(ctx) })
	t.runStep(ctx, "fallback_reset_query_cache", func() error { return t.queries.ResetStore(ctx) })
}

func (t *Teardown) removeSessionKeys(ctx context.Context) error {
	t.cart.ClearWooCommerceSession()
	return t.kv.Delete(ctx, gateway.SessionTokenKey, CartSnapshotKey)
}

func (t *Teardown) expireCookies() error {
	for _, store := range t.cookies {
		ExpireAll(store)
	}
	return nil
}

func (t *Teardown) location() string {
	q := url.Values{}
	q.Set("logout", "success")
	q.Set("t", strconv.FormatInt(t.now().UnixMilli(), 10))
	return t.landing + "?" + q.Encode()
}

func (t *Teardown) runStep(ctx context.Context, name string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error().Ctx(ctx).Str("step", name).Interface("panic", r).Msg("logout step panicked")
			ok = false
		}
	}()
	if err := fn(); err != nil {
		t.logger.Warn().Ctx(ctx).Err(err).Str("step", name).Msg("logout step failed")
		return false
	}
	t.logger.Debug().Ctx(ctx).Str("step", name).Msg("logout step done")
	return true
}

