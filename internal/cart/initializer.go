package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/gateway"
	"github.com/rs/zerolog"
)

type CartFetcher interface {
	FetchCart(ctx context.Context, policy gateway.FetchPolicy) (*gateway.CartData, error)
}

// Initializer keeps the Store in line with the remote cart. It fetches on
// (re)connect and on request; it never polls and never retries on its own.
type Initializer struct {
	store   *Store
	fetcher CartFetcher
	logger  zerolog.Logger
	timeout time.Duration

	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewInitializer(store *Store, fetcher CartFetcher, logger zerolog.Logger, timeout time.Duration) *Initializer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Initializer{
		store:   store,
		fetcher: fetcher,
		logger:  logger,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start issues the mount-time fetch in the background. Later calls do nothing.
func (i *Initializer) Start() {
	i.once.Do(func() {
		i.wg.Add(1)
		go func() {
			defer i.wg.Done()
			_ = i.Refresh(i.ctx)
		}()
	})
}

// Close cancels a pending mount-time fetch and waits for it to return.
func (i *Initializer) Close() {
	i.cancel()
	i.wg.Wait()
}

// Refresh fetches the cart and syncs whatever usable cart the response holds,
// partial or not. A response that says the cart has no lines clears the
// store; without any data the store is left as it was.
func (i *Initializer) Refresh(ctx context.Context) error {
	data, err := i.fetch(ctx)
	if err != nil {
		i.logFetchError(ctx, "cart fetch failed", err)
	}
	switch c := gateway.FormatCart(data); {
	case c != nil:
		i.store.SyncWithWooCommerce(c)
	case data.HasEmptyCart():
		i.store.ClearWooCommerceSession()
	}
	return err
}

// Reconcile fetches the cart after a checkout attempt. A response whose item
// list is empty or absent clears the store; a transport failure with no data
// leaves it untouched.
func (i *Initializer) Reconcile(ctx context.Context) error {
	data, err := i.fetch(ctx)
	if err != nil {
		i.logFetchError(ctx, "cart reconcile failed", err)
	}
	switch c := gateway.FormatCart(data); {
	case c != nil:
		i.store.SyncWithWooCommerce(c)
	case data.HasEmptyCart(), data == nil && err == nil:
		i.store.ClearWooCommerceSession()
	}
	return err
}

func (i *Initializer) fetch(ctx context.Context) (*gateway.CartData, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}
	return i.fetcher.FetchCart(ctx, gateway.NetworkOnly)
}

func (i *Initializer) logFetchError(ctx context.Context, msg string, err error) {
	event := i.logger.Error().Ctx(ctx).Err(err)
	var netErr *gateway.NetworkError
	if errors.As(err, &netErr) {
		event = event.Int("status_code", netErr.StatusCode).Str("error_body", netErr.Body)
	}
	var gqlErrs gateway.GraphQLErrors
	if errors.As(err, &gqlErrs) {
		event = event.Str("code", gqlErrs.Code())
	}
	event.Msg(msg)
}
