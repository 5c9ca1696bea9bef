package session

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/cache"
)

const (
	ReturnURLKey = "loginReturnUrl"
	LoginRoute   = "/login"
	AccountRoute = "/account"
)

// RememberReturnURL stores route as the post-login destination and returns the
// login route. The login and account routes themselves are never remembered,
// nor is anything but a path on this site.
func RememberReturnURL(ctx context.Context, kv cache.Store, route string) (string, error) {
	if route == LoginRoute || route == AccountRoute || !isLocalPath(route) {
		return LoginRoute, nil
	}
	if err := kv.Set(ctx, ReturnURLKey, []byte(route)); err != nil {
		return LoginRoute, err
	}
	return LoginRoute, nil
}

// TakeReturnURL returns the remembered destination, or the account route when
// none is stored, and forgets it.
func TakeReturnURL(ctx context.Context, kv cache.Store) (string, error) {
	raw, err := kv.Get(ctx, ReturnURLKey)
	if errors.Is(err, cache.ErrCacheMiss) {
		return AccountRoute, nil
	}
	if err != nil {
		return AccountRoute, err
	}
	dest := string(raw)
	if !isLocalPath(dest) {
		dest = AccountRoute
	}
	if err := kv.Delete(ctx, ReturnURLKey); err != nil {
		return dest, err
	}
	return dest, nil
}

// isLocalPath accepts an absolute path with optional query, and nothing a
// browser could resolve to another origin.
func isLocalPath(route string) bool {
	if !strings.HasPrefix(route, "/") || strings.HasPrefix(route, "//") || strings.ContainsRune(route, '\\') {
		return false
	}
	u, err := url.Parse(route)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && u.Opaque == "" && u.User == nil
}
