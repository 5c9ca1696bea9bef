package session

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

var cookiePaths = []string{"/", "/wp-admin/", "/wp-content/", "/wp-includes/"}

// knownCookies are WordPress and WooCommerce cookies with fixed names. They are
// expired even when the store does not report them.
var knownCookies = []string{"woocommerce_items_in_cart", "woocommerce_cart_hash"}

// CookieScope is one path/domain/secure combination a cookie may have been set under.
type CookieScope struct {
	Path   string
	Domain string
	Secure bool
}

// CookieStore is somewhere session cookies live: the backend jar or the
// visitor's browser.
type CookieStore interface {
	Host() string
	Names() []string
	Expire(name string, scope CookieScope)
}

// Scopes lists every scope a cookie for host could carry. An empty Domain
// means a host-only cookie.
func Scopes(host string) []CookieScope {
	var scopes []CookieScope
	for _, path := range cookiePaths {
		for _, domain := range domainVariants(host) {
			for _, secure := range []bool{false, true} {
				scopes = append(scopes, CookieScope{Path: path, Domain: domain, Secure: secure})
			}
		}
	}
	return scopes
}

func domainVariants(host string) []string {
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	variants := []string{""}
	if hostname == "" {
		return variants
	}
	variants = append(variants, hostname)
	if net.ParseIP(hostname) != nil {
		return variants
	}
	variants = append(variants, "."+hostname)
	if root, err := publicsuffix.EffectiveTLDPlusOne(hostname); err == nil && root != hostname {
		variants = append(variants, root, "."+root)
	}
	return variants
}

// ExpireAll expires every cookie the store reports plus the known fixed names,
// over every scope for the store's host.
func ExpireAll(store CookieStore) int {
	seen := make(map[string]struct{})
	var names []string
	for _, name := range append(store.Names(), knownCookies...) {
		if _, ok := seen[name]; ok || name == "" {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	scopes := Scopes(store.Host())
	for _, name := range names {
		for _, scope := range scopes {
			store.Expire(name, scope)
		}
	}
	return len(names)
}

// NewJar returns a cookie jar that understands public suffixes, so backend
// cookies scoped to the root domain are kept and later expired correctly.
func NewJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// JarCookies exposes the backend cookie jar held for one visitor.
type JarCookies struct {
	jar  http.CookieJar
	base *url.URL
}

func NewJarCookies(jar http.CookieJar, endpoint string) (*JarCookies, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	return &JarCookies{jar: jar, base: u}, nil
}

func (j *JarCookies) Host() string {
	return j.base.Host
}

func (j *JarCookies) Names() []string {
	var names []string
	for _, path := range cookiePaths {
		for _, scheme := range []string{"https", "http"} {
			for _, c := range j.jar.Cookies(j.url(scheme, path)) {
				names = append(names, c.Name)
			}
		}
	}
	return names
}

func (j *JarCookies) Expire(name string, scope CookieScope) {
	scheme := "http"
	if scope.Secure {
		scheme = "https"
	}
	j.jar.SetCookies(j.url(scheme, scope.Path), []*http.Cookie{{
		Name:   name,
		Path:   scope.Path,
		Domain: strings.TrimPrefix(scope.Domain, "."),
		MaxAge: -1,
		Secure: scope.Secure,
	}})
}

func (j *JarCookies) url(scheme, path string) *url.URL {
	return &url.URL{Scheme: scheme, Host: j.base.Host, Path: path}
}

// ResponseCookies expires the visitor's browser cookies through Set-Cookie
// headers on the logout response.
type ResponseCookies struct {
	w http.ResponseWriter
	r *http.Request
}

func NewResponseCookies(w http.ResponseWriter, r *http.Request) *ResponseCookies {
	return &ResponseCookies{w: w, r: r}
}

func (c *ResponseCookies) Host() string {
	return c.r.Host
}

func (c *ResponseCookies) Names() []string {
	cookies := c.r.Cookies()
	names := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		names = append(names, ck.Name)
	}
	return names
}

func (c *ResponseCookies) Expire(name string, scope CookieScope) {
	http.SetCookie(c.w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    scope.Path,
		Domain:  scope.Domain,
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
		Secure:  scope.Secure,
	})
}
