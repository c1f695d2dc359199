// Package cdn builds public and signed delivery URLs for stored objects.
// URLs are served either from a custom CDN domain fronting the storage
// backend or from the provider's own public endpoint. Image transform
// parameters ride along as query parameters, and unsigned results are
// memoized in a bounded TTL cache.
package cdn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/sean-she/photoflow-storage/logger"
	"github.com/sean-she/photoflow-storage/storage"
)

// DefaultSignedTTL bounds signed URLs when Options.ExpiresIn is zero.
const DefaultSignedTTL = 15 * time.Minute

// Config configures URL generation.
type Config struct {
	// Domain is the custom CDN domain fronting the storage backend, for
	// example "https://cdn.photoflow.dev". When empty, URLs are built
	// from the provider's canonical public URL.
	Domain string `mapstructure:"domain" json:"domain"`

	// SigningSecret is the HMAC secret for request tokens on the custom
	// domain. Required only when signed URLs are requested there.
	SigningSecret string `mapstructure:"signing_secret" json:"-"`

	// SignedTTL is the default validity of signed URLs (default 15m).
	SignedTTL time.Duration `mapstructure:"signed_ttl" json:"signed_ttl"`

	// CacheCapacity and CacheTTL tune the URL cache (defaults 1000, 5m).
	CacheCapacity int           `mapstructure:"cache_capacity" json:"cache_capacity"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
}

// ApplyDefaults fills in zero-value fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.SignedTTL <= 0 {
		c.SignedTTL = DefaultSignedTTL
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Domain == "" {
		return nil
	}
	u, err := url.Parse(c.Domain)
	if err != nil {
		return fmt.Errorf("cdn: invalid domain %q: %w", c.Domain, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("cdn: domain %q must include scheme and host", c.Domain)
	}
	return nil
}

// Options selects how one URL is generated.
type Options struct {
	// Signed requests an expiring URL: presigned by the provider, or
	// carrying an HMAC token when a custom domain is configured.
	Signed bool

	// ExpiresIn bounds a signed URL's validity. Zero falls back to
	// Config.SignedTTL. Ignored for unsigned URLs.
	ExpiresIn time.Duration

	// Transform appends image derivation parameters.
	Transform *ImageTransform

	// Query appends caller-supplied parameters ahead of the transform's,
	// in sorted key order.
	Query url.Values
}

// Generator builds URLs for one provider's objects.
type Generator struct {
	cfg       Config
	provider  storage.Provider
	presigner storage.Presigner
	cache     *Cache
	log       *logger.Logger
}

// NewGenerator creates a Generator for the given provider. Presign support
// is discovered by type assertion; providers without it can still serve
// unsigned and custom-domain URLs.
func NewGenerator(cfg Config, p storage.Provider, log *logger.Logger) (*Generator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("cdn: provider is required")
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	g := &Generator{
		cfg:      cfg,
		provider: p,
		cache:    NewCache(cfg.CacheCapacity, cfg.CacheTTL),
		log:      log.WithComponent("cdn"),
	}
	if ps, ok := p.(storage.Presigner); ok {
		g.presigner = ps
	}
	g.log.Info("cdn url generator initialized", logger.Fields(
		logger.FieldProvider, p.Name(),
		"domain", cfg.Domain,
	))
	return g, nil
}

// Cache exposes the generator's URL cache for maintenance.
func (g *Generator) Cache() *Cache { return g.cache }

// URL returns the delivery URL for key. Unsigned URLs are served from the
// cache when possible; signed URLs are minted fresh on every call.
func (g *Generator) URL(ctx context.Context, key string, opts *Options) (string, error) {
	if key == "" {
		return "", storage.TerminalError("cdn_url", key, errors.New("empty key"))
	}
	if opts == nil {
		opts = &Options{}
	}
	if !opts.Signed {
		return g.publicURL(key, opts), nil
	}
	return g.signedURL(ctx, key, opts)
}

func (g *Generator) publicURL(key string, opts *Options) string {
	ck := fingerprint(key, opts)
	if u, ok := g.cache.Get(ck); ok {
		return u
	}
	u := appendParams(g.baseURL(key), requestParams(opts))
	g.cache.Put(ck, u)
	return u
}

func (g *Generator) baseURL(key string) string {
	if g.cfg.Domain != "" {
		return strings.TrimSuffix(g.cfg.Domain, "/") + "/" + storage.EscapeKey(key)
	}
	return g.provider.PublicURL(key)
}

// signedURL mints an expiring URL. On a custom domain the object key and
// expiry are carried in an HMAC token; otherwise the provider presigns
// against its own endpoint. Transform and caller parameters are appended
// after signing so they stay outside the signature.
func (g *Generator) signedURL(ctx context.Context, key string, opts *Options) (string, error) {
	ttl := opts.ExpiresIn
	if ttl <= 0 {
		ttl = g.cfg.SignedTTL
	}

	var base string
	if g.cfg.Domain != "" {
		token, err := g.signToken(key, ttl)
		if err != nil {
			return "", storage.TerminalError("cdn_sign", key, err)
		}
		base = appendParams(g.baseURL(key), "token="+url.QueryEscape(token))
	} else {
		if g.presigner == nil {
			return "", storage.TerminalError("cdn_sign", key,
				fmt.Errorf("provider %s cannot presign urls", g.provider.Name()))
		}
		u, err := g.presigner.SignedURL(ctx, key, ttl)
		if err != nil {
			return "", err
		}
		base = u
	}
	return appendParams(base, requestParams(opts)), nil
}

// urlClaims is the token payload for signed URLs on a custom domain.
type urlClaims struct {
	gojwt.RegisteredClaims
	Key string `json:"key"`
}

func (g *Generator) signToken(key string, ttl time.Duration) (string, error) {
	if g.cfg.SigningSecret == "" {
		return "", errors.New("signing secret not configured")
	}
	now := time.Now()
	claims := &urlClaims{
		RegisteredClaims: gojwt.RegisteredClaims{
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(ttl)),
		},
		Key: key,
	}
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(g.cfg.SigningSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// requestParams renders caller query parameters followed by transform
// parameters.
func requestParams(opts *Options) string {
	custom := opts.Query.Encode()
	transform := opts.Transform.encode()
	switch {
	case custom == "":
		return transform
	case transform == "":
		return custom
	default:
		return custom + "&" + transform
	}
}

func appendParams(u, params string) string {
	if params == "" {
		return u
	}
	if strings.Contains(u, "?") {
		return u + "&" + params
	}
	return u + "?" + params
}

// fingerprint canonicalizes one request into a fixed-size cache key.
func fingerprint(key string, opts *Options) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(opts.Signed)))
	h.Write([]byte{0})
	h.Write([]byte(opts.ExpiresIn.String()))
	h.Write([]byte{0})
	h.Write([]byte(opts.Transform.encode()))
	h.Write([]byte{0})
	h.Write([]byte(opts.Query.Encode()))
	return hex.EncodeToString(h.Sum(nil))
}
