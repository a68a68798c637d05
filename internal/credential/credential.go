// Package credential provides the token-provider abstraction named in
// the design notes: two variants {file, cache}, one caller-visible
// Get(ctx) method, and a mutex-guarded Refresh. The file is always the
// source of truth; Dhan's /RenewToken is deliberately not wired, per
// the open-question decision to treat tokens as externally rotated.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrNoToken is returned when neither the file nor the cache fallback
// can produce a token.
var ErrNoToken = errors.New("credential: no token available")

// Token is the access credential the feed transports attach to their
// connection URL.
type Token struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
	ClientID    string    `json:"client_id"`
}

// Provider is the single caller-visible interface both variants
// satisfy.
type Provider interface {
	Get(ctx context.Context) (Token, error)
}

// FileProvider reads the token from a well-known path at every Get
// call (plain token file, or a JSON {access_token, expiry, client_id}
// document). It is the source of truth.
type FileProvider struct {
	path string

	mu    sync.Mutex
	cache Token
	stamp time.Time
}

// NewFileProvider builds a FileProvider reading path.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path}
}

// Get reads the token file. A bare string file (no surrounding JSON)
// is treated as the raw access token with no expiry tracked.
func (f *FileProvider) Get(ctx context.Context) (Token, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return Token{}, fmt.Errorf("%w: read %s: %v", ErrNoToken, f.path, err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		tok = Token{AccessToken: trimToken(data)}
	}

	f.mu.Lock()
	f.cache = tok
	f.stamp = time.Now()
	f.mu.Unlock()

	return tok, nil
}

// Refresh re-reads the file under a mutex, discarding any prior cached
// value. There is no network call here: refresh means "re-read the
// externally rotated file," not "request a new token."
func (f *FileProvider) Refresh(ctx context.Context) (Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return Token{}, fmt.Errorf("%w: read %s: %v", ErrNoToken, f.path, err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		tok = Token{AccessToken: trimToken(data)}
	}
	f.cache = tok
	f.stamp = time.Now()
	return tok, nil
}

func trimToken(data []byte) string {
	s := string(data)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

// CacheProvider wraps a Provider (normally a FileProvider) with a
// last-known-good value served when the underlying read fails, used so
// a transient filesystem hiccup does not tear down an otherwise
// healthy connection.
type CacheProvider struct {
	mu       sync.Mutex
	underlying Provider
	last     Token
	hasLast  bool
}

// NewCacheProvider wraps underlying.
func NewCacheProvider(underlying Provider) *CacheProvider {
	return &CacheProvider{underlying: underlying}
}

// Get tries the underlying provider first, falling back to the last
// successfully read token if the underlying read fails.
func (c *CacheProvider) Get(ctx context.Context) (Token, error) {
	tok, err := c.underlying.Get(ctx)
	if err == nil {
		c.mu.Lock()
		c.last = tok
		c.hasLast = true
		c.mu.Unlock()
		return tok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasLast {
		return c.last, nil
	}
	return Token{}, err
}
