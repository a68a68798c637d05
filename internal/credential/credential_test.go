package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileProvider_plainToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	if err := os.WriteFile(path, []byte("abc123\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewFileProvider(path)
	tok, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok.AccessToken != "abc123" {
		t.Errorf("AccessToken = %q, want %q", tok.AccessToken, "abc123")
	}
}

func TestFileProvider_jsonToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token.json")
	body := `{"access_token":"xyz","client_id":"C1"}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	p := NewFileProvider(path)
	tok, err := p.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok.AccessToken != "xyz" || tok.ClientID != "C1" {
		t.Errorf("tok = %+v, want access_token=xyz client_id=C1", tok)
	}
}

func TestFileProvider_missing(t *testing.T) {
	p := NewFileProvider("/nonexistent/path/token")
	_, err := p.Get(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}

type flakyProvider struct {
	calls int
	good  Token
}

func (f *flakyProvider) Get(ctx context.Context) (Token, error) {
	f.calls++
	if f.calls == 1 {
		return f.good, nil
	}
	return Token{}, errors.New("transient read failure")
}

func TestCacheProvider_fallsBackToLastGood(t *testing.T) {
	flaky := &flakyProvider{good: Token{AccessToken: "first"}}
	cp := NewCacheProvider(flaky)

	tok, err := cp.Get(context.Background())
	if err != nil || tok.AccessToken != "first" {
		t.Fatalf("first Get = %+v, %v", tok, err)
	}

	tok, err = cp.Get(context.Background())
	if err != nil {
		t.Fatalf("expected fallback to succeed, got error: %v", err)
	}
	if tok.AccessToken != "first" {
		t.Errorf("AccessToken = %q, want fallback to last good %q", tok.AccessToken, "first")
	}
}

func TestCacheProvider_noFallbackAvailable(t *testing.T) {
	flaky := &flakyProvider{}
	flaky.calls = 1 // force first call to also fail
	cp := NewCacheProvider(flaky)

	_, err := cp.Get(context.Background())
	if err == nil {
		t.Fatal("expected error with no prior successful read to fall back to")
	}
}
