package pim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lychee-technology/pimsync"
	"go.uber.org/zap"
)

// TokenProvider obtains bearer tokens with the password grant and persists them between job steps.
type TokenProvider struct {
	cfg     pimsync.PIMConfig
	http    *http.Client
	store   pimsync.TokenStore
	retrier *Retrier
	now     func() time.Time

	mu      sync.Mutex
	current *pimsync.StoredToken
	loaded  bool
}

// NewTokenProvider creates a provider. store may be nil to keep tokens in memory only.
func NewTokenProvider(cfg pimsync.PIMConfig, httpClient *http.Client, store pimsync.TokenStore) *TokenProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &TokenProvider{
		cfg:     cfg,
		http:    httpClient,
		store:   store,
		retrier: NewRetrier(cfg.RetryLimit),
		now:     time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
}

// Token returns a valid bearer token, reusing the stored one while it is fresh.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		p.loaded = true
		if p.store != nil {
			stored, err := p.store.LoadToken(ctx)
			if err != nil {
				zap.S().Warnw("could not load stored token", "error", err)
			}
			p.current = stored
		}
	}
	if p.valid(p.current) {
		return p.current.Token, nil
	}

	var fresh *pimsync.StoredToken
	result := p.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		tok, err := p.generate(ctx)
		if err != nil {
			zap.S().Errorw("token request failed, retrying", "attempt", attempt, "error", err)
			return err
		}
		fresh = tok
		return nil
	})
	if result.LastError != nil {
		return "", pimsync.NewTokenError(result.Attempts, result.LastError)
	}

	p.current = fresh
	if p.store != nil {
		if err := p.store.SaveToken(ctx, *fresh); err != nil {
			zap.S().Warnw("could not persist token", "error", err)
		}
	}
	return fresh.Token, nil
}

// Invalidate drops the current token so the next call requests a new one.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = true
	p.current = nil
}

func (p *TokenProvider) valid(tok *pimsync.StoredToken) bool {
	if tok == nil || tok.Token == "" || tok.ServiceGeneralURL != p.cfg.BaseURL {
		return false
	}
	return p.now().UnixMilli() < tok.TokenExpiryTime-p.cfg.TokenSafetyWindow.Milliseconds()
}

func (p *TokenProvider) generate(ctx context.Context) (*pimsync.StoredToken, error) {
	payload, err := json.Marshal(map[string]string{
		"grant_type": "password",
		"username":   p.cfg.Username,
		"password":   p.cfg.Password,
	})
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + TokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response carries no access_token")
	}
	return &pimsync.StoredToken{
		Token:             tr.AccessToken,
		TokenExpiryTime:   tr.ExpiresIn*1000 + p.now().UnixMilli(),
		ServiceGeneralURL: p.cfg.BaseURL,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// CacheTokenStore keeps the token as a cache entry.
type CacheTokenStore struct {
	cache pimsync.CacheStore
	key   string
}

// DefaultTokenKey is the cache entry holding the bearer token
const DefaultTokenKey = "/access-token/AkeneoAccessToken"

// NewCacheTokenStore creates a token store over cache
func NewCacheTokenStore(cache pimsync.CacheStore) *CacheTokenStore {
	return &CacheTokenStore{cache: cache, key: DefaultTokenKey}
}

func (s *CacheTokenStore) LoadToken(ctx context.Context) (*pimsync.StoredToken, error) {
	var tok pimsync.StoredToken
	if !s.cache.Get(ctx, s.key, &tok) {
		return nil, nil
	}
	return &tok, nil
}

func (s *CacheTokenStore) SaveToken(ctx context.Context, token pimsync.StoredToken) error {
	s.cache.Set(ctx, s.key, token)
	return nil
}
