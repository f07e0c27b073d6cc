package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/totpsync/internal/observability/logger"
)

const (
	tokenSkew        = 30 * time.Second
	fallbackTokenTTL = 60 * time.Second
)

func (c *Client) tokenURL() string {
	return c.base + "/realms/" + url.PathEscape(c.cfg.AuthRealm) + "/protocol/openid-connect/token"
}

func (c *Client) tokenKey() string {
	grant := "password:" + c.cfg.Username
	if c.cfg.ClientSecret != "" {
		grant = "client_credentials"
	}
	return c.cfg.AuthRealm + "|" + c.cfg.ClientID + "|" + grant
}

// Token devuelve un access token de servicio, cacheado hasta poco antes de
// expirar. Llamadas concurrentes comparten un único request al IdP.
func (c *Client) Token(ctx context.Context) (string, error) {
	key := c.tokenKey()
	if v, ok := c.tokens.Get(key); ok {
		return v.(string), nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := c.tokens.Get(key); ok {
			return v.(string), nil
		}
		tok, ttl, err := c.fetchToken(ctx)
		if err != nil {
			return "", err
		}
		if ttl > 0 {
			c.tokens.Set(key, tok, ttl)
		}
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// InvalidateToken descarta el token cacheado (p.ej. tras un 401).
func (c *Client) InvalidateToken() { c.tokens.Delete(c.tokenKey()) }

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.ClientSecret != "" {
		form.Set("grant_type", "client_credentials")
		form.Set("client_secret", c.cfg.ClientSecret)
	} else {
		form.Set("grant_type", "password")
		form.Set("username", c.cfg.Username)
		form.Set("password", c.cfg.Password)
	}

	endpoint := c.tokenURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("admin token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.cfg.Metrics.ObserveAdminRequest("token", 0)
		return "", 0, fmt.Errorf("admin token: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	c.cfg.Metrics.ObserveAdminRequest("token", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return "", 0, &APIError{Op: "token", Method: http.MethodPost, URL: endpoint, Status: resp.StatusCode, Body: string(raw)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", 0, fmt.Errorf("admin token: decode: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, ErrNoToken
	}

	ttl := tokenTTL(tr, time.Now())
	logger.From(ctx).Debug("admin token acquired",
		logger.Layer("idp"),
		logger.Op("token"),
		logger.Duration(ttl),
	)
	return tr.AccessToken, ttl, nil
}

// tokenTTL: expires_in si viene; si no, el exp del JWT (sin verificar firma,
// sólo nos interesa cuándo dejar de reusarlo); si no, un minuto.
func tokenTTL(tr tokenResponse, now time.Time) time.Duration {
	var ttl time.Duration
	switch {
	case tr.ExpiresIn > 0:
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	default:
		ttl = fallbackTokenTTL
		claims := jwt.RegisteredClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tr.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
			ttl = claims.ExpiresAt.Sub(now)
		}
	}
	if ttl > 2*tokenSkew {
		return ttl - tokenSkew
	}
	if ttl <= 0 {
		return 0
	}
	return ttl / 2
}
