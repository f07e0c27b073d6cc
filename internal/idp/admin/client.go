// Package admin es un cliente mínimo del Admin REST API del IdP (Keycloak):
// token de servicio, identidades, credenciales, grupos y partialImport.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/totpsync/internal/metrics"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
)

// Config del cliente. Con ClientSecret se usa client_credentials; si no,
// password grant con Username/Password.
type Config struct {
	BaseURL      string // p.ej. https://idp.example/auth
	Realm        string // realm administrado
	AuthRealm    string // realm donde vive la cuenta admin (default master)
	ClientID     string // default admin-cli
	ClientSecret string
	Username     string
	Password     string

	Timeout            time.Duration
	InsecureSkipVerify bool
	HTTPClient         *http.Client
	Metrics            *metrics.Metrics
}

// Client habla con el Admin API. Es seguro para uso concurrente.
type Client struct {
	cfg    Config
	base   string
	http   *http.Client
	tokens *gocache.Cache
	sf     singleflight.Group
}

// New valida cfg y construye el cliente.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrConfig, cfg.BaseURL)
	}
	if cfg.Realm == "" {
		return nil, fmt.Errorf("%w: realm required", ErrConfig)
	}
	if cfg.AuthRealm == "" {
		cfg.AuthRealm = "master"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "admin-cli"
	}
	if cfg.ClientSecret == "" && (cfg.Username == "" || cfg.Password == "") {
		return nil, fmt.Errorf("%w: need client secret or admin username/password", ErrConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = newHTTPClient(cfg.Timeout, cfg.InsecureSkipVerify)
	}

	return &Client{
		cfg:    cfg,
		base:   base,
		http:   hc,
		tokens: gocache.New(gocache.NoExpiration, time.Minute),
	}, nil
}

// Realm devuelve el realm administrado.
func (c *Client) Realm() string { return c.cfg.Realm }

func (c *Client) realmURL(parts ...string) string {
	var b strings.Builder
	b.WriteString(c.base)
	b.WriteString("/admin/realms/")
	b.WriteString(url.PathEscape(c.cfg.Realm))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

// do ejecuta una llamada autenticada. in se serializa como JSON si no es nil;
// out se decodifica si no es nil y hay cuerpo. Un 401 invalida el token y se
// reintenta una sola vez.
func (c *Client) do(ctx context.Context, op, method, endpoint string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("admin %s: encode body: %w", op, err)
		}
		payload = b
	}

	err := c.once(ctx, op, method, endpoint, payload, out)
	if StatusOf(err) == http.StatusUnauthorized {
		c.InvalidateToken()
		err = c.once(ctx, op, method, endpoint, payload, out)
	}
	return err
}

func (c *Client) once(ctx context.Context, op, method, endpoint string, payload []byte, out any) error {
	log := logger.From(ctx).With(logger.Layer("idp"), logger.Op(op))

	token, err := c.Token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("admin %s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.cfg.Metrics.ObserveAdminRequest(op, 0)
		log.Debug("admin request failed", logger.Method(method), logger.URL(endpoint), logger.Err(err))
		return fmt.Errorf("admin %s: %s %s: %w", op, method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	c.cfg.Metrics.ObserveAdminRequest(op, resp.StatusCode)
	log.Debug("admin request",
		logger.Method(method),
		logger.URL(endpoint),
		logger.Status(resp.StatusCode),
		logger.Duration(time.Since(start)),
	)

	if resp.StatusCode/100 != 2 {
		return &APIError{Op: op, Method: method, URL: endpoint, Status: resp.StatusCode, Body: string(raw)}
	}
	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("admin %s: decode response: %w", op, err)
		}
	}
	return nil
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
