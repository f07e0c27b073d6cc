package admin

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"
)

const gockBase = "https://idp.example"

func gockClient(t *testing.T) *Client {
	t.Helper()
	hc := &http.Client{}
	gock.InterceptClient(hc)
	t.Cleanup(func() {
		gock.RestoreClient(hc)
		gock.Off()
	})
	c, err := New(Config{
		BaseURL:    gockBase + "/auth",
		Realm:      "tamshai-corp",
		Username:   "admin",
		Password:   "admin-pass",
		HTTPClient: hc,
	})
	require.NoError(t, err)
	return c
}

func TestTokenTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signed := func(exp time.Time) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		}).SignedString([]byte("k"))
		require.NoError(t, err)
		return s
	}

	require.Equal(t, 270*time.Second, tokenTTL(tokenResponse{AccessToken: "x", ExpiresIn: 300}, now))
	require.Equal(t, 90*time.Second, tokenTTL(tokenResponse{AccessToken: signed(now.Add(2 * time.Minute))}, now))
	require.Equal(t, 30*time.Second, tokenTTL(tokenResponse{AccessToken: "opaque"}, now))
	require.Zero(t, tokenTTL(tokenResponse{AccessToken: signed(now.Add(-time.Minute))}, now))
}

func TestToken_PasswordGrantForm(t *testing.T) {
	c := gockClient(t)

	gock.New(gockBase).
		Post("/auth/realms/master/protocol/openid-connect/token").
		MatchType("url").
		BodyString(`client_id=admin-cli&grant_type=password&password=admin-pass&username=admin`).
		Reply(http.StatusOK).
		JSON(map[string]any{"access_token": "tok-1", "expires_in": 300})

	tok, err := c.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", tok)
	require.True(t, gock.IsDone())
}

func TestDo_RetriesOnceAfter401(t *testing.T) {
	c := gockClient(t)

	gock.New(gockBase).
		Post("/auth/realms/master/protocol/openid-connect/token").
		Reply(http.StatusOK).
		JSON(map[string]any{"access_token": "stale", "expires_in": 300})
	gock.New(gockBase).
		Get("/auth/admin/realms/tamshai-corp/users").
		MatchHeader("Authorization", "Bearer stale").
		Reply(http.StatusUnauthorized)
	gock.New(gockBase).
		Post("/auth/realms/master/protocol/openid-connect/token").
		Reply(http.StatusOK).
		JSON(map[string]any{"access_token": "fresh", "expires_in": 300})
	gock.New(gockBase).
		Get("/auth/admin/realms/tamshai-corp/users").
		MatchHeader("Authorization", "Bearer fresh").
		Reply(http.StatusOK).
		JSON([]map[string]any{{"id": "u-1", "username": "test-user.journey", "enabled": true}})

	u, err := c.FindUser(context.Background(), "test-user.journey")
	require.NoError(t, err)
	require.Equal(t, "u-1", u.ID)
	require.True(t, gock.IsDone())
}

func TestToken_EmptyAccessToken(t *testing.T) {
	c := gockClient(t)
	gock.New(gockBase).
		Post("/auth/realms/master/protocol/openid-connect/token").
		Reply(http.StatusOK).
		JSON(map[string]any{"token_type": "Bearer"})

	_, err := c.Token(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
}
