package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "totpsync.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "dev", c.Environment)
	require.Equal(t, DefaultUsername, c.Identity.Username)
	require.Equal(t, DefaultRealm, c.IdP.Realm)
	require.Equal(t, "patch", c.Reconcile.Strategy)
	require.Equal(t, time.Second, c.Reconcile.PropagationDelay)
	require.Equal(t, "file", c.Cache.Driver)

	u, err := c.BaseURL()
	require.NoError(t, err)
	require.Equal(t, "https://www.tamshai-playground.local/auth", u)
}

func TestLoad_YAMLThenEnvThenFlags(t *testing.T) {
	p := writeYAML(t, `
environment: stage
environments:
  stage: https://idp.stage.example/auth/
  prod: https://idp.example/auth
idp:
  realm: corp
  timeout: 5s
identity:
  username: qa.bot
  groups: [hr-employees, finance-read]
reconcile:
  strategy: recreate
  propagation_delay: 250ms
cache:
  dir: /tmp/otp-cache
`)
	t.Setenv("TEST_USER_PASSWORD", "pw-from-env")
	t.Setenv("TEST_USER_TOTP_SECRET", "x6aQiJjmcl75ip0BdVHe")
	t.Setenv("KEYCLOAK_REALM", "corp-env")

	c, err := Load(p, WithEnvironment("prod"), WithStrategy("PATCH"))
	require.NoError(t, err)

	require.Equal(t, "prod", c.Environment)
	require.Equal(t, "patch", c.Reconcile.Strategy)
	require.Equal(t, "corp-env", c.IdP.Realm)
	require.Equal(t, 5*time.Second, c.IdP.Timeout)
	require.Equal(t, 250*time.Millisecond, c.Reconcile.PropagationDelay)
	require.Equal(t, "qa.bot", c.Identity.Username)
	require.Equal(t, "pw-from-env", c.Identity.Password)
	require.Equal(t, "x6aQiJjmcl75ip0BdVHe", c.Identity.Secret)
	require.Equal(t, []string{"hr-employees", "finance-read"}, c.Identity.Groups)

	u, err := c.BaseURL()
	require.NoError(t, err)
	require.Equal(t, "https://idp.example/auth", u)
}

func TestLoad_UnknownEnvironment(t *testing.T) {
	_, err := Load("", WithEnvironment("qa"))
	require.ErrorIs(t, err, ErrUnknownEnvironment)
}

func TestLoad_ExplicitBaseURLWins(t *testing.T) {
	t.Setenv("KEYCLOAK_URL", "http://127.0.0.1:8180/auth/")
	c, err := Load("", WithEnvironment("qa"))
	require.NoError(t, err)
	u, err := c.BaseURL()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8180/auth", u)
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]string{
		"strategy":     "reconcile:\n  strategy: wipe\n",
		"cache driver": "cache:\n  driver: s3\n",
		"redis addr":   "cache:\n  driver: redis\n",
		"duplicates":   "identities:\n  - username: test-user.journey\n",
		"base url":     "idp:\n  base_url: not-a-url\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, body))
			require.Error(t, err)
		})
	}
}

func TestAllIdentities_FillsOriginalDefaults(t *testing.T) {
	p := writeYAML(t, `
identities:
  - username: hr.manager
    email: hr@corp.example
`)
	c, err := Load(p)
	require.NoError(t, err)

	ids := c.AllIdentities()
	require.Len(t, ids, 2)
	require.Equal(t, DefaultUsername, ids[0].Username)
	require.Equal(t, "test-user-journey@tamshai.com", ids[0].Email)
	require.Equal(t, "Test", ids[0].FirstName)
	require.Equal(t, "Journey", ids[0].LastName)
	require.Equal(t, "hr@corp.example", ids[1].Email)
}

func TestLoad_RedisFromEnv(t *testing.T) {
	t.Setenv("TOTP_CACHE_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "redis.ci:6379")
	t.Setenv("REDIS_PASSWORD", "r-pass")
	t.Setenv("TOTP_CACHE_KEY", "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=")

	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "redis", c.Cache.Driver)
	require.Equal(t, "redis.ci:6379", c.Cache.Redis.Addr)
	require.Equal(t, "r-pass", c.Cache.Redis.Password)
	require.Equal(t, "totpsync", c.Cache.Redis.Prefix)
	require.Equal(t, "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=", c.Cache.Redis.EncryptionKey)
}
