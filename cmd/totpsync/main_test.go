package main

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
	"github.com/dropDatabas3/totpsync/internal/idp/idptest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func idpEnv(t *testing.T, srv *idptest.Server) {
	t.Helper()
	t.Setenv("KEYCLOAK_URL", srv.BaseURL())
	t.Setenv("KEYCLOAK_ADMIN_USERNAME", idptest.AdminUser)
	t.Setenv("KEYCLOAK_ADMIN_PASSWORD", idptest.AdminPassword)
	t.Setenv("TOTP_CACHE_DIR", t.TempDir())
	t.Setenv("TEST_USERNAME", "test-user.journey")
}

func TestProvision_NoCredentialsSkips(t *testing.T) {
	srv := idptest.New(t)
	idpEnv(t, srv)
	t.Setenv("TEST_USER_PASSWORD", "")
	t.Setenv("TEST_USER_TOTP_SECRET", "")

	out, err := run(t, "provision")
	require.NoError(t, err)
	require.Contains(t, out, "skipped")
	require.Zero(t, srv.Calls("token"))
}

func TestProvision_VerifyCodeShow(t *testing.T) {
	srv := idptest.New(t)
	idpEnv(t, srv)
	t.Setenv("TEST_USER_PASSWORD", "Journey-Pass-1")
	t.Setenv("TEST_USER_TOTP_SECRET", "x6aQiJjmcl75ip0BdVHe")

	out, err := run(t, "provision", "--strategy", "recreate", "--log-level", "warn")
	require.NoError(t, err)
	require.Contains(t, out, "test-user.journey@dev: done")
	require.Contains(t, out, "format=raw")

	out, err = run(t, "verify")
	require.NoError(t, err)
	require.Contains(t, out, "otp: E2E Test Authenticator")
	require.Contains(t, out, "ok")

	out, err = run(t, "code")
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^\d{6} \(valid \d+s\)`), out)

	out, err = run(t, "show")
	require.NoError(t, err)
	require.Contains(t, out, "secret: PA3G****MSDF")
	require.NotContains(t, out, "PA3GCULJJJVG2Y3MG42WS4BQIJSFMSDF")

	out, err = run(t, "show", "--reveal")
	require.NoError(t, err)
	require.Contains(t, out, "secret=PA3GCULJJJVG2Y3MG42WS4BQIJSFMSDF")
}

func TestProvision_AdminFailureExitsNonZero(t *testing.T) {
	srv := idptest.New(t)
	idpEnv(t, srv)
	t.Setenv("TEST_USER_PASSWORD", "pw")
	t.Setenv("TEST_USER_TOTP_SECRET", "x6aQiJjmcl75ip0BdVHe")
	srv.SeedUser(admin.User{Username: "test-user.journey", Enabled: true})
	srv.FailOn("update_user", http.StatusInternalServerError, "boom", -1)

	_, err := run(t, "provision", "--strategy", "patch")
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestVerify_MissingCredentialsFails(t *testing.T) {
	srv := idptest.New(t)
	idpEnv(t, srv)
	srv.SeedUser(admin.User{Username: "test-user.journey", Enabled: true})

	_, err := run(t, "verify")
	require.Error(t, err)
	require.Contains(t, err.Error(), "verification failed")
}
