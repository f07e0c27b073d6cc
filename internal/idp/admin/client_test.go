package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
	"github.com/dropDatabas3/totpsync/internal/idp/idptest"
	"github.com/dropDatabas3/totpsync/internal/metrics"
	"github.com/dropDatabas3/totpsync/internal/security/totp"
)

func newClient(t *testing.T, srv *idptest.Server) *admin.Client {
	t.Helper()
	c, err := admin.New(srv.AdminConfig())
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := admin.New(admin.Config{BaseURL: "nope", Realm: "r", Username: "u", Password: "p"})
	require.ErrorIs(t, err, admin.ErrConfig)

	_, err = admin.New(admin.Config{BaseURL: "http://idp", Realm: "r"})
	require.ErrorIs(t, err, admin.ErrConfig)

	_, err = admin.New(admin.Config{BaseURL: "http://idp", Realm: "r", ClientSecret: "s"})
	require.NoError(t, err)
}

func TestToken_CachedAcrossCalls(t *testing.T) {
	srv := idptest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.FindUser(ctx, "nobody")
		require.NoError(t, err)
	}
	require.Equal(t, 1, srv.Calls("token"))
	require.Equal(t, 3, srv.Calls("find_user"))
}

func TestToken_ClientCredentials(t *testing.T) {
	srv := idptest.New(t)
	srv.ClientSecret = "svc-secret"
	cfg := srv.AdminConfig()
	cfg.Username, cfg.Password, cfg.ClientSecret = "", "", "svc-secret"
	c, err := admin.New(cfg)
	require.NoError(t, err)

	_, err = c.Token(context.Background())
	require.NoError(t, err)
}

func TestToken_BadCredentials(t *testing.T) {
	srv := idptest.New(t)
	cfg := srv.AdminConfig()
	cfg.Password = "wrong"
	c, err := admin.New(cfg)
	require.NoError(t, err)

	_, err = c.FindUser(context.Background(), "x")
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, admin.StatusOf(err))
	require.True(t, admin.IsUnauthorized(err))
	require.Contains(t, err.Error(), "invalid_grant")
}

func TestUserLifecycle(t *testing.T) {
	srv := idptest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()

	u, err := c.FindUser(ctx, "test-user.journey")
	require.NoError(t, err)
	require.Nil(t, u)

	res, err := c.PartialImport(ctx, admin.ImportRequest{Users: []admin.User{{
		Username:        "test-user.journey",
		Enabled:         true,
		RequiredActions: []string{admin.RequiredActionConfigureTOTP, "VERIFY_EMAIL"},
	}}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)
	require.Equal(t, 1, res.Changed())

	u, err = c.FindUser(ctx, "Test-User.Journey")
	require.NoError(t, err)
	require.NotNil(t, u)
	first := u.ID

	res, err = c.PartialImport(ctx, admin.ImportRequest{Users: []admin.User{{Username: "test-user.journey", Enabled: true}}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Overwritten)

	u, err = c.FindUser(ctx, "test-user.journey")
	require.NoError(t, err)
	require.NotEqual(t, first, u.ID)

	require.NoError(t, c.SetRequiredActions(ctx, u.ID, nil))
	got, err := c.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, got.RequiredActions)

	require.NoError(t, c.DeleteUser(ctx, u.ID))
	err = c.DeleteUser(ctx, u.ID)
	require.True(t, admin.IsNotFound(err))
}

func TestCredentials(t *testing.T) {
	srv := idptest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()
	id := srv.SeedUser(admin.User{Username: "qa.bot", Enabled: true})

	require.NoError(t, c.ResetPassword(ctx, id, "pw-1", false))
	require.NoError(t, c.ResetPassword(ctx, id, "pw-2", false))

	otp, err := admin.OTPCredential("x6aQiJjmcl75ip0BdVHe", "", "E2E Test Authenticator", totp.DefaultParams)
	require.NoError(t, err)
	require.NoError(t, c.AddCredentials(ctx, id, otp))

	creds, err := c.ListCredentials(ctx, id)
	require.NoError(t, err)
	require.Len(t, creds, 2)
	for _, cr := range creds {
		require.Empty(t, cr.SecretData, "list must not leak secrets")
	}

	sn, ok := srv.Lookup("qa.bot")
	require.True(t, ok)
	require.Len(t, sn.OTP(), 1)
	var cd admin.OTPCredentialData
	require.NoError(t, json.Unmarshal([]byte(sn.OTP()[0].CredentialData), &cd))
	require.Equal(t, admin.OTPCredentialData{SubType: "totp", Digits: 6, Period: 30, Algorithm: "HmacSHA1"}, cd)
	require.JSONEq(t, `{"value":"x6aQiJjmcl75ip0BdVHe"}`, sn.OTP()[0].SecretData)

	require.NoError(t, c.DeleteCredential(ctx, id, sn.OTP()[0].ID))
	sn, _ = srv.Lookup("qa.bot")
	require.Empty(t, sn.OTP())
}

func TestOTPCredential_Base32Encoding(t *testing.T) {
	otp, err := admin.OTPCredential("JBSWY3DPEHPK3PXP", "BASE32", "E2E Test Authenticator", totp.DefaultParams)
	require.NoError(t, err)
	require.JSONEq(t, `{"value":"JBSWY3DPEHPK3PXP"}`, otp.SecretData)

	var cd admin.OTPCredentialData
	require.NoError(t, json.Unmarshal([]byte(otp.CredentialData), &cd))
	require.Equal(t, "BASE32", cd.SecretEncoding)

	key, err := cd.Key("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	require.Equal(t, []byte{'H', 'e', 'l', 'l', 'o', '!', 0xDE, 0xAD, 0xBE, 0xEF}, key)

	key, err = admin.OTPCredentialData{}.Key("plain-text")
	require.NoError(t, err)
	require.Equal(t, []byte("plain-text"), key)
}

func TestGroups(t *testing.T) {
	srv := idptest.New(t)
	c := newClient(t, srv)
	ctx := context.Background()
	parent := srv.AddGroup("employees")
	child := srv.AddSubGroup(parent, "hr-employees")
	id := srv.SeedUser(admin.User{Username: "qa.bot", Enabled: true})

	gs, err := c.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, gs, 2)
	require.Equal(t, "/employees/hr-employees", gs[1].Path)

	require.NoError(t, c.AddUserToGroup(ctx, id, child))
	mine, err := c.ListUserGroups(ctx, id)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "hr-employees", mine[0].Name)

	err = c.AddUserToGroup(ctx, id, "missing")
	require.True(t, admin.IsNotFound(err))
}

func TestAPIError_CarriesStatusAndBody(t *testing.T) {
	srv := idptest.New(t)
	c := newClient(t, srv)
	srv.FailOn("partial_import", http.StatusConflict, "User exists with same username", 1)

	_, err := c.PartialImport(context.Background(), admin.ImportRequest{Users: []admin.User{{Username: "u"}}})
	var ae *admin.APIError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, http.StatusConflict, ae.Status)
	require.Contains(t, err.Error(), "409")
	require.Contains(t, err.Error(), "User exists with same username")
}

func TestMetrics_CountsAdminRequests(t *testing.T) {
	srv := idptest.New(t)
	m := metrics.New()
	cfg := srv.AdminConfig()
	cfg.Metrics = m
	c, err := admin.New(cfg)
	require.NoError(t, err)

	srv.FailOn("find_user", http.StatusInternalServerError, "boom", 1)
	_, err = c.FindUser(context.Background(), "a")
	require.Error(t, err)
	_, err = c.FindUser(context.Background(), "a")
	require.NoError(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.AdminRequestsTotal.WithLabelValues("find_user", "5xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AdminRequestsTotal.WithLabelValues("find_user", "2xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AdminRequestsTotal.WithLabelValues("token", "2xx")))
}
