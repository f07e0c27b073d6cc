package app

import (
	"context"
	stdbase32 "encoding/base32"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/totpsync/internal/config"
	"github.com/dropDatabas3/totpsync/internal/idp/admin"
	"github.com/dropDatabas3/totpsync/internal/idp/idptest"
	"github.com/dropDatabas3/totpsync/internal/metrics"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
	"github.com/dropDatabas3/totpsync/internal/reconcile"
	"github.com/dropDatabas3/totpsync/internal/secretcache"
	"github.com/dropDatabas3/totpsync/internal/security/otpsecret"
	"github.com/dropDatabas3/totpsync/internal/security/totp"
)

const (
	user = "test-user.journey"
	seed = "x6aQiJjmcl75ip0BdVHe"
)

type fixture struct {
	srv   *idptest.Server
	cache *secretcache.FileStore
	m     *metrics.Metrics
	p     *Provisioner
}

func newFixture(t *testing.T, strategy reconcile.Strategy) *fixture {
	t.Helper()
	srv := idptest.New(t)
	client, err := admin.New(srv.AdminConfig())
	require.NoError(t, err)

	f := &fixture{
		srv:   srv,
		cache: secretcache.NewFileStore(filepath.Join(t.TempDir(), ".totp-secrets")),
		m:     metrics.New(),
	}
	f.p = &Provisioner{
		Reconciler:  reconcile.New(client, reconcile.Options{Strategy: strategy}),
		Cache:       f.cache,
		Metrics:     f.m,
		Environment: "dev",
	}
	return f
}

func TestRun_WithoutCredentialsIsSilentNoOp(t *testing.T) {
	f := newFixture(t, reconcile.StrategyIdempotentPatch)

	out, err := f.p.Run(context.Background(), IdentitySpec{Username: user})
	require.NoError(t, err)
	require.True(t, out.Skipped)
	require.Zero(t, f.srv.Calls("token"), "no network call without credentials")
	require.Zero(t, f.srv.Calls("find_user"))

	_, err = f.cache.Load(context.Background(), user, "dev")
	require.ErrorIs(t, err, secretcache.ErrNotFound)
	require.Equal(t, 1.0, testutil.ToFloat64(f.m.ReconcileTotal.WithLabelValues("patch", metrics.ResultSkipped)))
}

func TestRun_HalfConfiguredIsFatal(t *testing.T) {
	f := newFixture(t, reconcile.StrategyIdempotentPatch)

	_, err := f.p.Run(context.Background(), IdentitySpec{Username: user, Secret: seed})
	require.ErrorIs(t, err, ErrConfigurationMissing)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, []string{"password"}, ce.Missing)
	require.Contains(t, err.Error(), "TEST_USER_PASSWORD")

	_, err = f.p.Run(context.Background(), IdentitySpec{Username: user, Password: "pw"})
	require.ErrorIs(t, err, ErrConfigurationMissing)
	require.Contains(t, err.Error(), "TEST_USER_TOTP_SECRET")
	require.Zero(t, f.srv.Calls("token"))
}

func TestRun_AdminFailureIsFatalAndCarriesStatus(t *testing.T) {
	f := newFixture(t, reconcile.StrategyDestructiveRecreate)
	f.srv.FailOn("partial_import", http.StatusBadGateway, "upstream unavailable", -1)

	out, err := f.p.Run(context.Background(), IdentitySpec{Username: user, Password: "pw", Secret: seed})
	require.Error(t, err)
	require.ErrorIs(t, err, reconcile.ErrImportFailed)
	require.Contains(t, err.Error(), "502")
	require.Contains(t, err.Error(), "upstream unavailable")
	require.False(t, out.Cached)

	_, err = f.cache.Load(context.Background(), user, "dev")
	require.ErrorIs(t, err, secretcache.ErrNotFound, "nothing is cached for a failed run")
	require.Equal(t, 1.0, testutil.ToFloat64(f.m.ReconcileTotal.WithLabelValues("recreate", metrics.ResultFailed)))
}

func TestRun_EndToEndBridgedSecret(t *testing.T) {
	f := newFixture(t, reconcile.StrategyIdempotentPatch)
	f.srv.SeedUser(admin.User{Username: user, Enabled: true, RequiredActions: []string{admin.RequiredActionConfigureTOTP}})

	out, err := f.p.Run(context.Background(), IdentitySpec{Username: user, Password: "pw", Secret: seed})
	require.NoError(t, err)
	require.True(t, out.Cached)
	require.Equal(t, reconcile.StateDone, out.Result.State)

	cached, err := f.cache.Load(context.Background(), user, "dev")
	require.NoError(t, err)
	decoded, err := stdbase32.StdEncoding.DecodeString(cached)
	require.NoError(t, err)
	require.Equal(t, []byte(seed), decoded)

	now := time.Now()
	code, err := totp.CodeFromBase32(cached, now, totp.DefaultParams)
	require.NoError(t, err)
	require.True(t, f.srv.ValidateOTP(user, code, now))
}

func requireGeneratorMatchesIdP(t *testing.T, f *fixture, b32 string) {
	t.Helper()
	now := time.Now()
	code, err := totp.CodeFromBase32(b32, now, totp.DefaultParams)
	require.NoError(t, err)
	require.True(t, f.srv.ValidateOTP(user, code, now))
}

func TestRun_Base32SeedsReachTheIdPAsKeys(t *testing.T) {
	for name, b32Seed := range map[string]string{
		"binary": "JBSWY3DPEHPK3PXP",
		"text":   "ORSXG5BNOVZWK4RONJXXK4TOMV4S243FMNZGK5A=",
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, reconcile.StrategyDestructiveRecreate)

			out, err := f.p.Run(context.Background(), IdentitySpec{Username: user, Password: "pw", Secret: b32Seed})
			require.NoError(t, err)
			require.Equal(t, otpsecret.FormatBase32, out.Format)
			require.Equal(t, b32Seed, out.Base32)
			require.True(t, out.Cached)

			sn, ok := f.srv.Lookup(user)
			require.True(t, ok)
			require.JSONEq(t, `{"value":"`+b32Seed+`"}`, sn.OTP()[0].SecretData)
			require.Contains(t, sn.OTP()[0].CredentialData, `"secretEncoding":"BASE32"`)
			requireGeneratorMatchesIdP(t, f, b32Seed)
		})
	}
}

func TestRun_SecretWhitespaceIsKeyMaterial(t *testing.T) {
	f := newFixture(t, reconcile.StrategyDestructiveRecreate)
	const padded = " padded-seed "

	out, err := f.p.Run(context.Background(), IdentitySpec{Username: user, Password: "pw", Secret: padded})
	require.NoError(t, err)
	require.Equal(t, otpsecret.FormatRaw, out.Format)

	sn, _ := f.srv.Lookup(user)
	require.JSONEq(t, `{"value":" padded-seed "}`, sn.OTP()[0].SecretData)
	requireGeneratorMatchesIdP(t, f, out.Base32)

	_, err = f.p.Run(context.Background(), IdentitySpec{Username: user, Password: "pw", Secret: "   "})
	require.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestRun_LogsCarryEachKeyOnce(t *testing.T) {
	f := newFixture(t, reconcile.StrategyIdempotentPatch)
	f.srv.SeedUser(admin.User{Username: user, Enabled: true})
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	f.p.Cache = secretcache.NewFileStore(filepath.Join(blocker, "cache"))

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core))

	_, err := f.p.Run(ctx, IdentitySpec{Username: user, Password: "pw", Secret: seed})
	require.NoError(t, err)
	require.NotZero(t, logs.FilterField(logger.Layer("reconcile")).Len())
	require.NotZero(t, logs.FilterField(logger.Layer("secretcache")).Len())

	for _, e := range logs.All() {
		seen := map[string]bool{}
		for _, fld := range e.Context {
			require.False(t, seen[fld.Key], "duplicate key %q in %q", fld.Key, e.Message)
			seen[fld.Key] = true
		}
	}
}

func TestRun_CacheFailureIsSoft(t *testing.T) {
	f := newFixture(t, reconcile.StrategyDestructiveRecreate)
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	f.p.Cache = secretcache.NewFileStore(filepath.Join(blocker, "cache"))

	out, err := f.p.Run(context.Background(), IdentitySpec{Username: user, Password: "pw", Secret: seed})
	require.NoError(t, err)
	require.False(t, out.Cached)
	require.Equal(t, 1.0, testutil.ToFloat64(f.m.CacheWriteFailures))
}

func TestRunAll_ParallelDistinctUsers(t *testing.T) {
	f := newFixture(t, reconcile.StrategyDestructiveRecreate)
	f.p.Parallel = 3
	ids := []IdentitySpec{
		{Username: "qa.one", Password: "pw", Secret: "seed-number-one"},
		{Username: "qa.two", Password: "pw", Secret: "seed-number-two"},
		{Username: "qa.three"},
	}

	outs, err := f.p.RunAll(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, outs, 3)
	require.True(t, outs[2].Skipped)
	for _, u := range []string{"qa.one", "qa.two"} {
		_, err := f.cache.Load(context.Background(), u, "dev")
		require.NoError(t, err, u)
	}
	require.Equal(t, 1, f.srv.Calls("token"), "token is shared across identities")
}

func TestRunAll_RejectsDuplicatePairs(t *testing.T) {
	f := newFixture(t, reconcile.StrategyIdempotentPatch)
	_, err := f.p.RunAll(context.Background(), []IdentitySpec{{Username: "QA.one"}, {Username: "qa.one"}})
	require.Error(t, err)
	require.Zero(t, f.srv.Calls("token"))
}

func TestContainer_FromConfig(t *testing.T) {
	srv := idptest.New(t)
	srv.SeedUser(admin.User{Username: user, Enabled: true})
	t.Setenv("KEYCLOAK_URL", srv.BaseURL())
	t.Setenv("KEYCLOAK_ADMIN_USERNAME", idptest.AdminUser)
	t.Setenv("KEYCLOAK_ADMIN_PASSWORD", idptest.AdminPassword)
	t.Setenv("TEST_USER_PASSWORD", "pw")
	t.Setenv("TEST_USER_TOTP_SECRET", seed)
	t.Setenv("TOTP_CACHE_DRIVER", "memory")

	cfg, err := config.Load("")
	require.NoError(t, err)
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	outs, err := c.Provisioner().RunAll(context.Background(), c.Identities())
	require.NoError(t, err)
	require.Len(t, outs, 1)

	got, err := c.Cache.Load(context.Background(), user, "dev")
	require.NoError(t, err)
	require.Equal(t, "PA3GCULJJJVG2Y3MG42WS4BQIJSFMSDF", got)
}
