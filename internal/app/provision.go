package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/totpsync/internal/metrics"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
	"github.com/dropDatabas3/totpsync/internal/reconcile"
	"github.com/dropDatabas3/totpsync/internal/secretcache"
	"github.com/dropDatabas3/totpsync/internal/security/otpsecret"
	"github.com/dropDatabas3/totpsync/internal/util"
)

// ErrConfigurationMissing: se pidió aprovisionar (hay password o secreto) pero
// falta la otra mitad.
var ErrConfigurationMissing = errors.New("configuration missing")

// ConfigError detalla qué falta y cómo corregirlo.
type ConfigError struct {
	Username string
	Missing  []string
	Hint     string
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("%v for %q: %s", ErrConfigurationMissing, e.Username, strings.Join(e.Missing, ", "))
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *ConfigError) Unwrap() error { return ErrConfigurationMissing }

// IdentitySpec es una identidad a provisionar tal como viene de la configuración.
type IdentitySpec struct {
	Username  string
	Password  string
	Secret    string // Base32 o texto plano
	Email     string
	FirstName string
	LastName  string
	Groups    []string
}

// Reconciler es lo que el Provisioner necesita de reconcile.
type Reconciler interface {
	Reconcile(ctx context.Context, d reconcile.Desired) (*reconcile.Result, error)
	Strategy() reconcile.Strategy
}

// Outcome resume una corrida de Run.
type Outcome struct {
	Username    string
	Environment string
	Skipped     bool
	Format      otpsecret.Format
	Base32      string
	Result      *reconcile.Result
	Cached      bool
	Duration    time.Duration
}

// Provisioner une puente, reconciliación y cache.
type Provisioner struct {
	Detector    otpsecret.Detector
	Reconciler  Reconciler
	Cache       secretcache.Store
	Metrics     *metrics.Metrics
	Environment string
	Parallel    int
}

// Run aprovisiona una identidad.
//
// Sin password ni secreto no hace nada (ni red ni error), para no bloquear
// suites que no usan OTP. Con sólo uno de los dos devuelve *ConfigError. Desde
// ahí cualquier falla del IdP es fatal; cache y grupos son best-effort.
func (p *Provisioner) Run(ctx context.Context, id IdentitySpec) (*Outcome, error) {
	start := time.Now()
	strategy := p.Reconciler.Strategy().String()
	out := &Outcome{Username: id.Username, Environment: p.Environment}
	ctx, base := logger.With(ctx, logger.Username(id.Username), logger.Env(p.Environment))
	log := base.With(logger.Layer("app"), logger.Op("provision"))

	finish := func(result string) {
		out.Duration = time.Since(start)
		p.Metrics.ObserveRun(strategy, result, id.Username, p.Environment, out.Duration)
	}

	// TrimSpace sólo para el chequeo de vacío: el secreto es la clave HMAC y
	// viaja sin tocar.
	password := strings.TrimSpace(id.Password)
	secret := strings.TrimSpace(id.Secret)
	switch {
	case password == "" && secret == "":
		log.Info("no otp secret or password configured; skipping provisioning")
		out.Skipped = true
		finish(metrics.ResultSkipped)
		return out, nil
	case password == "":
		finish(metrics.ResultFailed)
		return out, &ConfigError{
			Username: id.Username,
			Missing:  []string{"password"},
			Hint:     "set TEST_USER_PASSWORD or identity.password",
		}
	case secret == "":
		finish(metrics.ResultFailed)
		return out, &ConfigError{
			Username: id.Username,
			Missing:  []string{"otp secret"},
			Hint:     "set TEST_USER_TOTP_SECRET or identity.secret",
		}
	}

	rep := p.Detector.Bridge(id.Secret)
	out.Format = rep.Format
	out.Base32 = rep.Base32
	if err := rep.Verify(); err != nil {
		finish(metrics.ResultFailed)
		return out, err
	}
	log.Info("provisioning identity",
		logger.Strategy(strategy),
		logger.SecretHint(util.MaskSecret(id.Secret)),
		logger.SecretFormat(string(rep.Format)),
	)

	res, err := p.Reconciler.Reconcile(ctx, reconcile.Desired{
		Username:  id.Username,
		Password:  id.Password,
		Secret:    rep,
		Email:     id.Email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
		Groups:    id.Groups,
	})
	out.Result = res
	if err != nil {
		finish(metrics.ResultFailed)
		return out, fmt.Errorf("provision %q in %s: %w", id.Username, p.Environment, err)
	}
	if res != nil {
		p.Metrics.IncGroupSkips(len(res.GroupsSkipped))
	}

	out.Cached = secretcache.SaveBestEffort(ctx, p.Cache, p.Metrics, id.Username, p.Environment, rep.Base32)
	finish(metrics.ResultOK)
	log.Info("identity provisioned",
		logger.Bool("cached", out.Cached),
		logger.Duration(out.Duration),
	)
	return out, nil
}

// RunAll aprovisiona varias identidades. Usernames distintos pueden correr en
// paralelo (hasta Parallel); un mismo par (username, environment) no, así que
// los duplicados se rechazan antes de empezar. La primera falla cancela el resto.
func (p *Provisioner) RunAll(ctx context.Context, ids []IdentitySpec) ([]*Outcome, error) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		k := strings.ToLower(id.Username)
		if seen[k] {
			return nil, fmt.Errorf("identity %q listed more than once for %s", id.Username, p.Environment)
		}
		seen[k] = true
	}

	limit := p.Parallel
	if limit <= 0 {
		limit = 1
	}
	outcomes := make([]*Outcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			out, err := p.Run(gctx, id)
			outcomes[i] = out
			return err
		})
	}
	err := g.Wait()
	return outcomes, err
}
