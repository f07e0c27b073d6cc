package app

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/totpsync/internal/config"
	"github.com/dropDatabas3/totpsync/internal/idp/admin"
	"github.com/dropDatabas3/totpsync/internal/metrics"
	"github.com/dropDatabas3/totpsync/internal/reconcile"
	"github.com/dropDatabas3/totpsync/internal/secretcache"
	"github.com/dropDatabas3/totpsync/internal/security/otpsecret"
	"github.com/dropDatabas3/totpsync/internal/security/totp"
)

// Container es el contenedor DI simple que usan los comandos del CLI.
type Container struct {
	Config     *config.Config
	Admin      *admin.Client
	Reconciler *reconcile.Reconciler
	Cache      secretcache.Store
	Metrics    *metrics.Metrics
	Detector   otpsecret.Detector
}

// New arma el contenedor a partir de la configuración ya validada. No hace
// llamadas de red salvo el PING del driver redis.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	baseURL, err := cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	strategy, err := reconcile.ParseStrategy(cfg.Reconcile.Strategy)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	client, err := admin.New(admin.Config{
		BaseURL:            baseURL,
		Realm:              cfg.IdP.Realm,
		AuthRealm:          cfg.IdP.AuthRealm,
		ClientID:           cfg.IdP.ClientID,
		ClientSecret:       cfg.IdP.ClientSecret,
		Username:           cfg.IdP.AdminUsername,
		Password:           cfg.IdP.AdminPassword,
		Timeout:            cfg.IdP.Timeout,
		InsecureSkipVerify: cfg.IdP.InsecureSkipVerify,
		Metrics:            m,
	})
	if err != nil {
		return nil, err
	}

	store, err := secretcache.New(ctx, secretcache.Config{
		Driver: cfg.Cache.Driver,
		Dir:    cfg.Cache.Dir,
		TTL:    cfg.Cache.TTL,
		Redis: secretcache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,

			EncryptionKey: cfg.Cache.Redis.EncryptionKey,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("secret cache: %w", err)
	}

	return &Container{
		Config: cfg,
		Admin:  client,
		Reconciler: reconcile.New(client, reconcile.Options{
			Strategy:         strategy,
			ResetExisting:    cfg.Reconcile.ResetExisting,
			PropagationDelay: cfg.Reconcile.PropagationDelay,
			OTPLabel:         cfg.Reconcile.OTPLabel,
			Params:           totp.DefaultParams,
		}),
		Cache:    store,
		Metrics:  m,
		Detector: otpsecret.Detector{MinLength: cfg.Detector.MinBase32Length},
	}, nil
}

// Provisioner arma el Provisioner para el entorno configurado.
func (c *Container) Provisioner() *Provisioner {
	return &Provisioner{
		Detector:    c.Detector,
		Reconciler:  c.Reconciler,
		Cache:       c.Cache,
		Metrics:     c.Metrics,
		Environment: c.Config.Environment,
		Parallel:    c.Config.Reconcile.Parallel,
	}
}

// Identities convierte la configuración en specs a provisionar.
func (c *Container) Identities() []IdentitySpec {
	all := c.Config.AllIdentities()
	out := make([]IdentitySpec, 0, len(all))
	for _, id := range all {
		out = append(out, IdentitySpec{
			Username:  id.Username,
			Password:  id.Password,
			Secret:    id.Secret,
			Email:     id.Email,
			FirstName: id.FirstName,
			LastName:  id.LastName,
			Groups:    id.Groups,
		})
	}
	return out
}

// Close libera el store.
func (c *Container) Close() error {
	if c.Cache == nil {
		return nil
	}
	return c.Cache.Close()
}
