// Package secretcache persiste la representación Base32 del secreto OTP por
// (username, environment), para que generadores de códigos en otros procesos
// la lean sin volver a derivarla.
//
// Soporta:
//   - file (default): un archivo por par, escritura atómica
//   - redis: compartido entre runners de CI
//   - memory: in-process, para tests
package secretcache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Store define las operaciones del cache de secretos.
type Store interface {
	// Save sobrescribe el valor del par. Last-writer-wins.
	Save(ctx context.Context, username, environment, secret string) error

	// Load devuelve ErrNotFound si no hay valor.
	Load(ctx context.Context, username, environment string) (string, error)

	// Delete es no-op si no existe.
	Delete(ctx context.Context, username, environment string) error

	Close() error
}

// Config para construir un Store.
type Config struct {
	Driver string // "file" | "redis" | "memory"
	Dir    string
	TTL    time.Duration // redis/memory; 0 = sin expiración
	Redis  RedisConfig
}

// RedisConfig del driver redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string

	// EncryptionKey (opcional) cifra los valores con AES-256-GCM.
	EncryptionKey string
}

var (
	// ErrNotFound: no hay secreto cacheado para el par.
	ErrNotFound = errors.New("secretcache: not found")
	// ErrUnknownDriver: Config.Driver inválido.
	ErrUnknownDriver = errors.New("secretcache: unknown driver")
)

// New crea el Store según la configuración.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "file", "":
		return NewFileStore(cfg.Dir), nil
	case "redis":
		return NewRedisStore(ctx, cfg.Redis, cfg.TTL)
	case "memory":
		return NewMemoryStore(cfg.TTL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
