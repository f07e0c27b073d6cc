package secretcache

import (
	"context"

	"github.com/dropDatabas3/totpsync/internal/metrics"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
)

// SaveBestEffort guarda y, si falla, loguea un warning y suma la métrica en
// vez de devolver el error: el cache no condiciona la corrección del
// aprovisionamiento. Devuelve true si se guardó.
func SaveBestEffort(ctx context.Context, s Store, m *metrics.Metrics, username, environment, secret string) bool {
	if s == nil {
		return false
	}
	err := s.Save(ctx, username, environment, secret)
	if err == nil {
		return true
	}
	m.IncCacheWriteFailures()
	log := logger.ForIdentity(ctx, "secretcache", username, environment)
	if f, ok := s.(*FileStore); ok {
		log = log.With(logger.Path(f.Path(username, environment)))
	}
	log.Warn("secret cache write failed; downstream code generators must re-derive the secret", logger.Err(err))
	return false
}
