package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// scope es el logger del contexto más las keys que ya agregó With.
type scope struct {
	l    *zap.Logger
	keys map[string]struct{}
}

// ToContext guarda l en ctx tal cual.
func ToContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, scope{l: l})
}

// From devuelve el logger de ctx, o el global.
func From(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return L()
	}
	if s, ok := ctx.Value(ctxKey{}).(scope); ok && s.l != nil {
		return s.l
	}
	return L()
}

// With agrega al logger de ctx sólo los campos cuya key no agregó antes otro
// With sobre la misma cadena de contextos, y guarda el resultado en el ctx
// devuelto. zap no deduplica: una key repetida sale dos veces en el JSON.
//
// Layer y Op no se guardan en el contexto; cada capa los agrega localmente.
func With(ctx context.Context, fields ...zap.Field) (context.Context, *zap.Logger) {
	cur, _ := ctx.Value(ctxKey{}).(scope)
	if cur.l == nil {
		cur.l = L()
	}
	keys := make(map[string]struct{}, len(cur.keys)+len(fields))
	for k := range cur.keys {
		keys[k] = struct{}{}
	}
	fresh := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if _, dup := keys[f.Key]; dup {
			continue
		}
		keys[f.Key] = struct{}{}
		fresh = append(fresh, f)
	}
	next := scope{l: cur.l.With(fresh...), keys: keys}
	return context.WithValue(ctx, ctxKey{}, next), next.l
}

// ForIdentity devuelve el logger de ctx con usuario y entorno (si faltan) y la capa.
func ForIdentity(ctx context.Context, layer, username, environment string) *zap.Logger {
	_, l := With(ctx, Username(username), Env(environment))
	return l.With(Layer(layer))
}
