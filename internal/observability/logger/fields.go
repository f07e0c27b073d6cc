package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP (Admin API)
// =================================================================================

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field { return zap.String("method", v) }

// URL crea un campo para la URL llamada.
func URL(v string) zap.Field { return zap.String("url", v) }

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field { return zap.Int("status", v) }

// Duration crea un campo para la duración de una llamada.
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - PROVISIONING
// =================================================================================

// Username crea un campo para el usuario de test.
func Username(v string) zap.Field { return zap.String("username", v) }

// Env crea un campo para el entorno (dev, stage, prod).
func Env(v string) zap.Field { return zap.String("environment", v) }

// UserID crea un campo para el id asignado por el IdP.
func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Strategy crea un campo para la estrategia de reconciliación.
func Strategy(v string) zap.Field { return zap.String("strategy", v) }

// State crea un campo para el estado de la máquina de reconciliación.
func State(v string) zap.Field { return zap.String("state", v) }

// Group crea un campo para un grupo del IdP.
func Group(v string) zap.Field { return zap.String("group", v) }

// SecretHint crea un campo con el secreto ya enmascarado. Nunca pasar el secreto en claro.
func SecretHint(masked string) zap.Field { return zap.String("secret", masked) }

// SecretFormat crea un campo para el formato detectado (base32/raw).
func SecretFormat(v string) zap.Field { return zap.String("secret_format", v) }

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field { return zap.String("component", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Layer crea un campo para la capa (cli, app, reconcile, admin, cache).
func Layer(v string) zap.Field { return zap.String("layer", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }

// Count crea un campo para un conteo.
func Count(v int) zap.Field { return zap.Int("count", v) }

// Path crea un campo para una ruta de archivo.
func Path(v string) zap.Field { return zap.String("path", v) }

// String crea un campo string genérico.
func String(key, v string) zap.Field { return zap.String(key, v) }

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field { return zap.Int(key, v) }

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
