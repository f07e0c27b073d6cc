// Package logger provee un logger Zap singleton con scoping por contexto.
//
// # Design Decisions
//
//   - Singleton: una sola instancia inicializada con Init() desde main.
//   - Context Scoping: cada corrida de provisioning lleva su logger "scoped"
//     (username, environment, strategy) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Output: stderr por defecto; stdout queda libre para la salida del CLI
//     (códigos TOTP, URLs otpauth).
//
// # Usage
//
//	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level})
//	defer logger.Sync()
//
//	ctx, base := logger.With(ctx, logger.Username(u), logger.Env(env))
//	log := base.With(logger.Layer("reconcile"), logger.Op("patch"))
//	log.Info("identity resolved", logger.UserID(id))
package logger
