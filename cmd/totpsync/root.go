package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/totpsync/internal/app"
	"github.com/dropDatabas3/totpsync/internal/config"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
)

type globalFlags struct {
	configPath string
	envFile    string
	env        string
	strategy   string
	logLevel   string
	logFormat  string
	extra      []config.Option
}

func (g *globalFlags) load() (*config.Config, error) {
	if g.envFile != "" {
		if err := godotenv.Load(g.envFile); err != nil {
			return nil, fmt.Errorf("env file %s: %w", g.envFile, err)
		}
	} else {
		_ = godotenv.Load(".env")     // base
		_ = godotenv.Load(".env.dev") // dev overrides
	}

	opts := []config.Option{
		config.WithEnvironment(g.env),
		config.WithStrategy(g.strategy),
		config.WithLogLevel(g.logLevel),
	}
	cfg, err := config.Load(g.configPath, append(opts, g.extra...)...)
	if err != nil {
		return nil, err
	}

	logEnv := cfg.Log.Env
	switch strings.ToLower(g.logFormat) {
	case "json":
		logEnv = "prod"
	case "console", "text":
		logEnv = "dev"
	}
	logger.Init(logger.Config{Env: logEnv, Level: cfg.Log.Level, ServiceName: "totpsync"})
	return cfg, nil
}

// container carga config, inicializa el logger y arma las dependencias.
func (g *globalFlags) container(ctx context.Context) (*app.Container, error) {
	cfg, err := g.load()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalFlags{configPath: os.Getenv("TOTPSYNC_CONFIG")}

	root := &cobra.Command{
		Use:           "totpsync",
		Short:         "Aprovisiona password + TOTP de usuarios de test en el IdP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", g.configPath, "Archivo YAML de configuración (env TOTPSYNC_CONFIG)")
	pf.StringVar(&g.envFile, "env-file", "", "Archivo .env a cargar (default: .env y .env.dev si existen)")
	pf.StringVarP(&g.env, "env", "e", "", "Entorno objetivo: dev|stage|prod (env TEST_ENV)")
	pf.StringVar(&g.logLevel, "log-level", "", "Nivel de log: debug|info|warn|error")
	pf.StringVar(&g.logFormat, "log-format", "", "Formato de log: console|json")

	root.AddCommand(
		newProvisionCmd(g),
		newVerifyCmd(g),
		newCodeCmd(g),
		newShowCmd(g),
	)
	return root
}
