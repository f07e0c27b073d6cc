package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/totpsync/internal/app"
	"github.com/dropDatabas3/totpsync/internal/config"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
	"github.com/dropDatabas3/totpsync/internal/secretcache"
	"github.com/dropDatabas3/totpsync/internal/security/totp"
	"github.com/dropDatabas3/totpsync/internal/util"
)

func newProvisionCmd(g *globalFlags) *cobra.Command {
	var (
		reset    bool
		parallel int
		only     string
	)
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Converge password, OTP, acciones pendientes y grupos de las identidades configuradas",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if reset {
				g.extra = append(g.extra, func(c *config.Config) { c.Reconcile.ResetExisting = true })
			}
			if parallel > 0 {
				g.extra = append(g.extra, func(c *config.Config) { c.Reconcile.Parallel = parallel })
			}
			c, err := g.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			p := c.Provisioner()
			ids := c.Identities()
			if only != "" {
				ids = filterIdentities(ids, only)
				if len(ids) == 0 {
					return fmt.Errorf("identity %q is not configured", only)
				}
			}

			outs, runErr := p.RunAll(ctx, ids)
			for _, o := range outs {
				if o == nil {
					continue
				}
				printOutcome(cmd, o)
			}
			if path := c.Config.Metrics.Textfile; path != "" {
				if err := c.Metrics.WriteTextfile(path); err != nil {
					logger.From(ctx).Warn("metrics textfile write failed", logger.Path(path), logger.Err(err))
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&g.strategy, "strategy", "", "Estrategia: patch|recreate (env TOTP_RECONCILE_STRATEGY)")
	cmd.Flags().BoolVar(&reset, "reset-existing", false, "Reescribir password y OTP aunque ya existan (rotación)")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Identidades distintas en paralelo (default reconcile.parallel)")
	cmd.Flags().StringVar(&only, "username", "", "Provisionar sólo esta identidad")
	return cmd
}

func filterIdentities(ids []app.IdentitySpec, username string) []app.IdentitySpec {
	var out []app.IdentitySpec
	for _, id := range ids {
		if strings.EqualFold(id.Username, username) {
			out = append(out, id)
		}
	}
	return out
}

func printOutcome(cmd *cobra.Command, o *app.Outcome) {
	w := cmd.OutOrStdout()
	if o.Skipped {
		fmt.Fprintf(w, "%s@%s: skipped (no password/secret configured)\n", o.Username, o.Environment)
		return
	}
	state := "not started"
	if o.Result != nil {
		state = string(o.Result.State)
	}
	fmt.Fprintf(w, "%s@%s: %s (format=%s, cached=%t, %s)\n",
		o.Username, o.Environment, state, o.Format, o.Cached, o.Duration.Round(time.Millisecond))
	if o.Result != nil {
		if o.Result.PreviousUserID != "" {
			fmt.Fprintf(w, "  id: %s -> %s\n", o.Result.PreviousUserID, o.Result.UserID)
		}
		for _, gname := range o.Result.GroupsSkipped {
			fmt.Fprintf(w, "  warning: group %q skipped\n", gname)
		}
	}
	if o.Base32 != "" {
		fmt.Fprintf(w, "  generator secret: %s\n", util.MaskSecret(o.Base32))
	}
}

func newVerifyCmd(g *globalFlags) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verifica que la identidad tenga password y exactamente una OTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := g.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			if username == "" {
				username = c.Config.Identity.Username
			}

			v, err := c.Reconciler.Verify(ctx, username)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%s)\n", username, v.UserID)
			for _, cr := range v.Credentials {
				fmt.Fprintf(w, "  - %s: %s\n", cr.Type, cr.Label)
			}
			if !v.OK() {
				return fmt.Errorf("verification failed for %q: password=%t otp=%d pending_otp_setup=%t",
					username, v.HasPassword, v.OTPCount, v.PendingOTPSetup)
			}
			fmt.Fprintln(w, "ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Identidad a verificar (default identity.username)")
	return cmd
}

// generatorSecret lee el Base32 del cache; si no está, lo re-deriva del
// secreto configurado.
func generatorSecret(cmd *cobra.Command, c *app.Container, username string) (string, error) {
	ctx := cmd.Context()
	v, err := c.Cache.Load(ctx, username, c.Config.Environment)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, secretcache.ErrNotFound) {
		logger.From(ctx).Warn("secret cache read failed; re-deriving", logger.Err(err))
	}
	for _, id := range c.Config.AllIdentities() {
		if strings.EqualFold(id.Username, username) && id.Secret != "" {
			return c.Detector.Bridge(id.Secret).Base32, nil
		}
	}
	return "", fmt.Errorf("no cached or configured secret for %q in %s", username, c.Config.Environment)
}

func newCodeCmd(g *globalFlags) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "code",
		Short: "Imprime el código TOTP actual del par (username, environment)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			if username == "" {
				username = c.Config.Identity.Username
			}
			secret, err := generatorSecret(cmd, c, username)
			if err != nil {
				return err
			}
			now := time.Now()
			code, err := totp.CodeFromBase32(secret, now, totp.DefaultParams)
			if err != nil {
				return err
			}
			period := int64(totp.DefaultParams.Period)
			remaining := period - now.Unix()%period
			fmt.Fprintf(cmd.OutOrStdout(), "%s (valid %ds)\n", code, remaining)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Identidad (default identity.username)")
	return cmd
}

func newShowCmd(g *globalFlags) *cobra.Command {
	var (
		username string
		issuer   string
		reveal   bool
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Muestra el secreto Base32 (enmascarado) y la URL otpauth://",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.container(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()
			if username == "" {
				username = c.Config.Identity.Username
			}
			secret, err := generatorSecret(cmd, c, username)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			shown := util.MaskSecret(secret)
			link := totp.OTPAuthURL(issuer, username, secret, totp.DefaultParams)
			if reveal {
				shown = secret
			} else {
				link = maskOTPAuthSecret(link)
			}
			fmt.Fprintf(w, "secret: %s\n", shown)
			fmt.Fprintf(w, "url:    %s\n", link)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Identidad (default identity.username)")
	cmd.Flags().StringVar(&issuer, "issuer", "Tamshai", "Issuer de la URL otpauth")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Mostrar el secreto completo")
	return cmd
}

func maskOTPAuthSecret(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	q := u.Query()
	q.Set("secret", util.MaskSecret(q.Get("secret")))
	u.RawQuery = q.Encode()
	return u.String()
}
