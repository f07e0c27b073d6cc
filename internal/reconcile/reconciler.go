// Package reconcile converge una identidad de prueba del IdP al estado deseado:
// habilitada, con password, con una única credencial OTP que lleva el secreto
// puenteado, sin CONFIGURE_TOTP pendiente y con los grupos pedidos.
//
// Las llamadas son estrictamente secuenciales y sin reintentos: cada etapa
// depende de ids devueltos por la anterior.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
	"github.com/dropDatabas3/totpsync/internal/security/otpsecret"
	"github.com/dropDatabas3/totpsync/internal/security/totp"
)

// AdminAPI es lo que el reconciler consume del IdP. *admin.Client lo implementa.
type AdminAPI interface {
	Token(ctx context.Context) (string, error)
	FindUser(ctx context.Context, username string) (*admin.User, error)
	GetUser(ctx context.Context, id string) (*admin.User, error)
	DeleteUser(ctx context.Context, id string) error
	PartialImport(ctx context.Context, req admin.ImportRequest) (admin.ImportResult, error)
	ResetPassword(ctx context.Context, id, password string, temporary bool) error
	ListCredentials(ctx context.Context, id string) ([]admin.Credential, error)
	DeleteCredential(ctx context.Context, id, credentialID string) error
	AddCredentials(ctx context.Context, id string, creds ...admin.Credential) error
	SetRequiredActions(ctx context.Context, id string, actions []string) error
	ListGroups(ctx context.Context) ([]admin.Group, error)
	ListUserGroups(ctx context.Context, id string) ([]admin.Group, error)
	AddUserToGroup(ctx context.Context, id, groupID string) error
}

// Desired describe la identidad convergida.
type Desired struct {
	Username   string
	Password   string
	Secret     otpsecret.Representation
	Email      string
	FirstName  string
	LastName   string
	Groups     []string // nombres o paths
	Attributes map[string][]string
}

// Options ajusta una corrida.
type Options struct {
	Strategy Strategy
	// ResetExisting fuerza reescribir password y OTP aunque ya existan (rotación).
	ResetExisting bool
	// PropagationDelay es la espera entre el delete y el import en recreate.
	PropagationDelay time.Duration
	OTPLabel         string
	Params           totp.Params
}

const defaultOTPLabel = "E2E Test Authenticator"

// Result resume lo que hizo la corrida.
type Result struct {
	Strategy       Strategy
	State          State
	UserID         string
	PreviousUserID string // sólo recreate, si existía

	PasswordWritten        bool
	OTPWritten             bool
	OTPKept                bool // patch dejó la OTP existente sin verificar su secreto
	OTPDeleted             int
	RequiredActionsCleared bool

	GroupsJoined  []string
	GroupsPresent []string
	GroupsSkipped []string
}

// Reconciler es seguro para reusar entre identidades distintas.
type Reconciler struct {
	api   AdminAPI
	opts  Options
	sleep func(ctx context.Context, d time.Duration) error
}

// New construye un Reconciler; Strategy vacía equivale a patch.
func New(api AdminAPI, opts Options) *Reconciler {
	if opts.Strategy == "" {
		opts.Strategy = StrategyIdempotentPatch
	}
	if opts.OTPLabel == "" {
		opts.OTPLabel = defaultOTPLabel
	}
	if opts.Params.Digits == 0 {
		opts.Params = totp.DefaultParams
	}
	return &Reconciler{api: api, opts: opts, sleep: sleepCtx}
}

// Strategy devuelve la estrategia efectiva.
func (r *Reconciler) Strategy() Strategy { return r.opts.Strategy }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Reconcile ejecuta la máquina de estados completa para d.
func (r *Reconciler) Reconcile(ctx context.Context, d Desired) (*Result, error) {
	res := &Result{Strategy: r.opts.Strategy, State: StateStart}
	ctx, _ = logger.With(ctx,
		logger.Username(d.Username),
		logger.Strategy(r.opts.Strategy.String()),
	)
	log := rlog(ctx)

	if d.Username == "" {
		return res, fmt.Errorf("reconcile: username required")
	}
	value, encoding := d.Secret.IdPSecret()
	otp, err := admin.OTPCredential(value, encoding, r.opts.OTPLabel, r.opts.Params)
	if err != nil {
		return res, fmt.Errorf("reconcile: %w", err)
	}

	// Start → Authenticated
	if _, err := r.api.Token(ctx); err != nil {
		return res, r.abort(ctx, res, ErrAuthFailed, err)
	}
	res.State = StateAuthenticated

	// Authenticated → IdentityResolved (→ CredentialsConverged en recreate)
	var user *admin.User
	switch r.opts.Strategy {
	case StrategyDestructiveRecreate:
		user, err = r.recreate(ctx, d, otp, res)
	case StrategyIdempotentPatch:
		user, err = r.resolveExisting(ctx, d, res)
		if err == nil {
			res.UserID = user.ID
			res.State = StateIdentityResolved
			err = r.patchCredentials(ctx, d, otp, res)
		}
	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownStrategy, r.opts.Strategy)
	}
	if err != nil {
		return res, err
	}

	if err := r.clearConfigureTOTP(ctx, user, res); err != nil {
		return res, err
	}
	res.State = StateCredentialsConverged

	r.convergeGroups(ctx, d, res)
	res.State = StateGroupsConverged

	res.State = StateDone
	log.Info("identity converged",
		logger.UserID(res.UserID),
		logger.Bool("password_written", res.PasswordWritten),
		logger.Bool("otp_written", res.OTPWritten),
		logger.Count(len(res.GroupsJoined)),
	)
	return res, nil
}

// rlog es el logger de ctx con la capa reconcile; la capa no viaja en ctx.
func rlog(ctx context.Context) *zap.Logger {
	return logger.From(ctx).With(logger.Layer("reconcile"))
}

// abort pasa res a Aborted y devuelve el *AbortError correspondiente.
func (r *Reconciler) abort(ctx context.Context, res *Result, reason, err error) error {
	ae := &AbortError{State: res.State, Reason: reason, Err: err}
	res.State = StateAborted
	rlog(ctx).Error("reconcile aborted",
		logger.State(string(ae.State)),
		zap.NamedError("reason", reason),
		logger.Status(admin.StatusOf(err)),
		logger.Err(err),
	)
	return ae
}

func (r *Reconciler) resolveExisting(ctx context.Context, d Desired, res *Result) (*admin.User, error) {
	u, err := r.api.FindUser(ctx, d.Username)
	if err != nil {
		return nil, r.abort(ctx, res, ErrLookupFailed, err)
	}
	if u == nil {
		return nil, r.abort(ctx, res, ErrIdentityMissing, fmt.Errorf("no identity with username %q", d.Username))
	}
	return u, nil
}

// clearConfigureTOTP saca CONFIGURE_TOTP de las acciones pendientes, preservando
// el resto. El user recibido puede estar desactualizado; se relee.
func (r *Reconciler) clearConfigureTOTP(ctx context.Context, user *admin.User, res *Result) error {
	current, err := r.api.GetUser(ctx, user.ID)
	if err != nil {
		return r.abort(ctx, res, ErrCredentialWriteFailed, err)
	}
	if !current.HasRequiredAction(admin.RequiredActionConfigureTOTP) {
		return nil
	}
	keep := make([]string, 0, len(current.RequiredActions))
	for _, a := range current.RequiredActions {
		if a != admin.RequiredActionConfigureTOTP {
			keep = append(keep, a)
		}
	}
	if err := r.api.SetRequiredActions(ctx, user.ID, keep); err != nil {
		return r.abort(ctx, res, ErrCredentialWriteFailed, err)
	}
	res.RequiredActionsCleared = true
	rlog(ctx).Debug("cleared pending otp setup", logger.UserID(user.ID))
	return nil
}
