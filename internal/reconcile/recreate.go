package reconcile

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
)

// recreate borra la identidad si existe y la vuelve a crear con password y
// OTP en un único partialImport. El id nuevo siempre difiere del anterior.
func (r *Reconciler) recreate(ctx context.Context, d Desired, otp admin.Credential, res *Result) (*admin.User, error) {
	log := rlog(ctx)

	existing, err := r.api.FindUser(ctx, d.Username)
	if err != nil {
		return nil, r.abort(ctx, res, ErrLookupFailed, err)
	}
	if existing != nil {
		res.PreviousUserID = existing.ID
		if err := r.api.DeleteUser(ctx, existing.ID); err != nil && !admin.IsNotFound(err) {
			return nil, r.abort(ctx, res, ErrImportFailed, err)
		}
		log.Info("deleted existing identity", logger.UserID(existing.ID))
		if err := r.sleep(ctx, r.opts.PropagationDelay); err != nil {
			return nil, r.abort(ctx, res, ErrImportFailed, err)
		}
	}

	creds := make([]admin.Credential, 0, 2)
	if d.Password != "" {
		creds = append(creds, admin.PasswordCredential(d.Password, false))
	}
	creds = append(creds, otp)

	// Los grupos no viajan en el import: un grupo inexistente haría fallar
	// todo el request, y su asignación es best-effort.
	user := admin.User{
		Username:      d.Username,
		Enabled:       true,
		EmailVerified: true,
		Email:         d.Email,
		FirstName:     d.FirstName,
		LastName:      d.LastName,
		Attributes:    d.Attributes,
		Credentials:   creds,
	}
	out, err := r.api.PartialImport(ctx, admin.ImportRequest{
		IfResourceExists: admin.IfExistsOverwrite,
		Users:            []admin.User{user},
	})
	if err != nil {
		return nil, r.abort(ctx, res, ErrImportFailed, err)
	}
	if out.Changed() < 1 {
		return nil, r.abort(ctx, res, ErrImportFailed,
			fmt.Errorf("import reported added=%d overwritten=%d skipped=%d", out.Added, out.Overwritten, out.Skipped))
	}

	created, err := r.api.FindUser(ctx, d.Username)
	if err != nil {
		return nil, r.abort(ctx, res, ErrLookupFailed, err)
	}
	if created == nil {
		return nil, r.abort(ctx, res, ErrImportFailed, fmt.Errorf("identity %q not visible after import", d.Username))
	}

	res.UserID = created.ID
	res.State = StateIdentityResolved
	res.PasswordWritten = d.Password != ""
	res.OTPWritten = true
	log.Info("identity recreated",
		logger.UserID(created.ID),
		logger.String("previous_user_id", res.PreviousUserID),
		logger.Int("added", out.Added),
		logger.Int("overwritten", out.Overwritten),
	)
	return created, nil
}
