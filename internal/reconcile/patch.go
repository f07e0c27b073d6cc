package reconcile

import (
	"context"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
)

// patchCredentials converge password y OTP sobre una identidad existente.
//
// El listado del IdP no expone secretData, así que una OTP existente no se
// puede comparar con la deseada: se considera convergida si hay exactamente
// una de tipo otp y no se pidió ResetExisting.
func (r *Reconciler) patchCredentials(ctx context.Context, d Desired, otp admin.Credential, res *Result) error {
	log := rlog(ctx)

	creds, err := r.api.ListCredentials(ctx, res.UserID)
	if err != nil {
		return r.abort(ctx, res, ErrCredentialWriteFailed, err)
	}

	hasPassword := false
	var otps []admin.Credential
	for _, c := range creds {
		switch c.Type {
		case admin.CredentialTypePassword:
			hasPassword = true
		case admin.CredentialTypeOTP, admin.CredentialTypeTOTP:
			otps = append(otps, c)
		}
	}

	if !hasPassword || r.opts.ResetExisting {
		if d.Password == "" {
			log.Warn("no password configured; leaving password credential untouched")
		} else {
			if err := r.api.ResetPassword(ctx, res.UserID, d.Password, false); err != nil {
				return r.abort(ctx, res, ErrCredentialWriteFailed, err)
			}
			res.PasswordWritten = true
		}
	}

	if len(otps) == 1 && otps[0].Type == admin.CredentialTypeOTP && !r.opts.ResetExisting {
		res.OTPKept = true
		log.Warn("otp credential already present and left untouched; its secret cannot be compared, "+
			"so codes from the configured secret only match if it did not change (use --reset-existing to rotate)",
			logger.UserID(res.UserID),
			logger.String("credential_id", otps[0].ID),
		)
		return nil
	}

	// Duplicadas, parciales (tipo totp del import viejo) o rotación.
	for _, c := range otps {
		if err := r.api.DeleteCredential(ctx, res.UserID, c.ID); err != nil && !admin.IsNotFound(err) {
			return r.abort(ctx, res, ErrCredentialWriteFailed, err)
		}
		res.OTPDeleted++
	}

	if err := r.api.AddCredentials(ctx, res.UserID, otp); err != nil {
		return r.abort(ctx, res, ErrCredentialWriteFailed, err)
	}
	res.OTPWritten = true
	log.Info("otp credential written",
		logger.UserID(res.UserID),
		logger.Int("replaced", res.OTPDeleted),
	)
	return nil
}
