package reconcile

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
)

// CredentialSummary es lo visible de una credencial (sin secretos).
type CredentialSummary struct {
	ID    string
	Type  string
	Label string
}

// Verification es el resultado de Verify.
type Verification struct {
	UserID          string
	HasPassword     bool
	OTPCount        int
	PendingOTPSetup bool
	Credentials     []CredentialSummary
}

// HasOTP reporta si hay al menos una credencial OTP.
func (v Verification) HasOTP() bool { return v.OTPCount > 0 }

// OK: password, exactamente una OTP y nada pendiente.
func (v Verification) OK() bool {
	return v.HasPassword && v.OTPCount == 1 && !v.PendingOTPSetup
}

// Verify relee la identidad y sus credenciales sin modificar nada.
func (r *Reconciler) Verify(ctx context.Context, username string) (*Verification, error) {
	u, err := r.api.FindUser(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("verify %q: %w", username, err)
	}
	if u == nil {
		return nil, fmt.Errorf("verify %q: %w", username, ErrIdentityMissing)
	}
	creds, err := r.api.ListCredentials(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("verify %q: %w", username, err)
	}

	v := &Verification{
		UserID:          u.ID,
		PendingOTPSetup: u.HasRequiredAction(admin.RequiredActionConfigureTOTP),
	}
	for _, c := range creds {
		label := c.UserLabel
		if label == "" {
			label = "default"
		}
		v.Credentials = append(v.Credentials, CredentialSummary{ID: c.ID, Type: c.Type, Label: label})
		switch c.Type {
		case admin.CredentialTypePassword:
			v.HasPassword = true
		case admin.CredentialTypeOTP, admin.CredentialTypeTOTP:
			v.OTPCount++
		}
	}
	return v, nil
}
