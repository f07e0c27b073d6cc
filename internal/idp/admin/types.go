package admin

import (
	"encoding/json"
	"strings"

	"github.com/dropDatabas3/totpsync/internal/security/base32"
	"github.com/dropDatabas3/totpsync/internal/security/totp"
)

// Tipos de credencial del IdP.
const (
	CredentialTypePassword = "password"
	CredentialTypeOTP      = "otp"
	// CredentialTypeTOTP aparece cuando se importó con el formato plano viejo.
	CredentialTypeTOTP = "totp"
)

// RequiredActionConfigureTOTP es la acción pendiente que dispara el enrolamiento interactivo.
const RequiredActionConfigureTOTP = "CONFIGURE_TOTP"

// Import policies for ifResourceExists.
const (
	IfExistsOverwrite = "OVERWRITE"
	IfExistsSkip      = "SKIP"
)

// User es la representación de identidad del Admin API.
type User struct {
	ID              string              `json:"id,omitempty"`
	Username        string              `json:"username"`
	Enabled         bool                `json:"enabled"`
	EmailVerified   bool                `json:"emailVerified"`
	Email           string              `json:"email,omitempty"`
	FirstName       string              `json:"firstName,omitempty"`
	LastName        string              `json:"lastName,omitempty"`
	Attributes      map[string][]string `json:"attributes,omitempty"`
	Groups          []string            `json:"groups,omitempty"`
	RequiredActions []string            `json:"requiredActions,omitempty"`
	Credentials     []Credential        `json:"credentials,omitempty"`
}

// HasRequiredAction reporta si action está pendiente.
func (u User) HasRequiredAction(action string) bool {
	for _, a := range u.RequiredActions {
		if a == action {
			return true
		}
	}
	return false
}

// Credential sigue CredentialRepresentation. SecretData y CredentialData son
// strings con JSON embebido, como los espera el IdP.
type Credential struct {
	ID             string `json:"id,omitempty"`
	Type           string `json:"type"`
	UserLabel      string `json:"userLabel,omitempty"`
	Value          string `json:"value,omitempty"`
	Temporary      *bool  `json:"temporary,omitempty"`
	SecretData     string `json:"secretData,omitempty"`
	CredentialData string `json:"credentialData,omitempty"`
	CreatedDate    int64  `json:"createdDate,omitempty"`
}

// OTPSecretData es el JSON que va en Credential.SecretData.
type OTPSecretData struct {
	Value string `json:"value"`
}

// OTPCredentialData es el JSON que va en Credential.CredentialData.
type OTPCredentialData struct {
	SubType   string `json:"subType"`
	Digits    int    `json:"digits"`
	Period    int    `json:"period"`
	Algorithm string `json:"algorithm"`
	Counter   int    `json:"counter"`

	// SecretEncoding "BASE32" hace que el IdP decodifique secretData.value
	// antes del HMAC. Vacío: la clave son los bytes UTF-8 del value.
	SecretEncoding string `json:"secretEncoding,omitempty"`
}

// Key devuelve la clave HMAC que el IdP deriva de value según el encoding.
func (cd OTPCredentialData) Key(value string) ([]byte, error) {
	if strings.EqualFold(cd.SecretEncoding, "BASE32") {
		return base32.Decode(value)
	}
	return []byte(value), nil
}

// PasswordCredential arma una credencial de password.
func PasswordCredential(value string, temporary bool) Credential {
	return Credential{Type: CredentialTypePassword, Value: value, Temporary: &temporary}
}

// OTPCredential arma una credencial TOTP. Con encoding vacío el IdP usa secret
// como clave HMAC sin decodificar; con "BASE32" lo decodifica primero.
func OTPCredential(secret, encoding, label string, p totp.Params) (Credential, error) {
	if p.Digits == 0 {
		p = totp.DefaultParams
	}
	sd, err := json.Marshal(OTPSecretData{Value: secret})
	if err != nil {
		return Credential{}, err
	}
	cd, err := json.Marshal(OTPCredentialData{
		SubType:   "totp",
		Digits:    p.Digits,
		Period:    p.Period,
		Algorithm: p.Algorithm,
		Counter:   0,

		SecretEncoding: encoding,
	})
	if err != nil {
		return Credential{}, err
	}
	return Credential{
		Type:           CredentialTypeOTP,
		UserLabel:      label,
		SecretData:     string(sd),
		CredentialData: string(cd),
	}, nil
}

// Group es un grupo del realm. SubGroups viene anidado.
type Group struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Path      string  `json:"path,omitempty"`
	SubGroups []Group `json:"subGroups,omitempty"`
}

// ImportRequest es el cuerpo de partialImport.
type ImportRequest struct {
	IfResourceExists string `json:"ifResourceExists"`
	Users            []User `json:"users"`
}

// ImportResult son los contadores que devuelve partialImport.
type ImportResult struct {
	Added       int `json:"added"`
	Overwritten int `json:"overwritten"`
	Skipped     int `json:"skipped"`
}

// Changed reporta cuántos registros se crearon o sobrescribieron.
func (r ImportResult) Changed() int {
	return r.Added + r.Overwritten
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
