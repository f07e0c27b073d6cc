package otpsecret

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dropDatabas3/totpsync/internal/security/base32"
)

// Format indica cómo se interpretó el secreto de origen.
type Format string

const (
	FormatBase32 Format = "base32"
	FormatRaw    Format = "raw"
)

// ErrBridgeMismatch indica que Decode(Base32) != Raw.
var ErrBridgeMismatch = errors.New("otpsecret: base32 representation does not decode to raw bytes")

// SecretEncodingBase32 es el credentialData.secretEncoding con el que el IdP
// decodifica secretData.value antes del HMAC. Sin encoding, la clave son los
// bytes UTF-8 del value.
const SecretEncodingBase32 = "BASE32"

// Representation son las dos formas del mismo secreto.
//
//   - Raw: bytes que el IdP guarda literalmente y usa como clave HMAC.
//   - Base32: lo que leen los generadores que decodifican Base32 antes del HMAC.
//
// Invariante: base32.Decode(Base32) == Raw.
type Representation struct {
	Raw    []byte
	Base32 string
	Format Format
}

// Bridge computes both representations of source.
// Precondition: source is non-empty; empty secrets are a configuration error
// handled by the caller.
func (d Detector) Bridge(source string) Representation {
	if d.IsBase32(source) {
		// El patrón sólo admite símbolos del alfabeto y padding final, así que
		// Decode no puede fallar. Si algún día falla, tratamos el valor como texto.
		if raw, err := base32.Decode(source); err == nil {
			return Representation{Raw: raw, Base32: source, Format: FormatBase32}
		}
	}
	raw := []byte(source)
	return Representation{Raw: raw, Base32: base32.Encode(raw), Format: FormatRaw}
}

// Bridge uses the default detector.
func Bridge(source string) Representation {
	return Detector{}.Bridge(source)
}

// Verify re-checks the bridging invariant.
func (r Representation) Verify() error {
	decoded, err := base32.Decode(r.Base32)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBridgeMismatch, err)
	}
	if !bytes.Equal(decoded, r.Raw) {
		return ErrBridgeMismatch
	}
	return nil
}

// IdPSecret devuelve el secretData.value a enviar y su secretEncoding.
//
// Un seed Base32, o bytes crudos que no son UTF-8 válido, viajan como Base32
// canónico con encoding BASE32: el IdP los decodifica a los mismos bytes Raw.
// Un secreto de texto viaja literal y sin encoding.
func (r Representation) IdPSecret() (value, encoding string) {
	if r.Format == FormatBase32 || !utf8.Valid(r.Raw) {
		return base32.Encode(r.Raw), SecretEncodingBase32
	}
	return string(r.Raw), ""
}
