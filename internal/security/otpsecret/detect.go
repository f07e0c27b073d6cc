// Package otpsecret clasifica semillas OTP y calcula las dos representaciones
// que deben guardarse para que el IdP y los generadores de códigos usen la
// misma clave HMAC.
package otpsecret

import "regexp"

// DefaultMinBase32Length es el largo mínimo para considerar que un string es
// Base32. Es una heurística: strings cortos del alfabeto restringido suelen ser
// coincidencias y no datos codificados. No es un requisito de RFC 4648.
const DefaultMinBase32Length = 8

var base32Pattern = regexp.MustCompile(`^[A-Z2-7]+=*$`)

// Detector clasifica secretos como Base32 o texto plano.
// Es un clasificador best-effort, no un validador: la entrada viene de
// configuración confiable.
type Detector struct {
	// MinLength overrides DefaultMinBase32Length when > 0.
	MinLength int
}

func (d Detector) minLength() int {
	if d.MinLength > 0 {
		return d.MinLength
	}
	return DefaultMinBase32Length
}

// IsBase32 reports whether s looks like Base32-encoded data.
func (d Detector) IsBase32(s string) bool {
	if len(s) < d.minLength() {
		return false
	}
	return base32Pattern.MatchString(s)
}

// IsBase32 uses the default detector.
func IsBase32(s string) bool {
	return Detector{}.IsBase32(s)
}
