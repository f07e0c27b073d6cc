package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/totpsync/internal/security/base32"
)

// Params son los parámetros TOTP que se registran en el IdP.
type Params struct {
	Digits    int
	Period    int
	Algorithm string // nombre estilo Keycloak: HmacSHA1
}

// DefaultParams: 6 dígitos, 30s, HMAC-SHA1 (RFC 6238).
var DefaultParams = Params{Digits: 6, Period: 30, Algorithm: "HmacSHA1"}

func (p Params) normalized() Params {
	if p.Digits <= 0 {
		p.Digits = DefaultParams.Digits
	}
	if p.Period <= 0 {
		p.Period = DefaultParams.Period
	}
	if p.Algorithm == "" {
		p.Algorithm = DefaultParams.Algorithm
	}
	return p
}

// Counter retorna el contador de ventana para t.
func (p Params) Counter(t time.Time) int64 {
	return t.Unix() / int64(p.normalized().Period)
}

// Code genera el código usando key como clave HMAC tal cual (convención del IdP).
func Code(key []byte, t time.Time, p Params) string {
	p = p.normalized()
	return gen(key, p.Counter(t), p.Digits)
}

// CodeFromBase32 decodifica el secreto antes del HMAC (convención de los
// generadores de códigos de los tests).
func CodeFromBase32(secretB32 string, t time.Time, p Params) (string, error) {
	key, err := base32.Decode(strings.TrimSpace(secretB32))
	if err != nil {
		return "", err
	}
	return Code(key, t, p), nil
}

// Verify TOTP en ventana +/- windowSteps. Evita replay comparando el contador con lastCounterUsed.
func Verify(key []byte, code string, t time.Time, windowSteps int, lastCounterUsed *int64, p Params) (ok bool, counter int64) {
	p = p.normalized()
	code = strings.TrimSpace(code)
	if len(code) != p.Digits {
		return false, 0
	}
	counter = p.Counter(t)
	for c := counter - int64(windowSteps); c <= counter+int64(windowSteps); c++ {
		if lastCounterUsed != nil && c <= *lastCounterUsed {
			continue // anti-replay
		}
		if hmac.Equal([]byte(gen(key, c, p.Digits)), []byte(code)) {
			return true, c
		}
	}
	return false, 0
}

// OTPAuthURL construye otpauth:// para QR o para importar en un autenticador.
func OTPAuthURL(issuer, accountName, secretB32 string, p Params) string {
	p = p.normalized()
	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, accountName))
	q := url.Values{}
	q.Set("secret", strings.TrimRight(secretB32, "="))
	q.Set("issuer", issuer)
	q.Set("algorithm", strings.TrimPrefix(strings.ToUpper(p.Algorithm), "HMAC"))
	q.Set("digits", fmt.Sprint(p.Digits))
	q.Set("period", fmt.Sprint(p.Period))
	return fmt.Sprintf("otpauth://totp/%s?%s", label, q.Encode())
}

// HOTP(K, C) con HMAC-SHA1 (RFC 4226 / 6238).
func gen(key []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))
	m := hmac.New(sha1.New, key)
	_, _ = m.Write(msg[:])
	sum := m.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	bin := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])
	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, bin%mod)
}
