package util

import "strings"

// MaskSecret deja visibles los primeros y últimos 4 caracteres: "ORSX****GK5A".
// Secretos cortos se enmascaran por completo.
func MaskSecret(s string) string {
	r := []rune(strings.TrimSpace(s))
	switch {
	case len(r) == 0:
		return ""
	case len(r) <= 8:
		return "****"
	default:
		return string(r[:4]) + "****" + string(r[len(r)-4:])
	}
}

// MaskPassword nunca muestra contenido, sólo si está presente.
func MaskPassword(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
