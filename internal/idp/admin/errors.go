package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrConfig se devuelve cuando el cliente no tiene lo mínimo para autenticarse.
	ErrConfig = errors.New("admin: invalid client configuration")
	// ErrNoToken indica una respuesta 2xx del token endpoint sin access_token.
	ErrNoToken = errors.New("admin: token response without access_token")
)

const maxBodyInError = 512

// APIError es cualquier respuesta no-2xx del IdP. Lleva el status y el cuerpo
// para que el error terminal sea diagnosticable sin re-ejecutar.
type APIError struct {
	Op     string
	Method string
	URL    string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError] + "..."
	}
	if body == "" {
		return fmt.Sprintf("admin %s: %s %s: HTTP %d", e.Op, e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("admin %s: %s %s: HTTP %d: %s", e.Op, e.Method, e.URL, e.Status, body)
}

// StatusOf devuelve el status HTTP de un *APIError en la cadena, o 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// IsNotFound reporta si err es un 404 del IdP.
func IsNotFound(err error) bool { return StatusOf(err) == http.StatusNotFound }

// IsUnauthorized reporta si err es un 401/403 del IdP.
func IsUnauthorized(err error) bool {
	s := StatusOf(err)
	return s == http.StatusUnauthorized || s == http.StatusForbidden
}
