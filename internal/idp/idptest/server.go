// Package idptest levanta un Admin API en memoria con el comportamiento del IdP
// que importa para aprovisionar: token, identidades, credenciales, grupos y
// partialImport. Permite inyectar fallas y contar llamadas por operación.
package idptest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
)

// Valores por defecto de la cuenta de servicio.
const (
	Realm         = "tamshai-corp"
	AdminUser     = "admin"
	AdminPassword = "admin-pass"
	ClientID      = "admin-cli"
)

var signingKey = []byte("idptest-signing-key")

type userRecord struct {
	user   admin.User
	creds  []admin.Credential
	groups map[string]bool
}

type failure struct {
	status    int
	body      string
	remaining int // <0 = siempre
}

// Server es el IdP falso. Los métodos son seguros para uso concurrente.
type Server struct {
	*httptest.Server

	// TokenTTL es el expires_in devuelto; 0 lo omite y deja sólo el exp del JWT.
	TokenTTL time.Duration
	// ClientSecret habilita client_credentials si no está vacío.
	ClientSecret string

	mu       sync.Mutex
	users    map[string]*userRecord
	groups   []admin.Group
	calls    map[string]int
	failures map[string]*failure
}

// New arranca el servidor y lo cierra al terminar el test.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		TokenTTL: 5 * time.Minute,
		users:    map[string]*userRecord{},
		calls:    map[string]int{},
		failures: map[string]*failure{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// BaseURL es la raíz que se le pasa al cliente admin.
func (s *Server) BaseURL() string { return s.URL + "/auth" }

// AdminConfig arma una configuración de cliente válida contra este servidor.
func (s *Server) AdminConfig() admin.Config {
	return admin.Config{
		BaseURL:   s.BaseURL(),
		Realm:     Realm,
		AuthRealm: "master",
		ClientID:  ClientID,
		Username:  AdminUser,
		Password:  AdminPassword,
		Timeout:   5 * time.Second,
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		r.Post("/realms/{authRealm}/protocol/openid-connect/token", s.op("token", s.handleToken))
		r.Route("/admin/realms/{realm}", func(r chi.Router) {
			r.Use(s.requireBearer)
			r.Get("/users", s.op("find_user", s.handleFindUser))
			r.Get("/users/{id}", s.op("get_user", s.handleGetUser))
			r.Put("/users/{id}", s.op("update_user", s.handleUpdateUser))
			r.Delete("/users/{id}", s.op("delete_user", s.handleDeleteUser))
			r.Put("/users/{id}/reset-password", s.op("reset_password", s.handleResetPassword))
			r.Get("/users/{id}/credentials", s.op("list_credentials", s.handleListCredentials))
			r.Delete("/users/{id}/credentials/{cid}", s.op("delete_credential", s.handleDeleteCredential))
			r.Get("/users/{id}/groups", s.op("list_user_groups", s.handleUserGroups))
			r.Put("/users/{id}/groups/{gid}", s.op("join_group", s.handleJoinGroup))
			r.Get("/groups", s.op("list_groups", s.handleListGroups))
			r.Post("/partialImport", s.op("partial_import", s.handlePartialImport))
		})
	})
	return r
}

// ─── Failure injection / contadores ───

// FailOn hace que la operación name responda status las próximas times veces
// (times < 0: siempre). name usa los mismos nombres de operación que el
// cliente admin (p.ej. "partial_import", "update_user").
func (s *Server) FailOn(name string, status int, body string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = &failure{status: status, body: body, remaining: times}
}

// Calls devuelve cuántas veces se invocó la operación.
func (s *Server) Calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

// ResetCalls pone los contadores en cero.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = map[string]int{}
}

func (s *Server) op(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		f := s.failures[name]
		if f != nil && f.remaining != 0 {
			if f.remaining > 0 {
				f.remaining--
			}
			status, body := f.status, f.body
			s.mu.Unlock()
			writeError(w, status, body)
			return
		}
		s.mu.Unlock()

		if chi.URLParam(r, "realm") != "" && chi.URLParam(r, "realm") != Realm {
			writeError(w, http.StatusNotFound, "Realm not found.")
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"errorMessage": msg})
}

// ─── Token ───

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	ok := false
	switch r.PostForm.Get("grant_type") {
	case "password":
		ok = r.PostForm.Get("client_id") == ClientID &&
			r.PostForm.Get("username") == AdminUser &&
			r.PostForm.Get("password") == AdminPassword
	case "client_credentials":
		ok = s.ClientSecret != "" && r.PostForm.Get("client_secret") == s.ClientSecret
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "invalid_grant",
			"error_description": "Invalid user credentials",
		})
		return
	}

	exp := s.TokenTTL
	if exp <= 0 {
		exp = 5 * time.Minute
	}
	claims := jwt.RegisteredClaims{
		Issuer:    s.BaseURL() + "/realms/" + chi.URLParam(r, "authRealm"),
		Subject:   AdminUser,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]any{"access_token": tok, "token_type": "Bearer"}
	if s.TokenTTL > 0 {
		resp["expires_in"] = int(s.TokenTTL / time.Second)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "HTTP 401 Unauthorized")
			return
		}
		_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return signingKey, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "HTTP 401 Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
