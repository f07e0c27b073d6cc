package admin

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// FindUser busca por username exacto. Devuelve (nil, nil) si no existe.
func (c *Client) FindUser(ctx context.Context, username string) (*User, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("exact", "true")

	var users []User
	if err := c.do(ctx, "find_user", http.MethodGet, withQuery(c.realmURL("users"), q), nil, &users); err != nil {
		return nil, err
	}
	// El IdP normaliza usernames a minúscula; exact=true no siempre se respeta
	// en versiones viejas, por eso se filtra igual.
	for i := range users {
		if strings.EqualFold(users[i].Username, username) {
			u := users[i]
			return &u, nil
		}
	}
	return nil, nil
}

// GetUser trae la representación completa.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := c.do(ctx, "get_user", http.MethodGet, c.realmURL("users", id), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser borra la identidad.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, "delete_user", http.MethodDelete, c.realmURL("users", id), nil, nil)
}

// PartialImport importa usuarios con la política ifExists.
func (c *Client) PartialImport(ctx context.Context, req ImportRequest) (ImportResult, error) {
	if req.IfResourceExists == "" {
		req.IfResourceExists = IfExistsOverwrite
	}
	var res ImportResult
	err := c.do(ctx, "partial_import", http.MethodPost, c.realmURL("partialImport"), req, &res)
	return res, err
}

// ResetPassword fija el password de la identidad.
func (c *Client) ResetPassword(ctx context.Context, id, password string, temporary bool) error {
	cred := PasswordCredential(password, temporary)
	return c.do(ctx, "reset_password", http.MethodPut, c.realmURL("users", id, "reset-password"), cred, nil)
}

// SetRequiredActions reemplaza la lista de acciones pendientes. Una lista vacía
// se envía como [] y limpia todas.
func (c *Client) SetRequiredActions(ctx context.Context, id string, actions []string) error {
	if actions == nil {
		actions = []string{}
	}
	body := map[string]any{"requiredActions": actions}
	return c.do(ctx, "update_user", http.MethodPut, c.realmURL("users", id), body, nil)
}
