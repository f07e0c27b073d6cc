package admin

import (
	"context"
	"net/http"
)

// ListCredentials lista las credenciales almacenadas de la identidad.
func (c *Client) ListCredentials(ctx context.Context, id string) ([]Credential, error) {
	var creds []Credential
	if err := c.do(ctx, "list_credentials", http.MethodGet, c.realmURL("users", id, "credentials"), nil, &creds); err != nil {
		return nil, err
	}
	return creds, nil
}

// DeleteCredential borra una credencial puntual.
func (c *Client) DeleteCredential(ctx context.Context, id, credentialID string) error {
	return c.do(ctx, "delete_credential", http.MethodDelete, c.realmURL("users", id, "credentials", credentialID), nil, nil)
}

// AddCredentials agrega credenciales vía update de la identidad. Las
// credenciales existentes del mismo tipo no se tocan; borrarlas es
// responsabilidad del llamador.
func (c *Client) AddCredentials(ctx context.Context, id string, creds ...Credential) error {
	if len(creds) == 0 {
		return nil
	}
	body := map[string]any{"credentials": creds}
	return c.do(ctx, "add_credentials", http.MethodPut, c.realmURL("users", id), body, nil)
}
