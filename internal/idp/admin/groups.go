package admin

import (
	"context"
	"net/http"
	"net/url"
)

// ListGroups devuelve todos los grupos del realm, aplanando subgrupos.
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	q := url.Values{}
	q.Set("briefRepresentation", "false")
	q.Set("max", "1000")

	var tree []Group
	if err := c.do(ctx, "list_groups", http.MethodGet, withQuery(c.realmURL("groups"), q), nil, &tree); err != nil {
		return nil, err
	}
	return Flatten(tree), nil
}

// ListUserGroups lista los grupos directos de la identidad.
func (c *Client) ListUserGroups(ctx context.Context, id string) ([]Group, error) {
	var gs []Group
	if err := c.do(ctx, "list_user_groups", http.MethodGet, c.realmURL("users", id, "groups"), nil, &gs); err != nil {
		return nil, err
	}
	return gs, nil
}

// AddUserToGroup agrega la membresía. Es idempotente del lado del IdP.
func (c *Client) AddUserToGroup(ctx context.Context, id, groupID string) error {
	return c.do(ctx, "join_group", http.MethodPut, c.realmURL("users", id, "groups", groupID), nil, nil)
}

// Flatten recorre el árbol en preorden.
func Flatten(tree []Group) []Group {
	var out []Group
	var walk func([]Group)
	walk = func(gs []Group) {
		for _, g := range gs {
			sub := g.SubGroups
			g.SubGroups = nil
			out = append(out, g)
			walk(sub)
		}
	}
	walk(tree)
	return out
}
