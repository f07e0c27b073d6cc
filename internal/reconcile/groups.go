package reconcile

import (
	"context"
	"strings"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
	"github.com/dropDatabas3/totpsync/internal/observability/logger"
)

// convergeGroups es best-effort: nada de lo que pase acá aborta la corrida.
func (r *Reconciler) convergeGroups(ctx context.Context, d Desired, res *Result) {
	wanted := uniq(d.Groups)
	if len(wanted) == 0 {
		return
	}
	log := rlog(ctx).With(logger.Op("groups"))

	all, err := r.api.ListGroups(ctx)
	if err != nil {
		log.Warn("group listing failed; skipping group assignment", logger.Status(admin.StatusOf(err)), logger.Err(err))
		res.GroupsSkipped = append(res.GroupsSkipped, wanted...)
		return
	}

	have := map[string]bool{}
	if mine, err := r.api.ListUserGroups(ctx, res.UserID); err != nil {
		// El PUT de membresía es idempotente; sin el listado sólo se pierde el atajo.
		log.Warn("user group listing failed", logger.Err(err))
	} else {
		for _, g := range mine {
			have[g.ID] = true
		}
	}

	for _, name := range wanted {
		g, ok := matchGroup(all, name)
		if !ok {
			log.Warn("group not found; skipping", logger.Group(name))
			res.GroupsSkipped = append(res.GroupsSkipped, name)
			continue
		}
		if have[g.ID] {
			res.GroupsPresent = append(res.GroupsPresent, name)
			continue
		}
		if err := r.api.AddUserToGroup(ctx, res.UserID, g.ID); err != nil {
			log.Warn("group membership failed; skipping",
				logger.Group(name),
				logger.Status(admin.StatusOf(err)),
				logger.Err(err),
			)
			res.GroupsSkipped = append(res.GroupsSkipped, name)
			continue
		}
		res.GroupsJoined = append(res.GroupsJoined, name)
	}
}

// matchGroup busca por path exacto y después por nombre (primer match en preorden).
func matchGroup(groups []admin.Group, want string) (admin.Group, bool) {
	if strings.HasPrefix(want, "/") {
		for _, g := range groups {
			if g.Path == want {
				return g, true
			}
		}
		return admin.Group{}, false
	}
	for _, g := range groups {
		if g.Name == want {
			return g, true
		}
	}
	return admin.Group{}, false
}

func uniq(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
