package idptest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
)

// lookupLocked requiere s.mu tomado.
func (s *Server) lookupLocked(username string) *userRecord {
	for _, rec := range s.users {
		if strings.EqualFold(rec.user.Username, username) {
			return rec
		}
	}
	return nil
}

// groupByPathLocked requiere s.mu tomado.
func (s *Server) groupByPathLocked(path string) (admin.Group, bool) {
	for _, g := range admin.Flatten(s.groups) {
		if g.Path == path || "/"+g.Name == path || g.Name == path {
			return g, true
		}
	}
	return admin.Group{}, false
}

func (s *Server) groupByIDLocked(id string) (admin.Group, bool) {
	for _, g := range admin.Flatten(s.groups) {
		if g.ID == id {
			return g, true
		}
	}
	return admin.Group{}, false
}

func (s *Server) record(w http.ResponseWriter, r *http.Request) *userRecord {
	rec := s.users[chi.URLParam(r, "id")]
	if rec == nil {
		writeError(w, http.StatusNotFound, "User not found")
	}
	return rec
}

func (s *Server) handleFindUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []admin.User{}
	name := r.URL.Query().Get("username")
	exact := r.URL.Query().Get("exact") == "true"
	for _, rec := range s.users {
		u := strings.ToLower(rec.user.Username)
		if (exact && u == strings.ToLower(name)) || (!exact && strings.Contains(u, strings.ToLower(name))) {
			out = append(out, rec.user)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.record(w, r); rec != nil {
		writeJSON(w, http.StatusOK, rec.user)
	}
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.record(w, r); rec != nil {
		delete(s.users, rec.user.ID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleUpdateUser aplica sólo los campos presentes, como el IdP real.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(w, r)
	if rec == nil {
		return
	}

	var err error
	for k, v := range patch {
		switch k {
		case "requiredActions":
			var ra []string
			err = json.Unmarshal(v, &ra)
			rec.user.RequiredActions = ra
		case "enabled":
			err = json.Unmarshal(v, &rec.user.Enabled)
		case "emailVerified":
			err = json.Unmarshal(v, &rec.user.EmailVerified)
		case "email":
			err = json.Unmarshal(v, &rec.user.Email)
		case "firstName":
			err = json.Unmarshal(v, &rec.user.FirstName)
		case "lastName":
			err = json.Unmarshal(v, &rec.user.LastName)
		case "credentials":
			var creds []admin.Credential
			if err = json.Unmarshal(v, &creds); err == nil {
				for _, c := range creds {
					rec.creds = storeCredential(rec.creds, c)
				}
			}
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid field "+k)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// storeCredential: password reemplaza al anterior; el resto se agrega.
func storeCredential(creds []admin.Credential, c admin.Credential) []admin.Credential {
	c.ID = uuid.NewString()
	c.CreatedDate = time.Now().UnixMilli()
	if c.Type == admin.CredentialTypePassword {
		kept := creds[:0]
		for _, old := range creds {
			if old.Type != admin.CredentialTypePassword {
				kept = append(kept, old)
			}
		}
		creds = kept
	}
	return append(creds, c)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var c admin.Credential
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil || c.Value == "" {
		writeError(w, http.StatusBadRequest, "invalid password")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.record(w, r); rec != nil {
		c.Type = admin.CredentialTypePassword
		rec.creds = storeCredential(rec.creds, c)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleListCredentials oculta secretData y value, igual que el IdP real.
func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(w, r)
	if rec == nil {
		return
	}
	out := make([]admin.Credential, 0, len(rec.creds))
	for _, c := range rec.creds {
		c.SecretData = ""
		c.Value = ""
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(w, r)
	if rec == nil {
		return
	}
	cid := chi.URLParam(r, "cid")
	for i, c := range rec.creds {
		if c.ID == cid {
			rec.creds = append(rec.creds[:i], rec.creds[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Credential not found")
}

func (s *Server) handleUserGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(w, r)
	if rec == nil {
		return
	}
	out := []admin.Group{}
	for gid := range rec.groups {
		if g, ok := s.groupByIDLocked(gid); ok {
			out = append(out, g)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleJoinGroup(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(w, r)
	if rec == nil {
		return
	}
	gid := chi.URLParam(r, "gid")
	if _, ok := s.groupByIDLocked(gid); !ok {
		writeError(w, http.StatusNotFound, "Could not find group by id")
		return
	}
	rec.groups[gid] = true
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListGroups(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.groups)
}

type importResponse struct {
	admin.ImportResult
	Results []importEntry `json:"results"`
}

type importEntry struct {
	Action       string `json:"action"`
	ResourceType string `json:"resourceType"`
	ResourceName string `json:"resourceName"`
	ID           string `json:"id"`
}

// handlePartialImport: OVERWRITE borra y recrea (id nuevo), SKIP deja la
// identidad existente. Un grupo inexistente aborta todo el import.
func (s *Server) handlePartialImport(w http.ResponseWriter, r *http.Request) {
	var req admin.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range req.Users {
		for _, gp := range u.Groups {
			if _, ok := s.groupByPathLocked(gp); !ok {
				writeError(w, http.StatusInternalServerError, "Unable to find group specified by path: "+gp)
				return
			}
		}
	}

	resp := importResponse{Results: []importEntry{}}
	for _, u := range req.Users {
		action := "ADDED"
		if old := s.lookupLocked(u.Username); old != nil {
			if req.IfResourceExists == admin.IfExistsSkip {
				resp.Skipped++
				resp.Results = append(resp.Results, importEntry{"SKIPPED", "USER", u.Username, old.user.ID})
				continue
			}
			delete(s.users, old.user.ID)
			action = "OVERWRITTEN"
		}

		rec := s.newRecordLocked(u)
		if action == "ADDED" {
			resp.Added++
		} else {
			resp.Overwritten++
		}
		resp.Results = append(resp.Results, importEntry{action, "USER", u.Username, rec.user.ID})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) newRecordLocked(u admin.User) *userRecord {
	creds := u.Credentials
	groups := u.Groups
	u.Credentials = nil
	u.Groups = nil
	u.ID = uuid.NewString()

	rec := &userRecord{user: u, groups: map[string]bool{}}
	for _, c := range creds {
		rec.creds = storeCredential(rec.creds, c)
	}
	for _, gp := range groups {
		if g, ok := s.groupByPathLocked(gp); ok {
			rec.groups[g.ID] = true
		}
	}
	s.users[u.ID] = rec
	return rec
}
