package idptest

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/totpsync/internal/idp/admin"
	"github.com/dropDatabas3/totpsync/internal/security/totp"
)

// AddGroup crea un grupo de primer nivel y devuelve su id.
func (s *Server) AddGroup(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := admin.Group{ID: uuid.NewString(), Name: name, Path: "/" + name}
	s.groups = append(s.groups, g)
	return g.ID
}

// AddSubGroup crea un subgrupo bajo el grupo de primer nivel parentID.
func (s *Server) AddSubGroup(parentID, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].ID == parentID {
			g := admin.Group{ID: uuid.NewString(), Name: name, Path: s.groups[i].Path + "/" + name}
			s.groups[i].SubGroups = append(s.groups[i].SubGroups, g)
			return g.ID
		}
	}
	return ""
}

// SeedUser registra una identidad preexistente con sus credenciales.
func (s *Server) SeedUser(u admin.User, creds ...admin.Credential) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Credentials = creds
	return s.newRecordLocked(u).user.ID
}

// Snapshot es el estado completo de una identidad, con secretos incluidos.
type Snapshot struct {
	User        admin.User
	Credentials []admin.Credential
	GroupNames  []string
}

// OTP devuelve las credenciales otp/totp.
func (sn Snapshot) OTP() []admin.Credential {
	var out []admin.Credential
	for _, c := range sn.Credentials {
		if c.Type == admin.CredentialTypeOTP || c.Type == admin.CredentialTypeTOTP {
			out = append(out, c)
		}
	}
	return out
}

// Lookup devuelve el estado de username.
func (s *Server) Lookup(username string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.lookupLocked(username)
	if rec == nil {
		return Snapshot{}, false
	}
	sn := Snapshot{User: rec.user, Credentials: append([]admin.Credential(nil), rec.creds...)}
	for gid := range rec.groups {
		if g, ok := s.groupByIDLocked(gid); ok {
			sn.GroupNames = append(sn.GroupNames, g.Name)
		}
	}
	return sn, true
}

// ValidateOTP verifica code como lo hace el IdP: el secretData.value se usa
// como clave HMAC tal cual, salvo que credentialData.secretEncoding sea BASE32.
func (s *Server) ValidateOTP(username, code string, at time.Time) bool {
	sn, ok := s.Lookup(username)
	if !ok {
		return false
	}
	for _, c := range sn.OTP() {
		var sd admin.OTPSecretData
		if err := json.Unmarshal([]byte(c.SecretData), &sd); err != nil {
			continue
		}
		var cd admin.OTPCredentialData
		if c.CredentialData != "" {
			if err := json.Unmarshal([]byte(c.CredentialData), &cd); err != nil {
				continue
			}
		}
		key, err := cd.Key(sd.Value)
		if err != nil {
			continue
		}
		if ok, _ := totp.Verify(key, code, at, 1, nil, totp.DefaultParams); ok {
			return true
		}
	}
	return false
}
