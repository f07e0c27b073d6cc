package secretcache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dropDatabas3/totpsync/internal/util/atomicwrite"
)

// FileStore guarda un archivo de texto por par con el Base32 exacto, sin
// salto de línea ni metadata. Directorio 0700, archivo 0600.
type FileStore struct {
	dir string
}

// NewFileStore no toca el disco; el directorio se crea en el primer Save.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = ".totp-secrets"
	}
	return &FileStore{dir: dir}
}

// Dir devuelve el directorio del cache.
func (s *FileStore) Dir() string { return s.dir }

// Path devuelve la ruta del archivo para el par.
func (s *FileStore) Path(username, environment string) string {
	return filepath.Join(s.dir, FileName(username, environment))
}

// FileName es determinístico: <username>.<environment>.totp. En username se
// reemplaza todo lo que no sea [A-Za-z0-9._-]; en environment también el
// punto, para que dos pares distintos nunca compartan archivo.
func FileName(username, environment string) string {
	return sanitize(username, true) + "." + sanitize(environment, false) + ".totp"
}

func sanitize(s string, allowDot bool) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == '.' && allowDot:
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}
	return out
}

func (s *FileStore) Save(_ context.Context, username, environment, secret string) error {
	return atomicwrite.WriteString(s.Path(username, environment), secret, atomicwrite.Options{})
}

func (s *FileStore) Load(_ context.Context, username, environment string) (string, error) {
	b, err := os.ReadFile(s.Path(username, environment))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(string(b))
	if v == "" {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *FileStore) Delete(_ context.Context, username, environment string) error {
	err := os.Remove(s.Path(username, environment))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
