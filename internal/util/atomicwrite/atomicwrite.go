// Package atomicwrite escribe archivos de forma atómica desde el punto de vista
// del lector: o ve el contenido anterior completo, o el nuevo completo.
package atomicwrite

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Options controla permisos de archivo y directorio.
type Options struct {
	FileMode fs.FileMode // default 0600
	DirMode  fs.FileMode // default 0700
}

func (o Options) withDefaults() Options {
	if o.FileMode == 0 {
		o.FileMode = 0o600
	}
	if o.DirMode == 0 {
		o.DirMode = 0o700
	}
	return o
}

// WriteFile escribe data en path.
// Pasos: mkdir → write tmp (mismo dir) → Sync → Close → Chmod → Rename.
//
// En Windows os.Rename puede fallar si el destino está bloqueado; en ese caso
// se intenta remove+rename. El tmp se crea en el mismo directorio para que el
// rename no cruce filesystems.
func WriteFile(path string, data []byte, opts Options) error {
	opts = opts.withDefaults()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, opts.DirMode); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()

	// Cleanup en caso de error (después del rename el Remove es no-op)
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Chmod(tmpPath, opts.FileMode); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(path)
		if err2 := os.Rename(tmpPath, path); err2 != nil {
			return fmt.Errorf("rename: %v (after remove: %v)", err, err2)
		}
	}
	return nil
}

// WriteString es WriteFile para contenido de texto.
func WriteString(path, content string, opts Options) error {
	return WriteFile(path, []byte(content), opts)
}
