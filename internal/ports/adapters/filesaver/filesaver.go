// Package filesaver writes exported files into a directory.
package filesaver

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/clipcast/internal/ports"
)

type Saver struct {
	dir string
}

func New(dir string) *Saver {
	return &Saver{dir: dir}
}

// Save writes data as dir/name. An existing file is never overwritten: the
// name gets a numeric suffix instead, like "clip-1.webm".
func (s *Saver) Save(name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)
		}
		p := filepath.Join(s.dir, candidate)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := commit(p, f, data); err != nil {
			return "", err
		}
		return p, nil
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, s.dir)
}

// commit writes data and closes w. A file that was not fully written is
// removed.
func commit(p string, w io.WriteCloser, data []byte) error {
	_, err := w.Write(data)
	if err != nil {
		w.Close()
		err = fmt.Errorf("write %s: %w", p, err)
	} else if cerr := w.Close(); cerr != nil {
		err = fmt.Errorf("close %s: %w", p, cerr)
	}
	if err != nil {
		os.Remove(p)
	}
	return err
}

var _ ports.Saver = (*Saver)(nil)
