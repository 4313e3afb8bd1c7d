package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/paths"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// layout maps packages onto the data root. See package paths for the
// directory structure.
type layout struct {
	root paths.Root
}

func (l layout) codeDir(name string) string {
	return l.root.Code(name)
}

func (l layout) createDataDirs(name string, user int) error {
	for _, dir := range l.root.DataDirs(name, user) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create data dir %s: %w", dir, err)
		}
	}
	return nil
}

func (l layout) removeDataDirs(name string, user int) error {
	for _, dir := range l.root.DataDirs(name, user) {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove data dir %s: %w", dir, err)
		}
	}
	return nil
}

// stageCode builds the next code directory next to the current one:
// inherited files are copied, new payloads written. The returned commit
// function swaps it in; discard removes it.
func (l layout) stageCode(name string, keep []string, payloads map[string][]byte) (commit func() error, discard func(), err error) {
	if err := paths.ValidatePackage(name); err != nil {
		return nil, nil, err
	}
	for _, file := range keep {
		if err := paths.ValidateFile(file); err != nil {
			return nil, nil, err
		}
	}
	for file := range payloads {
		if err := paths.ValidateFile(file); err != nil {
			return nil, nil, err
		}
	}
	dir := l.codeDir(name)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create app root: %w", err)
	}
	staged, err := os.MkdirTemp(filepath.Dir(dir), name+".tmp-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to stage code: %w", err)
	}
	discard = func() { os.RemoveAll(staged) }

	for _, file := range keep {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			discard()
			return nil, nil, fmt.Errorf("failed to inherit %s: %w", file, err)
		}
		if err := os.WriteFile(filepath.Join(staged, file), data, 0o644); err != nil {
			discard()
			return nil, nil, fmt.Errorf("failed to stage %s: %w", file, err)
		}
	}
	for file, data := range payloads {
		if err := os.WriteFile(filepath.Join(staged, file), data, 0o644); err != nil {
			discard()
			return nil, nil, fmt.Errorf("failed to stage %s: %w", file, err)
		}
	}

	commit = func() error {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to replace code: %w", err)
		}
		if err := os.Rename(staged, dir); err != nil {
			return fmt.Errorf("failed to install code: %w", err)
		}
		return nil
	}
	return commit, discard, nil
}

func (l layout) stripCode(name string) error {
	if err := os.RemoveAll(l.codeDir(name)); err != nil {
		return fmt.Errorf("failed to strip code of %s: %w", name, err)
	}
	return nil
}

// dirSize sums regular file sizes under dir. A missing dir is empty.
func dirSize(dir string) (int64, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}

	var total atomic.Int64
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total.Add(info.Size())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return total.Load(), nil
}

// StorageStats reports code and data bytes of a package for a user.
func (r *Registry) StorageStats(caller types.Caller, name string, user int) (types.StorageStats, error) {
	r.mu.RLock()
	if !r.visible(caller, user) {
		r.mu.RUnlock()
		return types.StorageStats{}, notFound(name)
	}
	rec, ok := r.packages[name]
	if !ok {
		r.mu.RUnlock()
		return types.StorageStats{}, notFound(name)
	}
	if _, ok := rec.Users[user]; !ok {
		r.mu.RUnlock()
		return types.StorageStats{}, notFound(name)
	}
	codeDir := r.layout.codeDir(name)
	dataDirs := r.layout.root.DataDirs(name, user)
	r.mu.RUnlock()

	code, err := dirSize(codeDir)
	if err != nil {
		return types.StorageStats{}, err
	}
	var data int64
	for _, dir := range dataDirs {
		n, err := dirSize(dir)
		if err != nil {
			return types.StorageStats{}, err
		}
		data += n
	}
	return types.StorageStats{CodeBytes: code, DataBytes: data}, nil
}
