package registry

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/apk"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Seeder installs the preinstalled APKs of a system image directory on
// startup. Each package's base and splits are committed together for all
// users; packages already known at the same version are left alone.
type Seeder struct {
	registry  *Registry
	systemDir string
	logger    *zap.Logger
}

// NewSeeder creates a seeder for systemDir.
func NewSeeder(registry *Registry, systemDir string, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{registry: registry, systemDir: systemDir, logger: logger}
}

// SeedResult counts seeded packages.
type SeedResult struct {
	Installed []string
	Skipped   []string
	Failed    map[string]error
}

// Seed scans the system directory and installs what it finds.
func (s *Seeder) Seed(ctx context.Context) (*SeedResult, error) {
	res := &SeedResult{Failed: make(map[string]error)}
	if s.systemDir == "" {
		return res, nil
	}
	if _, err := os.Stat(s.systemDir); os.IsNotExist(err) {
		s.logger.Warn("system directory not found", zap.String("dir", s.systemDir))
		return res, nil
	}

	inputs, err := s.collect()
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return res, nil
	}

	parsed, err := apk.ParseAll(ctx, inputs)
	if err != nil {
		return nil, err
	}

	byPackage := make(map[string][]*apk.Apk)
	payloads := make(map[string][]byte, len(inputs))
	for i, a := range parsed {
		byPackage[a.InstalledName()] = append(byPackage[a.InstalledName()], a)
		payloads[a.File] = inputs[i].Data
	}

	names := make([]string, 0, len(byPackage))
	for name := range byPackage {
		names = append(names, name)
	}
	// Libraries first so that system packages depending on them resolve.
	sort.Slice(names, func(i, j int) bool {
		li := byPackage[names[i]][0].SdkLibrary != nil
		lj := byPackage[names[j]][0].SdkLibrary != nil
		if li != lj {
			return li
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		apks := byPackage[name]
		if rec, ok := s.registry.Record(name); ok && rec.Manifest.VersionCode >= apks[0].VersionCode {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		req := InstallRequest{
			Mode:     types.ModeFullInstall,
			Apks:     apks,
			Payloads: make(map[string][]byte, len(apks)),
			UserID:   types.AllUsers,
		}
		for _, a := range apks {
			req.Payloads[a.File] = payloads[a.File]
		}
		if _, err := s.registry.Commit(req); err != nil {
			s.logger.Warn("failed to seed package", logging.Package(name), zap.Error(err))
			res.Failed[name] = err
			continue
		}
		res.Installed = append(res.Installed, name)
	}

	s.logger.Info("seeding complete",
		zap.String("dir", s.systemDir),
		zap.Int("installed", len(res.Installed)),
		zap.Int("skipped", len(res.Skipped)),
		zap.Int("failed", len(res.Failed)))
	return res, nil
}

func (s *Seeder) collect() ([]apk.Input, error) {
	var (
		mu     sync.Mutex
		inputs []apk.Input
	)
	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, s.systemDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".apk") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.systemDir, path)
		if err != nil {
			rel = d.Name()
		}
		mu.Lock()
		inputs = append(inputs, apk.Input{Name: filepath.ToSlash(rel), Data: data})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Name < inputs[j].Name })
	return inputs, nil
}
