package apk

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/zip"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/paths"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/pmerr"
	"github.com/GriffinCanCode/pkgmgr/internal/shared/utils"
)

// maxIconBytes bounds icon payloads kept in archive metadata.
const maxIconBytes = 256 << 10

var labelPolicy = bluemonday.StrictPolicy()

// Apk is a parsed APK file.
type Apk struct {
	Manifest
	// File is the session file name the APK came from.
	File   string
	Size   int64
	Digest string
	Icons  map[string][]byte
}

// Input is a named APK payload.
type Input struct {
	Name string
	Data []byte
}

// Parse validates an APK payload and decodes its manifest.
func Parse(name string, data []byte) (*Apk, error) {
	if !isZip(data) {
		return nil, pmerr.New(pmerr.NotApk, "Failed to parse %s", name)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, pmerr.Wrap(pmerr.NotApk, err, "Failed to parse %s", name)
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	mf, ok := entries[ManifestEntry]
	if !ok {
		return nil, pmerr.New(pmerr.InvalidApk, "%s has no %s", name, ManifestEntry)
	}
	raw, err := readEntry(mf, 1<<20)
	if err != nil {
		return nil, pmerr.Wrap(pmerr.InvalidApk, err, "failed to read manifest of %s", name)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, pmerr.Wrap(pmerr.InvalidApk, err, "failed to parse manifest of %s", name)
	}
	if err := validate(&m); err != nil {
		return nil, pmerr.Wrap(pmerr.InvalidApk, err, "%s", name)
	}
	normalize(&m)

	a := &Apk{
		Manifest: m,
		File:     name,
		Size:     int64(len(data)),
		Digest:   utils.DefaultHasher().Hash(data),
		Icons:    make(map[string][]byte),
	}

	for _, act := range m.Activities {
		if act.Icon == "" {
			continue
		}
		f, ok := entries[act.Icon]
		if !ok {
			continue
		}
		icon, err := readEntry(f, maxIconBytes)
		if err != nil {
			return nil, pmerr.Wrap(pmerr.InvalidApk, err, "failed to read icon %s", act.Icon)
		}
		a.Icons[act.Icon] = icon
	}

	return a, nil
}

// ParseAll parses a set of APKs concurrently, preserving input order.
func ParseAll(ctx context.Context, inputs []Input) ([]*Apk, error) {
	out := make([]*Apk, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, in := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := Parse(in.Name, in.Data)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func isZip(data []byte) bool {
	for mt := mimetype.Detect(data); mt != nil; mt = mt.Parent() {
		if mt.Is("application/zip") {
			return true
		}
	}
	return false
}

func readEntry(f *zip.File, limit int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, limit))
}

func validate(m *Manifest) error {
	if m.Package == "" {
		return fmt.Errorf("manifest has no package")
	}
	if m.VersionCode < 0 {
		return fmt.Errorf("negative versionCode %d", m.VersionCode)
	}
	if len(m.Certificates) == 0 {
		return fmt.Errorf("package %s is not signed", m.Package)
	}
	if err := paths.ValidatePackage(m.Package); err != nil {
		return err
	}
	if m.Split != "" {
		if m.Split == BaseSplit {
			return fmt.Errorf("split name %q is reserved", BaseSplit)
		}
		if err := paths.ValidateSplit(m.Split); err != nil {
			return err
		}
	}
	if m.SdkLibrary != nil && (m.SdkLibrary.Name == "" || m.SdkLibrary.Major < 0) {
		return fmt.Errorf("invalid sdk library declaration")
	}
	return nil
}

func normalize(m *Manifest) {
	m.Application.Label = sanitize(m.Application.Label)
	for i := range m.Activities {
		m.Activities[i].Name = m.ClassName(m.Activities[i].Name)
		m.Activities[i].Label = sanitize(m.Activities[i].Label)
	}
	for i := range m.Receivers {
		m.Receivers[i].Name = m.ClassName(m.Receivers[i].Name)
	}
}

func sanitize(label string) string {
	return strings.TrimSpace(labelPolicy.Sanitize(label))
}
