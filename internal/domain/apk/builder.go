package apk

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/zip"
)

// Build assembles an APK from a manifest and extra archive entries. The
// package manager uses it for fixtures and the shell's local installs.
func Build(m Manifest, extra map[string][]byte) ([]byte, error) {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeEntry(zw, ManifestEntry, raw); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writeEntry(zw, name, extra[name]); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

// MustBuild is Build for fixtures that cannot fail.
func MustBuild(m Manifest, extra map[string][]byte) []byte {
	b, err := Build(m, extra)
	if err != nil {
		panic(err)
	}
	return b
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
