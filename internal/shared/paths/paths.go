// Package paths provides the on-disk layout of a package manager data root.
package paths

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Directories under the data root
const (
	// AppDir holds one code directory per package
	AppDir = "app"

	// UserDir holds credential protected data, one tree per user
	UserDir = "data/user"

	// UserDEDir holds device protected data, one tree per user
	UserDEDir = "data/user_de"
)

// BaseFile is the on-disk name of the base split.
const BaseFile = "base.apk"

// Root resolves package paths under a data root
type Root string

// Code returns the package's code directory
func (r Root) Code(pkg string) string {
	return filepath.Join(string(r), AppDir, pkg)
}

// Data returns the package's credential protected data directory
func (r Root) Data(pkg string, user int) string {
	return filepath.Join(string(r), UserDir, strconv.Itoa(user), pkg)
}

// DeviceData returns the package's device protected data directory
func (r Root) DeviceData(pkg string, user int) string {
	return filepath.Join(string(r), UserDEDir, strconv.Itoa(user), pkg)
}

// DataDirs returns both data directories of a package for a user
func (r Root) DataDirs(pkg string, user int) []string {
	return []string{r.Data(pkg, user), r.DeviceData(pkg, user)}
}

// Contains reports whether path is inside the data root
func (r Root) Contains(path string) bool {
	rel, err := filepath.Rel(string(r), path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SplitFile returns the on-disk name of a split. "" and "base" name the
// base split.
func SplitFile(split string) string {
	if split == "" || split == "base" {
		return BaseFile
	}
	return "split_" + split + ".apk"
}

// ValidatePackage checks a package name is safe for path construction
func ValidatePackage(pkg string) error {
	return validName("package", pkg)
}

// ValidateSplit checks a split name is safe for path construction
func ValidateSplit(split string) error {
	return validName("split", split)
}

// ValidateFile checks a file name stays inside its directory
func ValidateFile(name string) error {
	return validName("file", name)
}

// validName accepts [A-Za-z0-9._-] without a leading dot or "..".
func validName(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s name cannot be empty", kind)
	}
	if s[0] == '.' || strings.Contains(s, "..") {
		return fmt.Errorf("%s name %q contains invalid path components", kind, s)
	}
	for _, c := range s {
		if !isNameChar(c) {
			return fmt.Errorf("%s name %q contains invalid character %q", kind, s, c)
		}
	}
	return nil
}

func isNameChar(c rune) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '.' || c == '_' || c == '-'
}
