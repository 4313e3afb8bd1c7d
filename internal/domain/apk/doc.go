// Package apk parses APK payloads.
//
// An APK is a zip archive carrying an AndroidManifest.yml descriptor plus
// arbitrary resources. Parse sniffs the payload first so non-archives fail
// with INSTALL_PARSE_FAILED_NOT_APK before any decoding, then decodes the
// manifest, resolves component class names against the package, strips
// markup from labels and pulls referenced launcher icons out of the archive.
package apk
