// Package registry is the authoritative package database.
//
// It maps package names to records holding split sets, signing history,
// SDK library edges and per-user state (installed, archived, enabled
// settings). Every mutation runs under the registry's write lock and is
// published on the broadcast bus before the lock is released, so
// subscribers see a package's transitions in commit order.
//
// Components:
//   - Registry: queries, install commits, uninstall, enable settings
//   - Archive: archive preconditions and archived metadata
//   - Libraries: SDK library graph and delayed pruning
//   - Seeder: installs preinstalled APKs from a system directory
//   - Dump: the `pm dump` text form
//
// Storage Structure:
//   - Code: <root>/app/<pkg>/base.apk, split_<name>.apk
//   - Data: <root>/data/user/<uid>/<pkg> and <root>/data/user_de/<uid>/<pkg>
//   - Records: optional Store, saved after every mutation
//
// Example Usage:
//
//	reg := registry.New(root, bus, registry.WithLogger(log))
//	plan, err := reg.Prepare(req)
//	plan, err = reg.Commit(req)
//	info, err := reg.GetPackageInfo(types.SystemCaller, "com.example", 0, 0)
package registry
