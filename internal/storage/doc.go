/*
Package storage persists the package registry in SQLite.

Each package is one row holding a zstd-compressed JSON snapshot of its
registry record, plus a per-user index used for queries that do not need
the full record. The registry saves a package after every mutation and
reloads all snapshots at startup.

Example Usage:

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
	    return err
	}
	defer store.Close()

	reg := registry.New(cfg.Storage.DataRoot, bus, registry.WithStore(store))
	if err := reg.Load(ctx); err != nil {
	    return err
	}
*/
package storage
