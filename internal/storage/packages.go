package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/registry"
)

// SavePackage replaces the stored snapshot of rec.
func (s *Store) SavePackage(ctx context.Context, rec *registry.Record) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", rec.Name, err)
	}
	blob := s.enc.EncodeAll(data, nil)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO packages (name, version_code, installer, updated_at, snapshot)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			version_code = excluded.version_code,
			installer = excluded.installer,
			updated_at = excluded.updated_at,
			snapshot = excluded.snapshot`,
		rec.Name, rec.Manifest.VersionCode, rec.Installer, rec.LastUpdate.UnixMilli(), blob)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", rec.Name, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM package_users WHERE package = ?", rec.Name); err != nil {
		return fmt.Errorf("failed to clear users of %s: %w", rec.Name, err)
	}
	for user, st := range rec.Users {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO package_users (package, user_id, installed, archived) VALUES (?, ?, ?, ?)",
			rec.Name, user, st.Installed, st.Archive != nil)
		if err != nil {
			return fmt.Errorf("failed to save user %d of %s: %w", user, rec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", rec.Name, err)
	}
	return nil
}

// DeletePackage removes the snapshot of name. Deleting an unknown package
// is not an error.
func (s *Store) DeletePackage(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM package_users WHERE package = ?", name); err != nil {
		return fmt.Errorf("failed to delete users of %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM packages WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return tx.Commit()
}

// LoadPackages returns every stored record ordered by name.
func (s *Store) LoadPackages(ctx context.Context) ([]*registry.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, snapshot FROM packages ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query packages: %w", err)
	}
	defer rows.Close()

	var recs []*registry.Record
	for rows.Next() {
		var (
			name string
			blob []byte
		)
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		rec, err := s.decode(name, blob)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LoadPackage returns the stored record of name, or nil when absent.
func (s *Store) LoadPackage(ctx context.Context, name string) (*registry.Record, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, "SELECT snapshot FROM packages WHERE name = ?", name).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", name, err)
	}
	return s.decode(name, blob)
}

// PackagesForUser lists stored package names with an entry for user.
func (s *Store) PackagesForUser(ctx context.Context, user int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT package FROM package_users WHERE user_id = ? ORDER BY package", user)
	if err != nil {
		return nil, fmt.Errorf("failed to query user %d: %w", user, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Count returns the number of stored packages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM packages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count packages: %w", err)
	}
	return n, nil
}

func (s *Store) decode(name string, blob []byte) (*registry.Record, error) {
	data, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", name, err)
	}
	var rec registry.Record
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return &rec, nil
}

var _ registry.Store = (*Store)(nil)
