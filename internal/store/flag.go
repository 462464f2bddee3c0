package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Flag is a registered flag.
type Flag struct {
	ID        string
	Name      string
	X, Y, Z   float64
	Threshold float64
	Cooldown  time.Duration
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FlagRepository provides access to flags.
type FlagRepository struct {
	db *sql.DB
}

// Flags returns the flag repository for this store.
func (s *Store) Flags() *FlagRepository {
	return &FlagRepository{db: s.db}
}

const flagColumns = `id, name, x, y, z, threshold, cooldown_ms, created_at, updated_at`

func scanFlag(row interface{ Scan(...any) error }) (*Flag, error) {
	f := &Flag{}
	var cooldownMs int64
	err := row.Scan(&f.ID, &f.Name, &f.X, &f.Y, &f.Z, &f.Threshold, &cooldownMs, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.Cooldown = time.Duration(cooldownMs) * time.Millisecond
	return f, nil
}

// Upsert inserts f, or updates the existing flag with the same name.
// f.ID is set to the stored ID either way.
func (r *FlagRepository) Upsert(f *Flag) error {
	existing, err := r.GetByName(f.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		now := time.Now()
		f.CreatedAt = now
		f.UpdatedAt = now
		_, err := r.db.Exec(
			`INSERT INTO flags (`+flagColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Name, f.X, f.Y, f.Z, f.Threshold, f.Cooldown.Milliseconds(), f.CreatedAt, f.UpdatedAt,
		)
		return err
	case err != nil:
		return err
	}

	f.ID = existing.ID
	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = time.Now()
	_, err = r.db.Exec(
		`UPDATE flags SET x = ?, y = ?, z = ?, threshold = ?, cooldown_ms = ?, updated_at = ? WHERE id = ?`,
		f.X, f.Y, f.Z, f.Threshold, f.Cooldown.Milliseconds(), f.UpdatedAt, f.ID,
	)
	return err
}

// GetByName retrieves a flag by its name.
func (r *FlagRepository) GetByName(name string) (*Flag, error) {
	f, err := scanFlag(r.db.QueryRow(`SELECT `+flagColumns+` FROM flags WHERE name = ?`, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// List retrieves all flags ordered by name.
func (r *FlagRepository) List() ([]*Flag, error) {
	rows, err := r.db.Query(`SELECT ` + flagColumns + ` FROM flags ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []*Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return flags, nil
}

// Delete removes a flag and its touches.
func (r *FlagRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM flags WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
