package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DefaultTouchLimit bounds touch listings when no limit is given.
const DefaultTouchLimit = 100

// Touch records one fired trigger.
type Touch struct {
	ID       string
	FlagID   string
	FlagName string
	Distance float64
	FingerX  float64
	FingerY  float64
	FiredAt  time.Time
}

// TouchRepository provides access to the touch history.
type TouchRepository struct {
	db *sql.DB
}

// Touches returns the touch repository for this store.
func (s *Store) Touches() *TouchRepository {
	return &TouchRepository{db: s.db}
}

// Create inserts t, assigning an ID when empty.
func (r *TouchRepository) Create(t *Touch) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := r.db.Exec(
		`INSERT INTO touches (id, flag_id, distance, finger_x, finger_y, fired_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.FlagID, t.Distance, t.FingerX, t.FingerY, t.FiredAt,
	)
	return err
}

// List returns the newest touches first, optionally restricted to one flag ID.
// A limit <= 0 uses DefaultTouchLimit.
func (r *TouchRepository) List(flagID string, limit int) ([]*Touch, error) {
	if limit <= 0 {
		limit = DefaultTouchLimit
	}

	query := `SELECT t.id, t.flag_id, f.name, t.distance, t.finger_x, t.finger_y, t.fired_at
		FROM touches t JOIN flags f ON f.id = t.flag_id`
	args := []any{}
	if flagID != "" {
		query += ` WHERE t.flag_id = ?`
		args = append(args, flagID)
	}
	query += ` ORDER BY t.fired_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var touches []*Touch
	for rows.Next() {
		t := &Touch{}
		if err := rows.Scan(&t.ID, &t.FlagID, &t.FlagName, &t.Distance, &t.FingerX, &t.FingerY, &t.FiredAt); err != nil {
			return nil, err
		}
		touches = append(touches, t)
	}

	return touches, rows.Err()
}

// Count returns the number of touches recorded for flagID.
func (r *TouchRepository) Count(flagID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM touches WHERE flag_id = ?`, flagID).Scan(&n)
	return n, err
}
