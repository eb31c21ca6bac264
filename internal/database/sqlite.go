package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/franckalain/nutritionbot/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed schema.sql schema_postgres.sql
var schemaFS embed.FS

// SQLiteDB implements Store on a local SQLite file
type SQLiteDB struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteDB opens (or creates) the database at dbPath and applies the schema
func NewSQLiteDB(dbPath string, log *zap.Logger) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	// A single connection keeps PRAGMAs and in-memory databases consistent.
	db.SetMaxOpenConns(1)

	// Enable foreign keys and WAL mode for better concurrency
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("error applying %q: %w", p, err)
		}
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}
	log.Info("sqlite database ready", zap.String("path", dbPath))

	return &SQLiteDB{db: db, log: log}, nil
}

func initializeSchema(db *sql.DB) error {
	schemaBytes, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("error reading schema file: %w", err)
	}

	if _, err := db.Exec(string(schemaBytes)); err != nil {
		return fmt.Errorf("error executing schema: %w", err)
	}
	return nil
}

// CreateUser inserts a profile unless one exists
func (s *SQLiteDB) CreateUser(ctx context.Context, user *models.UserProfile) error {
	query := `
		INSERT INTO users (
			user_id, display_name, calorie_goal, protein_goal, carbs_goal, fat_goal, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.DisplayName,
		user.Goals.Calories, user.Goals.Protein, user.Goals.Carbs, user.Goals.Fat,
		user.CreatedAt.UnixNano(),
	)
	return err
}

// GetUser retrieves a profile
func (s *SQLiteDB) GetUser(ctx context.Context, userID int64) (*models.UserProfile, error) {
	query := `
		SELECT user_id, display_name, calorie_goal, protein_goal, carbs_goal, fat_goal, created_at
		FROM users WHERE user_id = ?
	`

	user := &models.UserProfile{}
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.DisplayName,
		&user.Goals.Calories, &user.Goals.Protein, &user.Goals.Carbs, &user.Goals.Fat,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(0, createdAt)
	return user, nil
}

// UpdateGoals replaces the daily goals of a user
func (s *SQLiteDB) UpdateGoals(ctx context.Context, userID int64, goals models.Goals) error {
	query := `
		UPDATE users
		SET calorie_goal = ?, protein_goal = ?, carbs_goal = ?, fat_goal = ?
		WHERE user_id = ?
	`

	res, err := s.db.ExecContext(ctx, query, goals.Calories, goals.Protein, goals.Carbs, goals.Fat, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// InsertEntry stores one logged entry and returns its id
func (s *SQLiteDB) InsertEntry(ctx context.Context, entry *models.LoggedEntry) (string, error) {
	query := `
		INSERT INTO entries (
			id, user_id, food_name, quantity_grams, calories, protein, carbs, fat,
			barcode, source, logged_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.FoodName, entry.QuantityGrams,
		entry.Calories, entry.Protein, entry.Carbs, entry.Fat,
		entry.Barcode, string(entry.Source), entry.LoggedAt.UnixNano(),
	)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// DeleteEntry removes one entry by id
func (s *SQLiteDB) DeleteEntry(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, entryID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

const entryColumns = `id, user_id, food_name, quantity_grams, calories, protein, carbs, fat, barcode, source, logged_at`

// QueryEntries returns the entries of a user inside [from, to)
func (s *SQLiteDB) QueryEntries(ctx context.Context, userID int64, from, to time.Time) ([]*models.LoggedEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE user_id = ? AND logged_at >= ? AND logged_at < ?
		ORDER BY logged_at ASC, seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.LoggedEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, rows.Err()
}

// LastEntry returns the most recent entry of a user
func (s *SQLiteDB) LastEntry(ctx context.Context, userID int64) (*models.LoggedEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM entries
		WHERE user_id = ?
		ORDER BY logged_at DESC, seq DESC
		LIMIT 1
	`

	entry, err := scanEntry(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LoggedEntry, error) {
	var entry models.LoggedEntry
	var source string
	var loggedAt int64

	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.FoodName, &entry.QuantityGrams,
		&entry.Calories, &entry.Protein, &entry.Carbs, &entry.Fat,
		&entry.Barcode, &source, &loggedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.Source = models.SourceKind(source)
	entry.LoggedAt = time.Unix(0, loggedAt)
	return &entry, nil
}

// InsertSavedMeal stores a meal, failing on a duplicate name
func (s *SQLiteDB) InsertSavedMeal(ctx context.Context, meal *models.SavedMeal) error {
	query := `
		INSERT INTO saved_meals (
			id, user_id, name, quantity_grams, calories, protein, carbs, fat, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if meal.ID == "" {
		meal.ID = uuid.New().String()
	}
	if meal.CreatedAt.IsZero() {
		meal.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		meal.ID, meal.UserID, meal.Name, meal.QuantityGrams,
		meal.Calories, meal.Protein, meal.Carbs, meal.Fat,
		meal.CreatedAt.UnixNano(),
	)
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return ErrDuplicate
	}
	return err
}

const mealColumns = `id, user_id, name, quantity_grams, calories, protein, carbs, fat, created_at`

// GetSavedMeal looks a meal up by name
func (s *SQLiteDB) GetSavedMeal(ctx context.Context, userID int64, name string) (*models.SavedMeal, error) {
	query := `SELECT ` + mealColumns + ` FROM saved_meals WHERE user_id = ? AND name = ?`

	meal, err := scanMeal(s.db.QueryRowContext(ctx, query, userID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return meal, err
}

// ListSavedMeals returns the meals of a user ordered by name
func (s *SQLiteDB) ListSavedMeals(ctx context.Context, userID int64) ([]*models.SavedMeal, error) {
	query := `SELECT ` + mealColumns + ` FROM saved_meals WHERE user_id = ? ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.SavedMeal
	for rows.Next() {
		meal, err := scanMeal(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, meal)
	}
	return results, rows.Err()
}

// DeleteSavedMeal removes a meal by id
func (s *SQLiteDB) DeleteSavedMeal(ctx context.Context, mealID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_meals WHERE id = ?`, mealID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanMeal(row rowScanner) (*models.SavedMeal, error) {
	var meal models.SavedMeal
	var createdAt int64

	err := row.Scan(
		&meal.ID, &meal.UserID, &meal.Name, &meal.QuantityGrams,
		&meal.Calories, &meal.Protein, &meal.Carbs, &meal.Fat, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	meal.CreatedAt = time.Unix(0, createdAt)
	return &meal, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
