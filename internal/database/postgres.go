package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franckalain/nutritionbot/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

// PostgresDB implements Store on a pgx connection pool
type PostgresDB struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewPostgresDB connects to dsn, pings and applies the schema
func NewPostgresDB(ctx context.Context, dsn string, log *zap.Logger) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("error parsing database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	schemaBytes, err := schemaFS.ReadFile("schema_postgres.sql")
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error reading schema file: %w", err)
	}
	if _, err := pool.Exec(ctx, string(schemaBytes)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error executing schema: %w", err)
	}
	log.Info("postgres database ready")

	return &PostgresDB{pool: pool, log: log}, nil
}

func (p *PostgresDB) CreateUser(ctx context.Context, user *models.UserProfile) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (user_id, display_name, calorie_goal, protein_goal, carbs_goal, fat_goal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING
	`, user.UserID, user.DisplayName,
		user.Goals.Calories, user.Goals.Protein, user.Goals.Carbs, user.Goals.Fat,
		user.CreatedAt)
	return err
}

func (p *PostgresDB) GetUser(ctx context.Context, userID int64) (*models.UserProfile, error) {
	user := &models.UserProfile{}
	err := p.pool.QueryRow(ctx, `
		SELECT user_id, display_name, calorie_goal, protein_goal, carbs_goal, fat_goal, created_at
		FROM users WHERE user_id = $1
	`, userID).Scan(
		&user.UserID, &user.DisplayName,
		&user.Goals.Calories, &user.Goals.Protein, &user.Goals.Carbs, &user.Goals.Fat,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (p *PostgresDB) UpdateGoals(ctx context.Context, userID int64, goals models.Goals) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE users
		SET calorie_goal = $1, protein_goal = $2, carbs_goal = $3, fat_goal = $4
		WHERE user_id = $5
	`, goals.Calories, goals.Protein, goals.Carbs, goals.Fat, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) InsertEntry(ctx context.Context, entry *models.LoggedEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO entries (
			id, user_id, food_name, quantity_grams, calories, protein, carbs, fat,
			barcode, source, logged_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, entry.ID, entry.UserID, entry.FoodName, entry.QuantityGrams,
		entry.Calories, entry.Protein, entry.Carbs, entry.Fat,
		entry.Barcode, string(entry.Source), entry.LoggedAt)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

func (p *PostgresDB) DeleteEntry(ctx context.Context, entryID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM entries WHERE id = $1`, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) QueryEntries(ctx context.Context, userID int64, from, to time.Time) ([]*models.LoggedEntry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, user_id, food_name, quantity_grams, calories, protein, carbs, fat, barcode, source, logged_at
		FROM entries
		WHERE user_id = $1 AND logged_at >= $2 AND logged_at < $3
		ORDER BY logged_at ASC, seq ASC
	`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.LoggedEntry
	for rows.Next() {
		entry, err := scanPgEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	return results, rows.Err()
}

func (p *PostgresDB) LastEntry(ctx context.Context, userID int64) (*models.LoggedEntry, error) {
	entry, err := scanPgEntry(p.pool.QueryRow(ctx, `
		SELECT id::text, user_id, food_name, quantity_grams, calories, protein, carbs, fat, barcode, source, logged_at
		FROM entries
		WHERE user_id = $1
		ORDER BY logged_at DESC, seq DESC
		LIMIT 1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

func scanPgEntry(row pgx.Row) (*models.LoggedEntry, error) {
	var entry models.LoggedEntry
	var source string
	err := row.Scan(
		&entry.ID, &entry.UserID, &entry.FoodName, &entry.QuantityGrams,
		&entry.Calories, &entry.Protein, &entry.Carbs, &entry.Fat,
		&entry.Barcode, &source, &entry.LoggedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.Source = models.SourceKind(source)
	return &entry, nil
}

func (p *PostgresDB) InsertSavedMeal(ctx context.Context, meal *models.SavedMeal) error {
	if meal.ID == "" {
		meal.ID = uuid.New().String()
	}
	if meal.CreatedAt.IsZero() {
		meal.CreatedAt = time.Now()
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO saved_meals (id, user_id, name, quantity_grams, calories, protein, carbs, fat, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, meal.ID, meal.UserID, meal.Name, meal.QuantityGrams,
		meal.Calories, meal.Protein, meal.Carbs, meal.Fat, meal.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicate
	}
	return err
}

func (p *PostgresDB) GetSavedMeal(ctx context.Context, userID int64, name string) (*models.SavedMeal, error) {
	meal, err := scanPgMeal(p.pool.QueryRow(ctx, `
		SELECT id::text, user_id, name, quantity_grams, calories, protein, carbs, fat, created_at
		FROM saved_meals WHERE user_id = $1 AND name = $2
	`, userID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return meal, err
}

func (p *PostgresDB) ListSavedMeals(ctx context.Context, userID int64) ([]*models.SavedMeal, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, user_id, name, quantity_grams, calories, protein, carbs, fat, created_at
		FROM saved_meals WHERE user_id = $1 ORDER BY name ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*models.SavedMeal
	for rows.Next() {
		meal, err := scanPgMeal(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, meal)
	}
	return results, rows.Err()
}

func (p *PostgresDB) DeleteSavedMeal(ctx context.Context, mealID string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM saved_meals WHERE id = $1`, mealID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPgMeal(row pgx.Row) (*models.SavedMeal, error) {
	var meal models.SavedMeal
	err := row.Scan(
		&meal.ID, &meal.UserID, &meal.Name, &meal.QuantityGrams,
		&meal.Calories, &meal.Protein, &meal.Carbs, &meal.Fat, &meal.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &meal, nil
}

// Close releases the pool
func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}
