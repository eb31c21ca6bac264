// Package ledger records consumed food and aggregates it per logical day.
//
// A logical day starts at a configurable hour instead of midnight, so a
// snack at 01:30 still counts toward the previous evening.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/database"
	"github.com/franckalain/nutritionbot/internal/models"
	"go.uber.org/zap"
)

// DefaultDayStartHour is used when no hour is configured
const DefaultDayStartHour = 3

// LogicalDayStart returns the latest wall-clock hour:00 in t's location that
// is not after t. Days are compared on the wall clock, so a logical day
// spanning a DST change lasts 23 or 25 hours.
func LogicalDayStart(t time.Time, hour int) time.Time {
	y, m, d := t.Date()
	if t.Hour() < hour {
		y, m, d = t.AddDate(0, 0, -1).Date()
	}
	return time.Date(y, m, d, hour, 0, 0, 0, t.Location())
}

// Window is the half-open interval [Start, End) of one logical day
type Window struct {
	Start time.Time
	End   time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation sets the location logical days are computed in
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

// Ledger is the only writer of logged entries
type Ledger struct {
	store        database.EntryStore
	dayStartHour int
	loc          *time.Location
	now          func() time.Time
	log          *zap.Logger
}

// New creates a Ledger. dayStartHour must be within 0..23.
func New(store database.EntryStore, dayStartHour int, log *zap.Logger, opts ...Option) (*Ledger, error) {
	if dayStartHour < 0 || dayStartHour > 23 {
		return nil, fmt.Errorf("day start hour %d out of range 0..23", dayStartHour)
	}
	l := &Ledger{
		store:        store,
		dayStartHour: dayStartHour,
		loc:          time.Local,
		now:          time.Now,
		log:          log,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Location is where logical days are computed
func (l *Ledger) Location() *time.Location { return l.loc }

// Now returns the ledger clock in its location
func (l *Ledger) Now() time.Time { return l.now().In(l.loc) }

// DayWindow returns the logical day containing ref
func (l *Ledger) DayWindow(ref time.Time) Window {
	start := LogicalDayStart(ref.In(l.loc), l.dayStartHour)
	return Window{Start: start, End: nextDayStart(start, l.dayStartHour)}
}

// DateWindow returns the logical day anchored at a calendar date
func (l *Ledger) DateWindow(date time.Time) Window {
	y, m, d := date.Date()
	start := time.Date(y, m, d, l.dayStartHour, 0, 0, 0, l.loc)
	return Window{Start: start, End: nextDayStart(start, l.dayStartHour)}
}

func nextDayStart(start time.Time, hour int) time.Time {
	y, m, d := start.Date()
	return time.Date(y, m, d+1, hour, 0, 0, 0, start.Location())
}

// Log persists a prepared entry stamped with the current time
func (l *Ledger) Log(ctx context.Context, entry models.LoggedEntry) (*models.LoggedEntry, error) {
	entry.ID = ""
	entry.LoggedAt = l.now()

	if _, err := l.store.InsertEntry(ctx, &entry); err != nil {
		return nil, apperror.Persistence("insert entry", err)
	}
	l.log.Debug("entry logged",
		zap.Int64("user_id", entry.UserID),
		zap.String("food", entry.FoodName),
		zap.Int("grams", entry.QuantityGrams),
		zap.Int("kcal", entry.Calories),
	)
	return &entry, nil
}

// LogFood scales value to grams and logs the result
func (l *Ledger) LogFood(ctx context.Context, userID int64, name string, grams int, value models.NutritionValue, barcode string) (*models.LoggedEntry, error) {
	macros, err := value.Scale(grams)
	if err != nil {
		return nil, err
	}
	return l.Log(ctx, models.LoggedEntry{
		UserID:        userID,
		FoodName:      name,
		QuantityGrams: grams,
		Calories:      macros.Calories,
		Protein:       macros.Protein,
		Carbs:         macros.Carbs,
		Fat:           macros.Fat,
		Barcode:       barcode,
		Source:        value.Source,
	})
}

// TotalsForLogicalDay sums the entries of the logical day containing ref
func (l *Ledger) TotalsForLogicalDay(ctx context.Context, userID int64, ref time.Time) (models.DayTotals, error) {
	entries, err := l.entries(ctx, userID, l.DayWindow(ref))
	if err != nil {
		return models.DayTotals{}, err
	}
	return Sum(entries), nil
}

// HistoryForDate lists the entries of the logical day anchored at date
func (l *Ledger) HistoryForDate(ctx context.Context, userID int64, date time.Time) ([]*models.LoggedEntry, error) {
	return l.entries(ctx, userID, l.DateWindow(date))
}

func (l *Ledger) entries(ctx context.Context, userID int64, w Window) ([]*models.LoggedEntry, error) {
	entries, err := l.store.QueryEntries(ctx, userID, w.Start, w.End)
	if err != nil {
		return nil, apperror.Persistence("query entries", err)
	}
	return entries, nil
}

// LastEntry returns the most recent entry of any day
func (l *Ledger) LastEntry(ctx context.Context, userID int64) (*models.LoggedEntry, error) {
	entry, err := l.store.LastEntry(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperror.NotFound("there are no entries yet")
	}
	if err != nil {
		return nil, apperror.Persistence("last entry", err)
	}
	return entry, nil
}

// UndoLast deletes and returns the most recent entry, regardless of its day
func (l *Ledger) UndoLast(ctx context.Context, userID int64) (*models.LoggedEntry, error) {
	entry, err := l.LastEntry(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := l.store.DeleteEntry(ctx, entry.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperror.NotFound("there are no entries yet")
		}
		return nil, apperror.Persistence("delete entry", err)
	}
	l.log.Debug("entry undone", zap.Int64("user_id", userID), zap.String("entry_id", entry.ID))
	return entry, nil
}

// Discard deletes entries written earlier by an operation that later failed
func (l *Ledger) Discard(ctx context.Context, entries []*models.LoggedEntry) error {
	var errs []error
	for _, e := range entries {
		if err := l.store.DeleteEntry(ctx, e.ID); err != nil && !errors.Is(err, database.ErrNotFound) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return apperror.Persistence("discard entries", errors.Join(errs...))
	}
	return nil
}

// Sum totals a list of entries
func Sum(entries []*models.LoggedEntry) models.DayTotals {
	var totals models.DayTotals
	for _, e := range entries {
		totals.Macros = totals.Macros.Add(e.Macros())
		totals.EntryCount++
	}
	return totals
}
