package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/conversation"
	"github.com/franckalain/nutritionbot/internal/database"
	"github.com/franckalain/nutritionbot/internal/ledger"
	"github.com/franckalain/nutritionbot/internal/meals"
	"github.com/franckalain/nutritionbot/internal/models"
	"github.com/franckalain/nutritionbot/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const skyrCode = "8431890069843"

// flakyStore fails entry inserts on demand. failFrom > 0 fails that insert
// and every later one.
type flakyStore struct {
	*database.MemoryDB
	failInsert atomic.Bool
	failFrom   atomic.Int32
	inserts    atomic.Int32
}

func (f *flakyStore) InsertEntry(ctx context.Context, e *models.LoggedEntry) (string, error) {
	n := f.inserts.Add(1)
	if f.failInsert.Load() || (f.failFrom.Load() > 0 && n >= f.failFrom.Load()) {
		return "", errors.New("disk full")
	}
	return f.MemoryDB.InsertEntry(ctx, e)
}

type fakeCodes map[string]models.FoodMatch

func (f fakeCodes) LookupByCode(_ context.Context, code string) (*models.FoodMatch, error) {
	m, ok := f[code]
	if !ok {
		return nil, apperror.NotFound("miss")
	}
	return &m, nil
}

type fakeNames map[string]models.NutritionValue

func (f fakeNames) Name() string { return models.ProviderUSDA }

func (f fakeNames) LookupByName(_ context.Context, name string) (*models.FoodMatch, error) {
	v, ok := f[name]
	if !ok {
		return nil, apperror.NotFound("miss")
	}
	return &models.FoodMatch{Name: name, Value: v}, nil
}

type fakeEstimator struct {
	candidates []models.Candidate
	err        error
}

func (f *fakeEstimator) Estimate(context.Context, string, []byte) ([]models.Candidate, error) {
	return f.candidates, f.err
}

type fakePhotos struct {
	mu    sync.Mutex
	calls int
	err   error
	stall bool
}

func (f *fakePhotos) Put(ctx context.Context, _ int64, _ []byte) (string, error) {
	f.mu.Lock()
	f.calls++
	stall, err := f.stall, f.err
	f.mu.Unlock()

	if stall {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "https://cdn.example.com/p.jpg", err
}

type harness struct {
	svc    *Service
	store  *flakyStore
	ledger *ledger.Ledger
	convs  *conversation.MemoryStore
	est    *fakeEstimator
	photos *fakePhotos
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := &flakyStore{MemoryDB: database.NewMemoryDB()}
	now := time.Date(2024, 2, 15, 13, 0, 0, 0, time.UTC)
	l, err := ledger.New(store, ledger.DefaultDayStartHour, zap.NewNop(),
		ledger.WithClock(func() time.Time { return now }),
		ledger.WithLocation(time.UTC))
	require.NoError(t, err)

	codes := fakeCodes{skyrCode: {
		Name:  "Skyr",
		Value: models.NutritionValue{Calories: 59, Protein: 10, Carbs: 3, Fat: 0.5, Provider: models.ProviderOpenFoodFacts},
	}}
	names := fakeNames{"chicken breast": {Calories: 165, Protein: 31, Carbs: 0, Fat: 3.6}}
	est := &fakeEstimator{candidates: []models.Candidate{
		{Name: "rice", Grams: 200, Value: models.NutritionValue{Calories: 130, Protein: 2.7, Carbs: 28, Fat: 0.3}},
		{Name: "chicken breast", Grams: 150},
	}}
	res := resolver.New(codes, []resolver.NameProvider{names}, est, resolver.Config{}, zap.NewNop())

	convs := conversation.NewMemoryStore()
	photos := &fakePhotos{}
	svc := NewService(Deps{
		Users:         store,
		Ledger:        l,
		Meals:         meals.NewRegistry(store, l, zap.NewNop()),
		Resolver:      res,
		Conversations: convs,
		Photos:        photos,
		Logger:        zap.NewNop(),
	})
	return &harness{svc: svc, store: store, ledger: l, convs: convs, est: est, photos: photos}
}

func (h *harness) send(text string) Reply {
	return h.svc.HandleInbound(context.Background(), Inbound{UserID: 1, DisplayName: "Ana", Text: text})
}

func (h *harness) command(cmd, args string) Reply {
	return h.svc.HandleCommand(context.Background(), 1, "Ana", cmd, args)
}

func (h *harness) entries(t *testing.T) models.DayTotals {
	t.Helper()
	totals, err := h.ledger.TotalsForLogicalDay(context.Background(), 1, h.ledger.Now())
	require.NoError(t, err)
	return totals
}

func TestBarcodeThenQuantity(t *testing.T) {
	h := newHarness(t)

	r := h.send(skyrCode)
	assert.Equal(t, conversation.AwaitingQuantity, r.State)
	assert.Contains(t, r.Text, "Found Skyr")
	assert.Contains(t, r.Text, "How many grams")

	r = h.send("150g")
	assert.Equal(t, conversation.Idle, r.State)
	assert.Contains(t, r.Text, "Logged Skyr, 150g: 88 kcal | P 15g C 4g F 1g")

	last, err := h.ledger.LastEntry(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.Macros{Calories: 88, Protein: 15, Carbs: 4, Fat: 1}, last.Macros())
	assert.Equal(t, skyrCode, last.Barcode)
	assert.Equal(t, models.SourceExactBarcode, last.Source)
}

func TestBarcode_InvalidQuantityKeepsWaiting(t *testing.T) {
	h := newHarness(t)
	h.send(skyrCode)

	for _, bad := range []string{"lots", "0", "-5", "20000"} {
		r := h.send(bad)
		assert.Equal(t, conversation.AwaitingQuantity, r.State, bad)
	}
	assert.Equal(t, 0, h.entries(t).EntryCount)

	r := h.send("100 gramos")
	assert.Equal(t, conversation.Idle, r.State)
	assert.Equal(t, 1, h.entries(t).EntryCount)
}

func TestBarcode_Miss(t *testing.T) {
	h := newHarness(t)
	r := h.send("12345678")
	assert.Equal(t, conversation.Idle, r.State)
	assert.Contains(t, r.Text, "couldn't find barcode 12345678")
}

func TestBarcode_PersistenceFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.send(skyrCode)

	h.store.failInsert.Store(true)
	r := h.send("150")
	assert.Equal(t, genericFailure, r.Text)
	assert.Equal(t, conversation.AwaitingQuantity, r.State)
	c := h.convs.Get(1)
	require.NotNil(t, c.Pending.Food)
	assert.Equal(t, "Skyr", c.Pending.Food.Name)

	h.store.failInsert.Store(false)
	r = h.send("150")
	assert.Equal(t, conversation.Idle, r.State)
	assert.Equal(t, 1, h.entries(t).EntryCount)
}

func TestFreeform_LogsEveryCandidateInOrder(t *testing.T) {
	h := newHarness(t)

	r := h.send("rice with chicken")
	assert.Equal(t, conversation.Idle, r.State)
	assert.Contains(t, r.Text, "- rice, 200g: 260 kcal")
	assert.Contains(t, r.Text, "(estimate)")
	assert.Contains(t, r.Text, "- chicken breast, 150g: 248 kcal")
	assert.Contains(t, r.Text, "Added: 508 kcal")

	entries, err := h.ledger.HistoryForDate(context.Background(), 1, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "rice", entries[0].FoodName)
	assert.Equal(t, models.SourceAIEstimate, entries[0].Source)
	assert.Equal(t, "chicken breast", entries[1].FoodName)
	assert.Equal(t, models.SourceNameMatch, entries[1].Source)
}

func TestFreeform_EstimationFailure(t *testing.T) {
	h := newHarness(t)
	h.est.err = errors.New("model returned prose")

	r := h.send("asdf")
	assert.Equal(t, estimationFailure, r.Text)
	assert.Equal(t, 0, h.entries(t).EntryCount)
}

func TestFreeform_PhotoIsArchived(t *testing.T) {
	h := newHarness(t)
	h.photos.err = errors.New("bucket gone")

	r := h.svc.HandleInbound(context.Background(), Inbound{UserID: 1, Image: []byte{0xff, 0xd8, 0xff}})
	assert.Contains(t, r.Text, "Logged:")
	assert.Equal(t, 1, h.photos.calls)
	assert.Equal(t, 2, h.entries(t).EntryCount, "archive failures never block logging")
}

func TestFreeform_StalledPhotoStoreTimesOut(t *testing.T) {
	h := newHarness(t)
	h.photos.stall = true
	h.svc.photoTimeout = 20 * time.Millisecond

	done := make(chan Reply, 1)
	go func() {
		done <- h.svc.HandleInbound(context.Background(), Inbound{UserID: 1, Image: []byte{0xff, 0xd8, 0xff}})
	}()

	select {
	case r := <-done:
		assert.Contains(t, r.Text, "Logged:")
	case <-time.After(5 * time.Second):
		t.Fatal("photo upload blocked the message")
	}
	assert.Equal(t, 2, h.entries(t).EntryCount)
}

func TestFreeform_PartialFailureLogsNothing(t *testing.T) {
	h := newHarness(t)
	h.store.failFrom.Store(2)

	r := h.send("rice with chicken")
	assert.Equal(t, genericFailure, r.Text)
	assert.Equal(t, 0, h.entries(t).EntryCount, "the first candidate is removed again")

	h.store.failFrom.Store(0)
	r = h.send("rice with chicken")
	assert.Contains(t, r.Text, "Added: 508 kcal")
	totals := h.entries(t)
	assert.Equal(t, 2, totals.EntryCount)
	assert.Equal(t, 508, totals.Calories)
}

func TestSaveMealFlow(t *testing.T) {
	h := newHarness(t)

	r := h.command("/save", "")
	assert.Contains(t, r.Text, "nothing to save")

	h.send(skyrCode)
	h.send("150")

	r = h.command("/save", "")
	assert.Equal(t, conversation.AwaitingMealName, r.State)
	assert.Contains(t, r.Text, "What name")

	r = h.send("  ")
	assert.Equal(t, conversation.AwaitingMealName, r.State)

	r = h.send("skyr bowl")
	assert.Equal(t, conversation.Idle, r.State)
	assert.Contains(t, r.Text, `Saved the meal "skyr bowl"`)

	// a duplicate keeps the user choosing a name
	r = h.command("guardar_plato", "skyr bowl")
	assert.Equal(t, conversation.AwaitingMealName, r.State)
	assert.Contains(t, r.Text, "already exists")

	r = h.send("skyr bowl 2")
	assert.Equal(t, conversation.Idle, r.State)

	r = h.command("meals", "")
	assert.Contains(t, r.Text, "- skyr bowl: 88 kcal")
	assert.Contains(t, r.Text, "- skyr bowl 2: 88 kcal")

	r = h.command("/comer_plato", "skyr bowl")
	assert.Contains(t, r.Text, "Ate skyr bowl: 88 kcal")
	assert.Equal(t, 2, h.entries(t).EntryCount)

	last, err := h.ledger.LastEntry(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Meal: skyr bowl", last.FoodName)
	assert.Equal(t, 150, last.QuantityGrams)

	r = h.command("eat", "brunch")
	assert.Contains(t, r.Text, `no meal called "brunch"`)

	r = h.command("deletemeal", "skyr bowl 2")
	assert.Contains(t, r.Text, "Deleted")
}

func TestBarcodeOverwritesPendingSave(t *testing.T) {
	h := newHarness(t)
	h.send(skyrCode)
	h.send("100")

	h.command("save", "")
	r := h.send(skyrCode)
	assert.Equal(t, conversation.AwaitingQuantity, r.State)

	r = h.command("cancelar", "")
	assert.Equal(t, conversation.Idle, r.State)
	assert.Contains(t, r.Text, "Cancelled.")

	r = h.command("cancel", "")
	assert.Contains(t, r.Text, "nothing to cancel")
}

func TestUndo(t *testing.T) {
	h := newHarness(t)

	r := h.command("undo", "")
	assert.Contains(t, r.Text, "no entries to undo")

	h.send("rice with chicken")
	r = h.command("/deshacer", "")
	assert.Contains(t, r.Text, "Removed chicken breast")
	assert.Equal(t, 1, h.entries(t).EntryCount)
}

func TestStatusAndGoals(t *testing.T) {
	h := newHarness(t)

	r := h.command("estado", "")
	assert.Contains(t, r.Text, "Calories 0 / 2500 kcal (0%)")

	r = h.command("goals", "2000 100 200 50")
	assert.Contains(t, r.Text, "Goals updated")
	profile, err := h.store.GetUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.Goals{Calories: 2000, Protein: 100, Carbs: 200, Fat: 50}, profile.Goals)

	h.send("rice with chicken")
	r = h.command("status", "")
	assert.Contains(t, r.Text, "Calories 508 / 2000 kcal (25%)")

	r = h.command("objetivos", "0 100 200 50")
	assert.Contains(t, r.Text, "calories must be a positive number")

	r = h.command("goals", "a b c d")
	assert.Contains(t, r.Text, "not a whole number")

	r = h.command("goals", "1 2")
	assert.Contains(t, r.Text, "Usage")
}

func TestHistoryAndHelp(t *testing.T) {
	h := newHarness(t)
	h.send("rice with chicken")

	r := h.command("historial", "2024-02-15")
	assert.Contains(t, r.Text, "History of 2024-02-15")
	assert.Contains(t, r.Text, "13:00 rice, 200g")

	r = h.command("history", "2024-02-10")
	assert.Contains(t, r.Text, "Nothing logged on 2024-02-10")

	r = h.command("history", "yesterday")
	assert.Contains(t, r.Text, "Invalid date")

	r = h.command("history", "")
	assert.Contains(t, r.Text, "History of 2024-02-15")

	assert.Equal(t, helpText, h.command("/start", "").Text)
	assert.Equal(t, helpText, h.command("AYUDA", "").Text)
	assert.Contains(t, h.command("dance", "").Text, "/dance")
}

func TestNormalizeCommand(t *testing.T) {
	assert.Equal(t, CmdStatus, NormalizeCommand("/estado"))
	assert.Equal(t, CmdSave, NormalizeCommand("/guardar_plato@nutrition_bot"))
	assert.Equal(t, CmdMeals, NormalizeCommand(" Meals "))
}

func TestConcurrentUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := int64(1); u <= 5; u++ {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(user int64) {
				defer wg.Done()
				h.svc.HandleInbound(ctx, Inbound{UserID: user, Text: fmt.Sprintf("meal of %d", user)})
			}(u)
		}
	}
	wg.Wait()

	for u := int64(1); u <= 5; u++ {
		totals, err := h.ledger.TotalsForLogicalDay(ctx, u, h.ledger.Now())
		require.NoError(t, err)
		assert.Equal(t, 8, totals.EntryCount, "user %d", u)
		assert.Equal(t, 4*508, totals.Calories)
	}
	assert.Zero(t, h.svc.locks.len(), "idle users keep no lock")
}
