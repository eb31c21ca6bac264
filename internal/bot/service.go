// Package bot turns inbound messages and commands into ledger writes and
// reply texts. It owns the per-user ordering of messages.
package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/conversation"
	"github.com/franckalain/nutritionbot/internal/database"
	"github.com/franckalain/nutritionbot/internal/ledger"
	"github.com/franckalain/nutritionbot/internal/meals"
	"github.com/franckalain/nutritionbot/internal/models"
	"github.com/franckalain/nutritionbot/internal/resolver"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// DefaultPhotoTimeout bounds one photo upload
const DefaultPhotoTimeout = 10 * time.Second

const (
	genericFailure    = "Something went wrong on my side, please try again."
	estimationFailure = "I could not recognise any food in that. Try being more specific, like \"rice with chicken\"."
)

// Resolver is the part of the resolver pipeline the service needs
type Resolver interface {
	ResolveByCode(ctx context.Context, code string) (*models.FoodMatch, error)
	ResolveCandidates(ctx context.Context, input models.FreeformInput) ([]models.ResolvedFood, error)
}

// PhotoStore archives inbound photos
type PhotoStore interface {
	Put(ctx context.Context, userID int64, image []byte) (string, error)
}

// Inbound is one user message
type Inbound struct {
	UserID      int64
	DisplayName string
	Text        string
	Image       []byte
	// IsBarcodeToken is set by transports that decoded a barcode themselves
	IsBarcodeToken bool
}

// Reply is what the transport sends back
type Reply struct {
	Text  string             `json:"text"`
	State conversation.State `json:"state"`
}

// Deps are the collaborators of a Service. Photos may be nil.
type Deps struct {
	Users         database.UserStore
	Ledger        *ledger.Ledger
	Meals         *meals.Registry
	Resolver      Resolver
	Conversations conversation.Store
	Photos        PhotoStore
	PhotoTimeout  time.Duration
	Logger        *zap.Logger
}

type Service struct {
	users        database.UserStore
	ledger       *ledger.Ledger
	meals        *meals.Registry
	resolver     Resolver
	convs        conversation.Store
	photos       PhotoStore
	photoTimeout time.Duration
	validate     *validator.Validate
	log          *zap.Logger
	locks        userLocks
}

func NewService(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	photoTimeout := d.PhotoTimeout
	if photoTimeout <= 0 {
		photoTimeout = DefaultPhotoTimeout
	}
	return &Service{
		users:        d.Users,
		ledger:       d.Ledger,
		meals:        d.Meals,
		resolver:     d.Resolver,
		convs:        d.Conversations,
		photos:       d.Photos,
		photoTimeout: photoTimeout,
		validate:     validator.New(),
		log:          log,
		locks:        userLocks{m: make(map[int64]*userLock)},
	}
}

// userLocks serializes the messages of each user. An entry lives only while
// some message of that user holds or waits for it.
type userLocks struct {
	mu sync.Mutex
	m  map[int64]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(userID int64) func() {
	l.mu.Lock()
	ul, ok := l.m[userID]
	if !ok {
		ul = &userLock{}
		l.m[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// HandleInbound processes a text, photo or barcode message
func (s *Service) HandleInbound(ctx context.Context, in Inbound) Reply {
	unlock := s.locks.lock(in.UserID)
	defer unlock()

	log := s.log.With(zap.Int64("user_id", in.UserID))
	profile, err := s.ensureUser(ctx, in.UserID, in.DisplayName)
	if err != nil {
		return s.failure(log, in.UserID, err)
	}

	if len(in.Image) > 0 && s.photos != nil {
		s.archivePhoto(ctx, log, in.UserID, in.Image)
	}

	text := strings.TrimSpace(in.Text)
	current := s.convs.Get(in.UserID)

	switch {
	case len(in.Image) == 0 && (in.IsBarcodeToken || resolver.IsBarcode(text)):
		return s.handleBarcode(ctx, log, current, text, profile)
	case len(in.Image) == 0 && current.State != conversation.Idle:
		return s.apply(ctx, log, current, conversation.Reply{Text: text}, profile)
	case len(in.Image) == 0 && text == "":
		return s.reply(in.UserID, "Send me what you ate, a photo of your plate or a barcode.")
	}
	return s.handleFreeform(ctx, log, in, profile)
}

// archivePhoto stores the photo under its own deadline; failures are only logged
func (s *Service) archivePhoto(ctx context.Context, log *zap.Logger, userID int64, image []byte) {
	ctx, cancel := context.WithTimeout(ctx, s.photoTimeout)
	defer cancel()

	url, err := s.photos.Put(ctx, userID, image)
	if err != nil {
		log.Warn("photo archive failed", zap.Error(err))
		return
	}
	log.Debug("photo archived", zap.String("url", url))
}

func (s *Service) handleBarcode(ctx context.Context, log *zap.Logger, current conversation.Context, code string, profile *models.UserProfile) Reply {
	match, err := s.resolver.ResolveByCode(ctx, code)
	if errors.Is(err, apperror.ErrNotFound) {
		return s.reply(current.UserID, formatBarcodeMiss(code))
	}
	if err != nil {
		return s.failure(log, current.UserID, err)
	}
	r := s.apply(ctx, log, current, conversation.BarcodeResolved{Food: *match, Barcode: code}, profile)
	r.Text = formatProduct(match) + "\n\n" + r.Text
	return r
}

func (s *Service) handleFreeform(ctx context.Context, log *zap.Logger, in Inbound, profile *models.UserProfile) Reply {
	foods, err := s.resolver.ResolveCandidates(ctx, models.FreeformInput{Text: in.Text, Image: in.Image})
	if err != nil {
		return s.failure(log, in.UserID, err)
	}

	logged := make([]*models.LoggedEntry, 0, len(foods))
	for _, f := range foods {
		entry, err := s.ledger.LogFood(ctx, in.UserID, f.Name, f.Grams, f.Value, "")
		if err != nil {
			if derr := s.ledger.Discard(ctx, logged); derr != nil {
				log.Error("failed to discard partial meal", zap.Error(derr))
			}
			return s.failure(log, in.UserID, err)
		}
		logged = append(logged, entry)
	}

	today, err := s.ledger.TotalsForLogicalDay(ctx, in.UserID, s.ledger.Now())
	if err != nil {
		return s.failure(log, in.UserID, err)
	}
	log.Info("freeform meal logged", zap.Int("foods", len(logged)))
	return s.reply(in.UserID, formatFreeform(logged, today, profile.Goals))
}

// apply runs one event through the state machine and executes its effects.
// If an effect fails the previous context is restored.
func (s *Service) apply(ctx context.Context, log *zap.Logger, current conversation.Context, ev conversation.Event, profile *models.UserProfile) Reply {
	next, effects := conversation.Transition(current, ev, s.ledger.Now())
	s.convs.Put(next)

	var lines []string
	for _, eff := range effects {
		switch e := eff.(type) {
		case conversation.Prompt:
			lines = append(lines, e.Message)

		case conversation.Reject:
			lines = append(lines, apperror.UserMessage(e.Err, genericFailure))

		case conversation.Cancelled:
			if e.Previous == conversation.Idle {
				lines = append(lines, "There was nothing to cancel.")
			} else {
				lines = append(lines, "Cancelled.")
			}

		case conversation.LogFood:
			entry, err := s.ledger.LogFood(ctx, current.UserID, e.Food.Name, e.Grams, e.Food.Value, e.Barcode)
			if err != nil {
				s.convs.Put(current)
				return s.failure(log, current.UserID, err)
			}
			today, err := s.ledger.TotalsForLogicalDay(ctx, current.UserID, s.ledger.Now())
			if err != nil {
				return s.failure(log, current.UserID, err)
			}
			lines = append(lines, formatLogged(entry, today, profile.Goals))

		case conversation.SaveMeal:
			meal, err := s.meals.Save(ctx, current.UserID, e.Name, e.Totals, e.Grams)
			if err != nil {
				s.convs.Put(current)
				r := s.failure(log, current.UserID, err)
				if errors.Is(err, apperror.ErrInvalidInput) {
					r.Text += "\nSend another name or /cancel."
				}
				return r
			}
			lines = append(lines, formatSavedMeal(meal))
		}
	}
	return s.reply(current.UserID, strings.Join(lines, "\n\n"))
}

// ensureUser returns the profile, creating it with default goals on first contact
func (s *Service) ensureUser(ctx context.Context, userID int64, displayName string) (*models.UserProfile, error) {
	profile, err := s.users.GetUser(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, apperror.Persistence("get user", err)
	}

	profile = &models.UserProfile{
		UserID:      userID,
		DisplayName: displayName,
		Goals:       models.DefaultGoals(),
		CreatedAt:   s.ledger.Now(),
	}
	if err := s.users.CreateUser(ctx, profile); err != nil {
		return nil, apperror.Persistence("create user", err)
	}
	s.log.Info("user created", zap.Int64("user_id", userID))
	return profile, nil
}

// reply attaches the user's current conversation state
func (s *Service) reply(userID int64, text string) Reply {
	return Reply{Text: text, State: s.convs.Get(userID).State}
}

// failure logs err at the level its kind deserves and picks the user message
func (s *Service) failure(log *zap.Logger, userID int64, err error) Reply {
	switch {
	case errors.Is(err, apperror.ErrInvalidInput), errors.Is(err, apperror.ErrNotFound):
		log.Debug("request rejected", zap.Error(err))
		return s.reply(userID, apperror.UserMessage(err, genericFailure))
	case errors.Is(err, apperror.ErrEstimationFailed):
		log.Warn("estimation failed", zap.Error(err))
		return s.reply(userID, estimationFailure)
	}
	log.Error("request failed", zap.Error(err))
	return s.reply(userID, genericFailure)
}
