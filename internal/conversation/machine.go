// Package conversation tracks input a user still owes the bot across
// independent messages. Transition is pure; Store keeps one Context per user.
package conversation

import (
	"strconv"
	"strings"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/models"
)

// State of a user's conversation
type State string

const (
	Idle             State = "idle"
	AwaitingQuantity State = "awaiting_quantity"
	AwaitingMealName State = "awaiting_meal_name"
)

// MaxQuantityGrams is the largest quantity accepted in a reply
const MaxQuantityGrams = 10000

// Payload is the data carried while waiting for input
type Payload struct {
	// AwaitingQuantity
	Food    *models.FoodMatch `json:"food,omitempty"`
	Barcode string            `json:"barcode,omitempty"`

	// AwaitingMealName
	Totals *models.Macros `json:"totals,omitempty"`
	Grams  int            `json:"grams,omitempty"`
}

// Context is the single pending conversation of a user
type Context struct {
	UserID    int64     `json:"user_id"`
	State     State     `json:"state"`
	Pending   Payload   `json:"pending"`
	EnteredAt time.Time `json:"entered_at"`
}

// NewContext returns an idle context
func NewContext(userID int64) Context {
	return Context{UserID: userID, State: Idle}
}

// Event is an input to Transition
type Event interface{ isEvent() }

// BarcodeResolved is raised after an exact barcode lookup succeeded
type BarcodeResolved struct {
	Food    models.FoodMatch
	Barcode string
}

// Reply is free text sent while input is pending
type Reply struct{ Text string }

// SaveRequested asks to store the totals of an entry as a named meal
type SaveRequested struct {
	Totals models.Macros
	Grams  int
}

// Cancel drops whatever is pending
type Cancel struct{}

func (BarcodeResolved) isEvent() {}
func (Reply) isEvent()           {}
func (SaveRequested) isEvent()   {}
func (Cancel) isEvent()          {}

// Effect is work the caller must carry out after a transition
type Effect interface{ isEffect() }

// LogFood asks the caller to log grams of a food
type LogFood struct {
	Food    models.FoodMatch
	Grams   int
	Barcode string
}

// SaveMeal asks the caller to register a saved meal
type SaveMeal struct {
	Name   string
	Totals models.Macros
	Grams  int
}

// Prompt tells the user what input is expected next
type Prompt struct{ Message string }

// Reject reports invalid input; the state is unchanged
type Reject struct{ Err error }

// Cancelled reports that a pending conversation was dropped
type Cancelled struct{ Previous State }

func (LogFood) isEffect()   {}
func (SaveMeal) isEffect()  {}
func (Prompt) isEffect()    {}
func (Reject) isEffect()    {}
func (Cancelled) isEffect() {}

// Transition computes the next context and the effects of ev. It never
// touches storage or the network.
func Transition(c Context, ev Event, now time.Time) (Context, []Effect) {
	switch ev := ev.(type) {
	case Cancel:
		prev := c.State
		return NewContext(c.UserID), []Effect{Cancelled{Previous: prev}}

	case BarcodeResolved:
		food := ev.Food
		next := Context{
			UserID:    c.UserID,
			State:     AwaitingQuantity,
			Pending:   Payload{Food: &food, Barcode: ev.Barcode},
			EnteredAt: now,
		}
		return next, []Effect{Prompt{Message: "How many grams did you have?"}}

	case SaveRequested:
		totals := ev.Totals
		next := Context{
			UserID:    c.UserID,
			State:     AwaitingMealName,
			Pending:   Payload{Totals: &totals, Grams: ev.Grams},
			EnteredAt: now,
		}
		return next, []Effect{Prompt{Message: "What name should the meal be saved under?"}}

	case Reply:
		return reply(c, ev)
	}
	return c, nil
}

func reply(c Context, ev Reply) (Context, []Effect) {
	switch c.State {
	case AwaitingQuantity:
		grams, err := ParseQuantity(ev.Text)
		if err != nil {
			return c, []Effect{Reject{Err: err}}
		}
		if c.Pending.Food == nil {
			return NewContext(c.UserID), []Effect{Reject{Err: apperror.InvalidInput("the scanned product was lost, please scan it again")}}
		}
		return NewContext(c.UserID), []Effect{LogFood{Food: *c.Pending.Food, Grams: grams, Barcode: c.Pending.Barcode}}

	case AwaitingMealName:
		name := strings.TrimSpace(ev.Text)
		if name == "" {
			return c, []Effect{Reject{Err: apperror.InvalidInput("the meal name cannot be empty")}}
		}
		if c.Pending.Totals == nil {
			return NewContext(c.UserID), []Effect{Reject{Err: apperror.InvalidInput("there is nothing to save, log something first")}}
		}
		return NewContext(c.UserID), []Effect{SaveMeal{Name: name, Totals: *c.Pending.Totals, Grams: c.Pending.Grams}}
	}
	return c, nil
}

var quantitySuffixes = []string{"gramos", "grams", "gram", "gr", "g"}

// ParseQuantity accepts "150", "150g", "150 gr" or "150 gramos"
func ParseQuantity(text string) (int, error) {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	for _, suffix := range quantitySuffixes {
		if strings.HasSuffix(cleaned, suffix) {
			cleaned = strings.TrimSpace(strings.TrimSuffix(cleaned, suffix))
			break
		}
	}

	grams, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, apperror.InvalidInput("I did not understand that quantity, send a number like 150 or 150g")
	}
	if grams <= 0 {
		return 0, apperror.InvalidInput("the quantity must be a positive number of grams")
	}
	if grams > MaxQuantityGrams {
		return 0, apperror.InvalidInput("that quantity looks too large, send at most %d grams", MaxQuantityGrams)
	}
	return grams, nil
}
