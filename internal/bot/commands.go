package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/franckalain/nutritionbot/internal/apperror"
	"github.com/franckalain/nutritionbot/internal/conversation"
	"github.com/franckalain/nutritionbot/internal/models"
	"go.uber.org/zap"
)

// Commands understood by HandleCommand
const (
	CmdStart      = "start"
	CmdHelp       = "help"
	CmdStatus     = "status"
	CmdHistory    = "history"
	CmdSave       = "save"
	CmdEat        = "eat"
	CmdMeals      = "meals"
	CmdDeleteMeal = "deletemeal"
	CmdUndo       = "undo"
	CmdGoals      = "goals"
	CmdCancel     = "cancel"
)

// aliases maps the Spanish command names onto the canonical ones
var aliases = map[string]string{
	"ayuda":         CmdHelp,
	"estado":        CmdStatus,
	"historial":     CmdHistory,
	"guardar_plato": CmdSave,
	"comer_plato":   CmdEat,
	"miaplatos":     CmdMeals,
	"borrar_plato":  CmdDeleteMeal,
	"deshacer":      CmdUndo,
	"objetivos":     CmdGoals,
	"cancelar":      CmdCancel,
}

// NormalizeCommand strips the slash and a bot suffix, lowercases and
// resolves aliases.
func NormalizeCommand(command string) string {
	cmd := strings.ToLower(strings.TrimSpace(command))
	cmd = strings.TrimPrefix(cmd, "/")
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	if canonical, ok := aliases[cmd]; ok {
		return canonical
	}
	return cmd
}

type commandFunc func(ctx context.Context, log *zap.Logger, profile *models.UserProfile, args string) Reply

func (s *Service) commands() map[string]commandFunc {
	return map[string]commandFunc{
		CmdStart:      s.cmdHelp,
		CmdHelp:       s.cmdHelp,
		CmdStatus:     s.cmdStatus,
		CmdHistory:    s.cmdHistory,
		CmdSave:       s.cmdSave,
		CmdEat:        s.cmdEat,
		CmdMeals:      s.cmdMeals,
		CmdDeleteMeal: s.cmdDeleteMeal,
		CmdUndo:       s.cmdUndo,
		CmdGoals:      s.cmdGoals,
		CmdCancel:     s.cmdCancel,
	}
}

// HandleCommand runs one command for a user
func (s *Service) HandleCommand(ctx context.Context, userID int64, displayName, command, args string) Reply {
	unlock := s.locks.lock(userID)
	defer unlock()

	log := s.log.With(zap.Int64("user_id", userID), zap.String("command", command))
	profile, err := s.ensureUser(ctx, userID, displayName)
	if err != nil {
		return s.failure(log, userID, err)
	}

	name := NormalizeCommand(command)
	fn, ok := s.commands()[name]
	if !ok {
		return s.reply(userID, fmt.Sprintf("I don't know the command /%s. Send /help for the list.", name))
	}
	return fn(ctx, log, profile, strings.TrimSpace(args))
}

func (s *Service) cmdHelp(_ context.Context, _ *zap.Logger, profile *models.UserProfile, _ string) Reply {
	return s.reply(profile.UserID, helpText)
}

func (s *Service) cmdStatus(ctx context.Context, log *zap.Logger, profile *models.UserProfile, _ string) Reply {
	totals, err := s.ledger.TotalsForLogicalDay(ctx, profile.UserID, s.ledger.Now())
	if err != nil {
		return s.failure(log, profile.UserID, err)
	}
	return s.reply(profile.UserID, formatStatus("Today", totals, profile.Goals))
}

func (s *Service) cmdHistory(ctx context.Context, log *zap.Logger, profile *models.UserProfile, args string) Reply {
	var date time.Time
	if args == "" {
		date = s.ledger.DayWindow(s.ledger.Now()).Start
	} else {
		d, err := time.ParseInLocation(time.DateOnly, args, s.ledger.Location())
		if err != nil {
			return s.reply(profile.UserID, fmt.Sprintf("Invalid date %q, use YYYY-MM-DD like 2024-01-15.", args))
		}
		date = d
	}

	entries, err := s.ledger.HistoryForDate(ctx, profile.UserID, date)
	if err != nil {
		return s.failure(log, profile.UserID, err)
	}
	return s.reply(profile.UserID, formatHistory(date, entries))
}

// cmdSave targets the most recent entry. Without a name it asks for one.
func (s *Service) cmdSave(ctx context.Context, log *zap.Logger, profile *models.UserProfile, args string) Reply {
	last, err := s.ledger.LastEntry(ctx, profile.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		return s.reply(profile.UserID, "There is nothing to save yet, log something first.")
	}
	if err != nil {
		return s.failure(log, profile.UserID, err)
	}

	current := s.convs.Get(profile.UserID)
	req := conversation.SaveRequested{Totals: last.Macros(), Grams: last.QuantityGrams}
	if args == "" {
		return s.apply(ctx, log, current, req, profile)
	}

	// a rejected name leaves the user in AwaitingMealName
	next, _ := conversation.Transition(current, req, s.ledger.Now())
	s.convs.Put(next)
	return s.apply(ctx, log, next, conversation.Reply{Text: args}, profile)
}

func (s *Service) cmdEat(ctx context.Context, log *zap.Logger, profile *models.UserProfile, args string) Reply {
	if args == "" {
		return s.reply(profile.UserID, "Usage: /eat <meal name>")
	}
	entry, meal, err := s.meals.Eat(ctx, profile.UserID, args)
	if err != nil {
		return s.failure(log, profile.UserID, err)
	}
	today, err := s.ledger.TotalsForLogicalDay(ctx, profile.UserID, s.ledger.Now())
	if err != nil {
		return s.failure(log, profile.UserID, err)
	}
	return s.reply(profile.UserID, fmt.Sprintf("Ate %s: %s\n\n%s",
		meal.Name, formatMacros(entry.Macros()), formatStatus("Today", today, profile.Goals)))
}

func (s *Service) cmdMeals(ctx context.Context, log *zap.Logger, profile *models.UserProfile, _ string) Reply {
	list, err := s.meals.List(ctx, profile.UserID)
	if err != nil {
		return s.failure(log, profile.UserID, err)
	}
	return s.reply(profile.UserID, formatMeals(list))
}

func (s *Service) cmdDeleteMeal(ctx context.Context, log *zap.Logger, profile *models.UserProfile, args string) Reply {
	if args == "" {
		return s.reply(profile.UserID, "Usage: /deletemeal <meal name>")
	}
	meal, err := s.meals.Delete(ctx, profile.UserID, args)
	if err != nil {
		return s.failure(log, profile.UserID, err)
	}
	return s.reply(profile.UserID, fmt.Sprintf("Deleted the meal %q.", meal.Name))
}

func (s *Service) cmdUndo(ctx context.Context, log *zap.Logger, profile *models.UserProfile, _ string) Reply {
	entry, err := s.ledger.UndoLast(ctx, profile.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		return s.reply(profile.UserID, "There are no entries to undo.")
	}
	if err != nil {
		return s.failure(log, profile.UserID, err)
	}
	today, err := s.ledger.TotalsForLogicalDay(ctx, profile.UserID, s.ledger.Now())
	if err != nil {
		return s.failure(log, profile.UserID, err)
	}
	return s.reply(profile.UserID, fmt.Sprintf("Removed %s (%d g, %d kcal).\n\n%s",
		entry.FoodName, entry.QuantityGrams, entry.Calories, formatStatus("Today", today, profile.Goals)))
}

func (s *Service) cmdGoals(ctx context.Context, log *zap.Logger, profile *models.UserProfile, args string) Reply {
	if args == "" {
		return s.reply(profile.UserID, formatGoals(profile.Goals)+"\n\nChange them with /goals <kcal> <protein> <carbs> <fat>")
	}

	fields := strings.Fields(args)
	if len(fields) != 4 {
		return s.reply(profile.UserID, "Usage: /goals <kcal> <protein> <carbs> <fat>, like /goals 2200 140 250 70")
	}
	values := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return s.reply(profile.UserID, fmt.Sprintf("%q is not a whole number.", f))
		}
		values[i] = v
	}

	goals := models.Goals{Calories: values[0], Protein: values[1], Carbs: values[2], Fat: values[3]}
	if err := s.validate.Struct(goals); err != nil {
		return s.reply(profile.UserID, validationText(err))
	}
	if err := s.users.UpdateGoals(ctx, profile.UserID, goals); err != nil {
		return s.failure(log, profile.UserID, apperror.Persistence("update goals", err))
	}
	log.Info("goals updated")
	return s.reply(profile.UserID, "Goals updated.\n\n"+formatGoals(goals))
}

func (s *Service) cmdCancel(ctx context.Context, log *zap.Logger, profile *models.UserProfile, _ string) Reply {
	return s.apply(ctx, log, s.convs.Get(profile.UserID), conversation.Cancel{}, profile)
}

// validationText joins validator failures into one sentence per field
func validationText(err error) string {
	var lines []string
	for _, m := range apperror.ValidationMessages(err) {
		for field, msg := range m {
			lines = append(lines, strings.ToLower(field)+" "+msg)
		}
	}
	if len(lines) == 0 {
		return "Those goals are not valid."
	}
	return "Those goals are not valid: " + strings.Join(lines, ", ") + "."
}
