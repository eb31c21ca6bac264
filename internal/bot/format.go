package bot

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/franckalain/nutritionbot/internal/models"
)

const helpText = `Hi! I keep track of what you eat.

Send me:
- a description, like "breakfast: two eggs, toast and coffee"
- a photo of your plate
- a barcode number, then the grams you had

Commands:
/status - today's totals against your goals
/history YYYY-MM-DD - the entries of one day
/save [name] - save your last entry as a meal
/eat <name> - log a saved meal
/meals - list your saved meals
/deletemeal <name> - delete a saved meal
/undo - remove your last entry
/goals <kcal> <protein> <carbs> <fat> - set your daily goals
/cancel - drop what I'm waiting for

A day starts in the early morning, so a late snack counts toward the evening before.`

func formatMacros(m models.Macros) string {
	return fmt.Sprintf("%d kcal | P %dg C %dg F %dg", m.Calories, m.Protein, m.Carbs, m.Fat)
}

func formatProduct(m *models.FoodMatch) string {
	v := m.Value
	return fmt.Sprintf("Found %s\nPer 100g: %s kcal | P %sg C %sg F %sg",
		m.Name, trimFloat(v.Calories), trimFloat(v.Protein), trimFloat(v.Carbs), trimFloat(v.Fat))
}

func formatBarcodeMiss(code string) string {
	return fmt.Sprintf("I couldn't find barcode %s. Try describing the food instead.", code)
}

func formatLogged(e *models.LoggedEntry, today models.DayTotals, goals models.Goals) string {
	return fmt.Sprintf("Logged %s, %dg: %s\n\n%s",
		e.FoodName, e.QuantityGrams, formatMacros(e.Macros()), formatStatus("Today", today, goals))
}

func formatFreeform(entries []*models.LoggedEntry, today models.DayTotals, goals models.Goals) string {
	var sb strings.Builder
	var subtotal models.Macros

	sb.WriteString("Logged:\n")
	for _, e := range entries {
		subtotal = subtotal.Add(e.Macros())
		fmt.Fprintf(&sb, "- %s, %dg: %s", e.FoodName, e.QuantityGrams, formatMacros(e.Macros()))
		if e.Source == models.SourceAIEstimate {
			sb.WriteString(" (estimate)")
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nAdded: %s\n\n", formatMacros(subtotal))
	sb.WriteString(formatStatus("Today", today, goals))
	return sb.String()
}

func formatStatus(title string, totals models.DayTotals, goals models.Goals) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%d entries):\n", title, totals.EntryCount)
	fmt.Fprintf(&sb, "Calories %s\n", progress(totals.Calories, goals.Calories, "kcal"))
	fmt.Fprintf(&sb, "Protein %s\n", progress(totals.Protein, goals.Protein, "g"))
	fmt.Fprintf(&sb, "Carbs %s\n", progress(totals.Carbs, goals.Carbs, "g"))
	fmt.Fprintf(&sb, "Fat %s", progress(totals.Fat, goals.Fat, "g"))
	return sb.String()
}

// progress renders "1200 / 2500 kcal (48%)"; a zero goal has no percentage
func progress(value, goal int, unit string) string {
	if goal <= 0 {
		return fmt.Sprintf("%d %s", value, unit)
	}
	pct := int(math.Round(float64(value) * 100 / float64(goal)))
	return fmt.Sprintf("%d / %d %s (%d%%)", value, goal, unit, pct)
}

func formatGoals(g models.Goals) string {
	return fmt.Sprintf("Your daily goals: %d kcal | P %dg C %dg F %dg", g.Calories, g.Protein, g.Carbs, g.Fat)
}

func formatHistory(date time.Time, entries []*models.LoggedEntry) string {
	day := date.Format(time.DateOnly)
	if len(entries) == 0 {
		return fmt.Sprintf("Nothing logged on %s.", day)
	}

	var total models.Macros
	var sb strings.Builder
	fmt.Fprintf(&sb, "History of %s:\n", day)
	for _, e := range entries {
		total = total.Add(e.Macros())
		fmt.Fprintf(&sb, "%s %s, %dg: %s\n", e.LoggedAt.Format("15:04"), e.FoodName, e.QuantityGrams, formatMacros(e.Macros()))
	}
	fmt.Fprintf(&sb, "\nTotal: %s", formatMacros(total))
	return sb.String()
}

func formatSavedMeal(m *models.SavedMeal) string {
	return fmt.Sprintf("Saved the meal %q: %s\nLog it again with /eat %s", m.Name, formatMacros(m.Macros()), m.Name)
}

func formatMeals(list []*models.SavedMeal) string {
	if len(list) == 0 {
		return "You have no saved meals yet. Use /save after logging something."
	}
	var sb strings.Builder
	sb.WriteString("Your saved meals:\n")
	for _, m := range list {
		fmt.Fprintf(&sb, "- %s: %s\n", m.Name, formatMacros(m.Macros()))
	}
	sb.WriteString("\nLog one with /eat <name>")
	return sb.String()
}

// trimFloat prints at most one decimal
func trimFloat(f float64) string {
	s := fmt.Sprintf("%.1f", f)
	return strings.TrimSuffix(s, ".0")
}
