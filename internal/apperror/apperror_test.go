package apperror

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence("insert entry", cause)

	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrInvalidInput)

	assert.ErrorIs(t, InvalidInput("bad %s", "code"), ErrInvalidInput)
	assert.ErrorIs(t, NotFound("nothing"), ErrNotFound)
	assert.ErrorIs(t, Transient("usda", cause), ErrTransientProvider)
	assert.ErrorIs(t, EstimationFailed(cause), ErrEstimationFailed)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "quantity must be positive", UserMessage(InvalidInput("quantity must be positive"), "oops"))
	assert.Equal(t, "no meal called x", UserMessage(NotFound("no meal called x"), "oops"))
	assert.Equal(t, "oops", UserMessage(Persistence("insert", errors.New("boom")), "oops"))
	assert.Equal(t, "oops", UserMessage(errors.New("plain"), "oops"))
}

type Goals struct {
	Calories int `validate:"gt=0,lte=20000"`
	Protein  int `validate:"gte=0,lte=2000"`
}

func TestValidationMessages(t *testing.T) {
	err := validator.New().Struct(Goals{Calories: 0, Protein: 5000})
	require.Error(t, err)

	msgs := ValidationMessages(err)
	assert.ElementsMatch(t, []map[string]string{
		{"Calories": "must be a positive number"},
		{"Protein": "is out of range"},
	}, msgs)

	assert.Empty(t, ValidationMessages(errors.New("not a validation error")))
}
