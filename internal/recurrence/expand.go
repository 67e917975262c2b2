package recurrence

import (
	"fmt"

	"github.com/google/uuid"

	"financas/internal/core"
)

// MaxPreview bounds how many occurrences a single preview may produce.
const MaxPreview = 366

// Expand returns the next count occurrences of tmpl as transaction rows that
// share one group id. Occurrences past a non-zero EndDate are dropped, so the
// result may be shorter than count.
func Expand(tmpl core.RecurringTemplate, count int) (core.Series, error) {
	if err := tmpl.Validate(); err != nil {
		return core.Series{}, fmt.Errorf("invalid recurring template: %w", err)
	}
	if count <= 0 || count > MaxPreview {
		return core.Series{}, fmt.Errorf("occurrence count must be between 1 and %d, got %d", MaxPreview, count)
	}

	stepper, err := GetStepper(tmpl.Every)
	if err != nil {
		return core.Series{}, err
	}

	series := core.Series{GroupID: uuid.NewString()}
	for n := 0; n < count; n++ {
		when := stepper.Step(tmpl.StartDate, n)
		if !tmpl.EndDate.IsEmpty() && when.After(tmpl.EndDate) {
			break
		}
		series.Rows = append(series.Rows, core.Transaction{
			Kind:            tmpl.Kind,
			Date:            when,
			DueDate:         when,
			Description:     tmpl.Description,
			Amount:          tmpl.Amount,
			Category:        tmpl.Category,
			Subcategory:     tmpl.Subcategory,
			PaymentMethodID: tmpl.PaymentMethodID,
			GroupID:         series.GroupID,
		})
	}
	return series, nil
}
