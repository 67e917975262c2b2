// Package recurrence previews the occurrences of a recurring transaction.
//
// Each frequency (daily, weekly, monthly, yearly) has its own Stepper that
// knows how to compute the n-th occurrence from the start date. Occurrences
// are always derived from the start date, never from the previous one, so a
// template starting on the 31st keeps returning to the 31st after a short month.
package recurrence

import (
	"fmt"
	"sync"

	"financas/internal/core"
)

// Stepper computes the n-th occurrence (0-based) of a series starting at start.
type Stepper interface {
	Step(start core.Date, n int) core.Date
}

// DailyStepper advances one day per occurrence.
type DailyStepper struct{}

func (DailyStepper) Step(start core.Date, n int) core.Date {
	return start.AddDays(n)
}

// WeeklyStepper advances seven days per occurrence.
type WeeklyStepper struct{}

func (WeeklyStepper) Step(start core.Date, n int) core.Date {
	return start.AddDays(7 * n)
}

// MonthlyStepper keeps the start day of month, clamped to shorter months.
type MonthlyStepper struct{}

func (MonthlyStepper) Step(start core.Date, n int) core.Date {
	return start.AddMonths(n)
}

// YearlyStepper keeps month and day; Feb 29 falls back to Feb 28.
type YearlyStepper struct{}

func (YearlyStepper) Step(start core.Date, n int) core.Date {
	return start.AddMonths(12 * n)
}

var (
	mu       sync.RWMutex
	steppers = map[core.Frequency]Stepper{
		core.Daily:   DailyStepper{},
		core.Weekly:  WeeklyStepper{},
		core.Monthly: MonthlyStepper{},
		core.Yearly:  YearlyStepper{},
	}
)

// GetStepper returns the stepper registered for a frequency.
func GetStepper(f core.Frequency) (Stepper, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := steppers[f]
	if !ok {
		return nil, fmt.Errorf("unknown repetition type: %s", f)
	}
	return s, nil
}

// Register installs a stepper for a frequency, replacing any existing one.
func Register(f core.Frequency, s Stepper) {
	mu.Lock()
	defer mu.Unlock()
	steppers[f] = s
}
