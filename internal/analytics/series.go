package analytics

import (
	"sort"

	"financas/internal/core"
)

var monthLabels = [...]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}

// MonthPoint is one month of a chart series.
type MonthPoint struct {
	Key    string // YYYY-MM
	Label  string // "mar/24"
	Amount core.Money
}

// TrendLine is the monthly series of a single category.
type TrendLine struct {
	Category string
	Total    core.Money
	Points   []MonthPoint
}

// window returns the months ending at end's month, oldest first.
func window(end core.Date, months int) []MonthPoint {
	if months <= 0 {
		return nil
	}
	first := core.NewDate(end.Year(), end.Month(), 1).AddMonths(-(months - 1))
	out := make([]MonthPoint, months)
	for i := range out {
		d := first.AddMonths(i)
		out[i] = MonthPoint{
			Key:   d.MonthKey(),
			Label: monthLabels[d.Month()-1] + "/" + d.Format("06"),
		}
	}
	return out
}

func monthKey(p core.MonthTotal) string {
	return core.NewDate(p.Year, p.Month, 1).MonthKey()
}

// MonthlySeries sums points into a contiguous window of months ending at end.
// Months without data are present with a zero amount; points outside the
// window are ignored.
func MonthlySeries(points []core.MonthTotal, end core.Date, months int) []MonthPoint {
	out := window(end, months)
	index := make(map[string]int, len(out))
	for i, p := range out {
		index[p.Key] = i
	}
	for _, p := range points {
		if i, ok := index[monthKey(p)]; ok {
			out[i].Amount = out[i].Amount.Add(p.Amount)
		}
	}
	return out
}

// CategoryTrend groups points by category and zero-fills each category over
// the same window. Lines are ordered by their total, largest first.
func CategoryTrend(points []core.MonthTotal, end core.Date, months int) []TrendLine {
	byCategory := make(map[string][]core.MonthTotal)
	for _, p := range points {
		name := p.Category
		if name == "" {
			name = OtherLabel
		}
		byCategory[name] = append(byCategory[name], p)
	}

	lines := make([]TrendLine, 0, len(byCategory))
	for name, pts := range byCategory {
		line := TrendLine{Category: name, Points: MonthlySeries(pts, end, months)}
		for _, p := range line.Points {
			line.Total = line.Total.Add(p.Amount)
		}
		if line.Total.Cents == 0 {
			continue
		}
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Total.Cents != lines[j].Total.Cents {
			return lines[i].Total.Cents > lines[j].Total.Cents
		}
		return lines[i].Category < lines[j].Category
	})
	return lines
}
