// Package analytics shapes backend aggregates into chart-ready series.
package analytics

import (
	"sort"
	"strings"

	"financas/internal/core"
)

// OtherLabel names the bucket that collects categories outside the top N.
const OtherLabel = "Outros"

// MinBarWidth is the smallest bar width, in percent, given to a non-zero slice.
const MinBarWidth = 2

// Slice is one entry of a distribution chart.
type Slice struct {
	Name    string
	Amount  core.Money
	Percent int // share of the total, all slices sum to 100
	Width   int // bar width relative to the largest slice, 0..100
}

// Distribution sorts totals by amount, keeps the topN largest and folds the
// rest into an "Outros" slice. Entries with blank names are merged into the
// bucket too. Non-positive amounts are ignored. topN <= 0 keeps everything.
func Distribution(totals []core.CategoryTotal, topN int) []Slice {
	merged := make(map[string]int64)
	var order []string
	for _, t := range totals {
		if t.Amount.Cents <= 0 {
			continue
		}
		name := strings.TrimSpace(t.Name)
		if name == "" {
			name = OtherLabel
		}
		if _, ok := merged[name]; !ok {
			order = append(order, name)
		}
		merged[name] += t.Amount.Cents
	}

	slices := make([]Slice, 0, len(order))
	var other int64
	for _, name := range order {
		if name == OtherLabel {
			other += merged[name]
			continue
		}
		slices = append(slices, Slice{Name: name, Amount: core.Money{Cents: merged[name]}})
	}
	sort.SliceStable(slices, func(i, j int) bool {
		if slices[i].Amount.Cents != slices[j].Amount.Cents {
			return slices[i].Amount.Cents > slices[j].Amount.Cents
		}
		return slices[i].Name < slices[j].Name
	})

	if topN > 0 && len(slices) > topN {
		for _, s := range slices[topN:] {
			other += s.Amount.Cents
		}
		slices = slices[:topN]
	}
	if other > 0 {
		slices = append(slices, Slice{Name: OtherLabel, Amount: core.Money{Cents: other}})
	}

	assignPercentages(slices)
	assignWidths(slices)
	return slices
}

// assignPercentages uses the largest remainder method so that the integer
// percentages always add up to exactly 100.
func assignPercentages(slices []Slice) {
	var total int64
	for _, s := range slices {
		total += s.Amount.Cents
	}
	if total == 0 {
		return
	}

	type rem struct {
		idx int
		r   int64
	}
	rems := make([]rem, len(slices))
	assigned := 0
	for i := range slices {
		scaled := slices[i].Amount.Cents * 100
		slices[i].Percent = int(scaled / total)
		assigned += slices[i].Percent
		rems[i] = rem{idx: i, r: scaled % total}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].r > rems[b].r })
	for k := 0; assigned < 100; k++ {
		slices[rems[k%len(rems)].idx].Percent++
		assigned++
	}
}

func assignWidths(slices []Slice) {
	var largest int64
	for _, s := range slices {
		if s.Amount.Cents > largest {
			largest = s.Amount.Cents
		}
	}
	if largest == 0 {
		return
	}
	for i := range slices {
		w := int(slices[i].Amount.Cents * 100 / largest)
		if w < MinBarWidth && slices[i].Amount.Cents > 0 {
			w = MinBarWidth
		}
		slices[i].Width = w
	}
}
