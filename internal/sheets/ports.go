package sheets

import (
	"context"

	"financas/internal/core"
)

// Ports for outbound adapters.
type (
	// RowWriter mirrors submitted transactions into a spreadsheet.
	RowWriter interface {
		// AppendRows appends rows in order and returns a reference to the written range.
		AppendRows(ctx context.Context, rows []core.Transaction) (rowRef string, err error)
	}

	// TaxonomyReader lists the category names offered as form suggestions.
	TaxonomyReader interface {
		List(ctx context.Context) (categories []string, subcategories []string, err error)
	}
)
