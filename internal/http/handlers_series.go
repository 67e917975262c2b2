package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	applog "financas/internal/log"
	"financas/internal/storage"
)

const recentSeriesLimit = 20

type seriesItem struct {
	storage.SeriesRecord
	Description  string
	Installments int
	Total        string
	CanRetry     bool
	CanDiscard   bool
}

func (s *Server) handleSeriesList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := backendContext(r)
	defer cancel()

	records, err := s.series.Recent(ctx, recentSeriesLimit)
	if err != nil {
		s.fail(w, r, applog.OpList, err)
		return
	}

	items := make([]seriesItem, 0, len(records))
	for _, rec := range records {
		item := seriesItem{
			SeriesRecord: rec,
			Installments: len(rec.Rows),
			Total:        formatBRL(rec.Series().Total()),
			CanRetry:     rec.Status == storage.StatusPending || rec.Status == storage.StatusFailed,
			CanDiscard:   rec.Status == storage.StatusPending || rec.Status == storage.StatusFailed,
		}
		if len(rec.Rows) > 0 {
			item.Description = rec.Rows[0].Description
		}
		items = append(items, item)
	}
	s.render(w, r, "series_list", items)
}

func (s *Server) handleSeriesRetry(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx, cancel := backendContext(r)
	defer cancel()

	queued, err := s.series.Retry(ctx, groupID)
	if err != nil {
		s.fail(w, r, applog.OpRetry, err)
		return
	}

	msg := "Série reenviada"
	if queued {
		msg = "Série enviada para processamento"
	}
	NewHTMXResponse().
		TriggerSeriesChanged().
		TriggerSuccessNotification(msg).
		Write(w)
}

func (s *Server) handleSeriesDiscard(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	ctx, cancel := backendContext(r)
	defer cancel()

	if err := s.series.Discard(ctx, groupID); err != nil {
		s.fail(w, r, applog.OpDiscard, err)
		return
	}
	NewHTMXResponse().
		TriggerSeriesChanged().
		TriggerSuccessNotification("Série descartada").
		Write(w)
}
