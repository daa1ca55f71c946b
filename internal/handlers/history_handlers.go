package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"admission-forecast/internal/models"
	"admission-forecast/internal/repository"
	"admission-forecast/internal/services"
)

// GetHistory handles GET /api/history
func (h *ForecastHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.timer("/api/history").ObserveDuration()

	// Parse query parameters
	kind := r.URL.Query().Get("kind")
	pageStr := r.URL.Query().Get("page")
	limitStr := r.URL.Query().Get("limit")

	// Default pagination
	page := 1
	limit := 100

	if pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			limit = l
		}
	}

	filter := repository.HistoryFilter{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if kind != "" {
		switch kind {
		case services.KindSingle, services.KindDays, services.KindMonth:
		default:
			h.sendServiceError(w, r, &models.ValidationError{
				Field:   "kind",
				Value:   kind,
				Message: "kind must be one of single, days, month",
			})
			return
		}
		filter.RequestKind = &kind
	}

	var err error
	if filter.StartDate, filter.EndDate, err = parseDateRange(r); err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	logs, total, err := h.historyService.GetHistory(ctx, filter)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	response := PaginatedResponse{
		Data:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}

	h.metrics.RecordAPIRequest("/api/history", "GET", "200")
	h.sendJSON(w, response, http.StatusOK)
}

// GetHistoryEntry handles GET /api/history/{id}
func (h *ForecastHandler) GetHistoryEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.timer("/api/history/{id}").ObserveDuration()

	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.sendServiceError(w, r, &models.ValidationError{
			Field:   "id",
			Value:   idStr,
			Message: "id must be a positive integer",
		})
		return
	}

	entry, err := h.historyService.GetEntry(ctx, id)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	h.metrics.RecordAPIRequest("/api/history/{id}", "GET", "200")
	h.sendJSON(w, entry, http.StatusOK)
}

// GetHistorySummary handles GET /api/history/summary
func (h *ForecastHandler) GetHistorySummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.timer("/api/history/summary").ObserveDuration()

	startDate, endDate, err := parseDateRange(r)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}

	summaries, err := h.historyService.SummarizeByWeekday(ctx, startDate, endDate)
	if err != nil {
		h.sendServiceError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []*models.WeekdaySummary{}
	}

	h.metrics.RecordAPIRequest("/api/history/summary", "GET", "200")
	h.sendJSON(w, map[string]interface{}{
		"summary": summaries,
	}, http.StatusOK)
}

func parseDateRange(r *http.Request) (*time.Time, *time.Time, error) {
	var start, end *time.Time
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"start_date", &start},
		{"end_date", &end},
	} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		d, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			return nil, nil, &models.ValidationError{
				Field:   p.name,
				Value:   raw,
				Message: "invalid " + p.name + " format, expected YYYY-MM-DD",
			}
		}
		*p.dst = &d
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, &models.ValidationError{
			Field:   "end_date",
			Message: "end_date must not be before start_date",
		}
	}
	return start, end, nil
}
