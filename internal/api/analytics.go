package api

import (
	"net/http"

	"github.com/sells-group/bid-intel/internal/access"
	"github.com/sells-group/bid-intel/internal/pricing"
)

const defaultTopLimit = 20

// Analytics endpoints are not charged; their lists are still capped by the
// caller's tier.

func (h *handler) decision(r *http.Request) access.Decision {
	lim := h.Gate.Limits(callerFrom(r.Context()))
	return access.Decision{Allowed: true, ResultCap: lim.ResultsPerQuery, IsPro: lim.State == access.ProActive}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	n, err := h.Engine.CountBids(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "bid_rows": n})
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":            "ok",
		"driver":            h.Driver,
		"winning_bids_only": h.Engine.WinnersOnly(),
		"max_results":       h.Engine.Cap(0),
	}
	if h.Breaker != nil {
		body["store_circuit"] = h.Breaker.State().String()
		body["store_failures"] = h.Breaker.Failures()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) analyticsSummary(w http.ResponseWriter, r *http.Request) {
	o, err := h.Engine.Overview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) topContractors(w http.ResponseWriter, r *http.Request) {
	requested, err := intParam(r, "limit", defaultTopLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	minContracts, err := intParam(r, "minContracts", pricing.DefaultMinContracts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	top, err := h.Engine.TopContractors(r.Context(), minContracts, h.limit(h.decision(r), requested))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contractors": top})
}

func (h *handler) countyStats(w http.ResponseWriter, r *http.Request) {
	requested, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := h.Engine.CountyStats(r.Context(), h.limit(h.decision(r), requested))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"counties": stats})
}

type page struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

func (h *handler) listContracts(w http.ResponseWriter, r *http.Request) {
	f, err := filterParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	requested, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := h.limit(h.decision(r), requested)
	rows, total, err := h.Engine.ListContracts(r.Context(), f, offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Contracts []pricing.ContractRow `json:"contracts"`
		page
	}{rows, page{Total: total, Offset: offset, Limit: limit}})
}

func (h *handler) listContractors(w http.ResponseWriter, r *http.Request) {
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	requested, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit := h.limit(h.decision(r), requested)
	rows, total, err := h.Engine.ListContractors(r.Context(), offset, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Contractors []pricing.ContractorRow `json:"contractors"`
		page
	}{rows, page{Total: total, Offset: offset, Limit: limit}})
}

type limitsResponse struct {
	Limits    access.Limits  `json:"limits"`
	Remaining *int           `json:"remaining_searches"`
	Caller    *access.Caller `json:"caller"`
}

func (h *handler) accountLimits(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	remaining, err := h.Gate.Remaining(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, limitsResponse{Limits: h.Gate.Limits(c), Remaining: remaining, Caller: c})
}
