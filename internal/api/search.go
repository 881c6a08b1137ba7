package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/bid-intel/internal/access"
	"github.com/sells-group/bid-intel/internal/apperr"
	"github.com/sells-group/bid-intel/internal/pricing"
)

const defaultListLimit = 50

// charge runs the access gate. It writes the error response and returns
// false when the caller may not search.
func (h *handler) charge(w http.ResponseWriter, r *http.Request) (access.Decision, bool) {
	d, err := h.Gate.CheckAccess(r.Context(), callerFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return d, false
	}
	return d, true
}

// limit bounds a requested list size by the caller's tier and the server.
func (h *handler) limit(d access.Decision, requested int) int {
	return h.Engine.Cap(d.Cap(requested))
}

type payItemResponse struct {
	Item        *pricing.ItemPrice       `json:"item"`
	YearlyTrend []pricing.PricingSummary `json:"yearly_trend"`
	RecentBids  []pricing.LineBid        `json:"recent_bids"`
	WinnersOnly bool                     `json:"winning_bids_only"`
	Access      access.Decision          `json:"access"`
}

func (h *handler) searchPayItem(w http.ResponseWriter, r *http.Request) {
	item := strings.TrimSpace(chi.URLParam(r, "item"))
	f, err := filterParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	requested, err := intParam(r, "limit", h.Pricing.RecentBids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if item == "" {
		writeError(w, r, apperr.Validation("item number is required"))
		return
	}
	f.ItemNumber = item
	f.ExactItem = boolParam(r, "exact")

	d, ok := h.charge(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	p, err := h.Engine.PriceByItem(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if p == nil {
		writeError(w, r, apperr.NotFound("pay item %s not found", item))
		return
	}

	f.ItemNumber, f.ExactItem = p.ItemNumber, true
	trend, err := h.Engine.PriceByItemAndYear(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recent, err := h.Engine.RecentBids(ctx, f, h.limit(d, requested))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, payItemResponse{
		Item:        p,
		YearlyTrend: trend,
		RecentBids:  recent,
		WinnersOnly: h.Engine.WinnersOnly(),
		Access:      d,
	})
}

type contractorResponse struct {
	Contractor string                   `json:"contractor"`
	Stats      *pricing.ContractorStats `json:"stats"`
	Bids       []pricing.ContractBid    `json:"bids"`
	Access     access.Decision          `json:"access"`
}

func (h *handler) searchContractor(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	f, err := filterParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	requested, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if name == "" {
		writeError(w, r, apperr.Validation("contractor name is required"))
		return
	}
	f.Contractor = name

	d, ok := h.charge(w, r)
	if !ok {
		return
	}

	stats, err := h.Engine.ContractorSummary(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	bids, err := h.Engine.ContractorBids(r.Context(), f, h.limit(d, requested))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, contractorResponse{Contractor: name, Stats: stats, Bids: bids, Access: d})
}

func (h *handler) searchContract(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "contractNumber"))
	if number == "" {
		writeError(w, r, apperr.Validation("contract number is required"))
		return
	}

	if _, ok := h.charge(w, r); !ok {
		return
	}

	detail, err := h.Engine.ContractDetail(r.Context(), number)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type itemSummaryResponse struct {
	Items          []pricing.ItemPrice `json:"items"`
	MinOccurrences int                 `json:"min_occurrences"`
	WinnersOnly    bool                `json:"winning_bids_only"`
	Access         access.Decision     `json:"access"`
}

func (h *handler) itemSummary(w http.ResponseWriter, r *http.Request) {
	f, err := filterParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	minOcc, err := intParam(r, "minOccurrences", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	requested, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	d, ok := h.charge(w, r)
	if !ok {
		return
	}

	items, err := h.Engine.PriceItems(r.Context(), f, minOcc, h.limit(d, requested))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemSummaryResponse{
		Items:          items,
		MinOccurrences: max(minOcc, 1),
		WinnersOnly:    h.Engine.WinnersOnly(),
		Access:         d,
	})
}

func (h *handler) geoComparison(dim pricing.Dimension) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item := strings.TrimSpace(chi.URLParam(r, "item"))
		f, err := filterParams(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if item == "" {
			writeError(w, r, apperr.Validation("item number is required"))
			return
		}

		if _, ok := h.charge(w, r); !ok {
			return
		}

		cmp, err := h.Engine.CompareGeo(r.Context(), item, f, dim)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, cmp)
	}
}
