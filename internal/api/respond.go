package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/sells-group/bid-intel/internal/apperr"
	"github.com/sells-group/bid-intel/internal/pricing"
)

type errorBody struct {
	Error  string      `json:"error"`
	Reason apperr.Kind `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

// writeError renders err with the status of its kind. Server-side failures
// are logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		err = apperr.Newf(apperr.KindValidation, "upload exceeds %d MB", tooBig.Limit>>20)
	}

	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: apperr.PublicMessage(err), Reason: kind})
}

// intParam reads an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	if n < 0 {
		return 0, apperr.Validation("%s must not be negative", name)
	}
	return n, nil
}

// filterParams reads the shared geography and year filters.
func filterParams(r *http.Request) (pricing.Filter, error) {
	q := r.URL.Query()
	f := pricing.Filter{
		Counties:  pricing.SplitList(q.Get("county")),
		Districts: pricing.SplitList(q.Get("district")),
	}

	var err error
	if f.YearStart, err = intParam(r, "yearStart", 0); err != nil {
		return f, err
	}
	if f.YearEnd, err = intParam(r, "yearEnd", 0); err != nil {
		return f, err
	}
	if year, err := intParam(r, "year", 0); err != nil {
		return f, err
	} else if year > 0 {
		f.YearStart, f.YearEnd = year, year
	}
	return f, f.Validate()
}

func boolParam(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
