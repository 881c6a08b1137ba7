package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/sells-group/bid-intel/internal/apperr"
	"github.com/sells-group/bid-intel/internal/estimator"
	"github.com/sells-group/bid-intel/internal/pricing"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var estimatorHeaders = []string{
	"X-Estimator-Run-Id",
	"X-Estimator-Items-Requested",
	"X-Estimator-Items-Priced",
	"X-Estimator-Items-Not-Found",
	"X-Estimator-Total-Value",
	"Content-Disposition",
}

// priceItems checks the gate before the upload is read.
func (h *handler) priceItems(w http.ResponseWriter, r *http.Request) {
	if err := h.Gate.RequireEstimator(callerFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.KindValidation, "expected a multipart upload with a file field"))
		return
	}

	req := estimator.Request{Districts: pricing.SplitList(r.FormValue("districts"))}
	var err error
	if req.YearStart, err = formInt(r, "yearStart"); err != nil {
		writeError(w, r, err)
		return
	}
	if req.YearEnd, err = formInt(r, "yearEnd"); err != nil {
		writeError(w, r, err)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.KindValidation, "file is required"))
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, apperr.Wrap(err, apperr.KindValidation, "could not read upload"))
		return
	}

	res, err := h.Estimator.PriceWorkbook(r.Context(), data, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sum := res.Summary
	hdr := w.Header()
	hdr.Set("Content-Type", xlsxContentType)
	hdr.Set("Content-Disposition", `attachment; filename="priced-items-`+sum.RunID+`.xlsx"`)
	hdr.Set("X-Estimator-Run-Id", sum.RunID)
	hdr.Set("X-Estimator-Items-Requested", strconv.Itoa(sum.ItemsRequested))
	hdr.Set("X-Estimator-Items-Priced", strconv.Itoa(sum.ItemsPriced))
	hdr.Set("X-Estimator-Items-Not-Found", strconv.Itoa(sum.ItemsNotFound))
	hdr.Set("X-Estimator-Total-Value", sum.TotalValue.StringFixed(2))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Workbook)
}

func formInt(r *http.Request, name string) (int, error) {
	s := r.FormValue(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperr.Validation("%s must be a year", name)
	}
	return n, nil
}

func (h *handler) template(w http.ResponseWriter, r *http.Request) {
	data, err := h.Estimator.Template()
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="bulk-pricing-template.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
