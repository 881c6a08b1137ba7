package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

var dateLayouts = []string{
	time.DateOnly,
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	time.DateTime,
	"01-02-2006",
	"01-02-06",
	"1-2-06",
}

// excelEpoch is day zero of the 1900 date system as Excel counts it.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseLettingDate normalizes a letting date to YYYY-MM-DD and returns its
// year. Excel serial day numbers are accepted.
func ParseLettingDate(s string) (string, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0, eris.New("ingest: empty letting date")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.DateOnly), t.Year(), nil
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 2958466 {
		t := excelEpoch.AddDate(0, 0, int(serial))
		return t.Format(time.DateOnly), t.Year(), nil
	}

	return "", 0, eris.Errorf("ingest: unrecognized letting date %q", s)
}
