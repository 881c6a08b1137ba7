package pricing

import (
	"strings"

	"github.com/sells-group/bid-intel/internal/apperr"
	"github.com/sells-group/bid-intel/internal/db"
)

// Filter narrows the bid rows an aggregate runs over. Zero values mean
// "no constraint".
type Filter struct {
	ItemNumber     string
	ExactItem      bool
	Contractor     string
	ContractNumber string
	ExactContract  bool
	Counties       []string
	Districts      []string
	YearStart      int
	YearEnd        int
	WinnersOnly    bool
}

// Validate rejects filters that can never match.
func (f Filter) Validate() error {
	if f.YearStart < 0 || f.YearEnd < 0 {
		return apperr.Validation("year must be positive")
	}
	if f.YearStart > 0 && f.YearEnd > 0 && f.YearStart > f.YearEnd {
		return apperr.Validation("yearStart %d is after yearEnd %d", f.YearStart, f.YearEnd)
	}
	return nil
}

// where compiles f into a builder. winners adds the is_winner predicate on
// top of f.WinnersOnly.
func (f Filter) where(d db.Dialect, winners bool) *db.Builder {
	b := db.NewBuilder(d)

	if item := strings.TrimSpace(f.ItemNumber); item != "" {
		if f.ExactItem {
			b.EqFold("item_number", item)
		} else {
			b.Contains("item_number", item)
		}
	}
	if name := strings.TrimSpace(f.Contractor); name != "" {
		b.Contains("bidder_name", name)
	}
	if contract := strings.TrimSpace(f.ContractNumber); contract != "" {
		if f.ExactContract {
			b.Eq("contract_number", contract)
		} else {
			b.Contains("contract_number", contract)
		}
	}
	b.InFold("county", compact(f.Counties))
	b.InFold("district", compact(f.Districts))
	if f.YearStart > 0 {
		b.Gte("letting_year", f.YearStart)
	}
	if f.YearEnd > 0 {
		b.Lte("letting_year", f.YearEnd)
	}
	if winners || f.WinnersOnly {
		b.Where("is_winner")
	}
	return b
}

// compact trims values and drops blanks.
func compact(vals []string) []string {
	var out []string
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// SplitList parses a comma separated query value into a list.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return compact(strings.Split(s, ","))
}
