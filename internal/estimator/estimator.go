// Package estimator prices an uploaded list of pay items against historical
// winning bids and returns the list as an annotated workbook.
package estimator

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bid-intel/internal/apperr"
	"github.com/sells-group/bid-intel/internal/pricing"
	"github.com/sells-group/bid-intel/internal/sheet"
)

// NotFound marks the price cell of an item with no winning bid history.
const NotFound = "NOT FOUND"

const (
	defaultMaxItems    = 300
	defaultConcurrency = 8
)

// Input columns.
const (
	colItem = iota
	colDescription
	colQuantity
	colUnit
	inputColumns
)

// Pricer looks up the price profile of one item.
type Pricer interface {
	PriceByItem(ctx context.Context, f pricing.Filter) (*pricing.ItemPrice, error)
}

// Options configures an Estimator.
type Options struct {
	MaxItems    int
	Concurrency int
}

// Estimator runs the bulk pricing workflow.
type Estimator struct {
	pricer      Pricer
	maxItems    int
	concurrency int
}

// New creates an Estimator pricing items through p.
func New(p Pricer, opts Options) *Estimator {
	if opts.MaxItems <= 0 {
		opts.MaxItems = defaultMaxItems
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	return &Estimator{pricer: p, maxItems: opts.MaxItems, concurrency: opts.Concurrency}
}

// MaxItems is the largest accepted item list.
func (e *Estimator) MaxItems() int { return e.maxItems }

// Request holds the filters applied to every lookup.
type Request struct {
	Districts []string
	YearStart int
	YearEnd   int
}

func (r Request) filter(item string) pricing.Filter {
	return pricing.Filter{
		ItemNumber:  item,
		ExactItem:   true,
		Districts:   r.Districts,
		YearStart:   r.YearStart,
		YearEnd:     r.YearEnd,
		WinnersOnly: true,
	}
}

// Line is one priced input row.
type Line struct {
	Row         int              `json:"row"`
	ItemNumber  string           `json:"item_number"`
	Description string           `json:"description"`
	Unit        string           `json:"unit"`
	Quantity    float64          `json:"quantity"`
	Found       bool             `json:"found"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Extension   *decimal.Decimal `json:"extension"`
	BidCount    int              `json:"bid_count"`

	quantityOK bool
}

// Summary totals a run.
type Summary struct {
	RunID          string          `json:"run_id"`
	ItemsRequested int             `json:"items_requested"`
	ItemsPriced    int             `json:"items_priced"`
	ItemsNotFound  int             `json:"items_not_found"`
	TotalValue     decimal.Decimal `json:"total_estimated_value"`
	Districts      []string        `json:"districts"`
	YearStart      int             `json:"year_start,omitempty"`
	YearEnd        int             `json:"year_end,omitempty"`
}

// Result is the output of PriceWorkbook.
type Result struct {
	Workbook []byte
	Summary  Summary
	Lines    []Line
}

// PriceWorkbook reads the first sheet of data, prices each item and returns
// the annotated workbook. Items without winning bids are marked NotFound;
// they are not errors.
func (e *Estimator) PriceWorkbook(ctx context.Context, data []byte, req Request) (*Result, error) {
	if err := req.filter("").Validate(); err != nil {
		return nil, err
	}

	rows, err := sheet.ReadXLSXBytes(data, sheet.Options{})
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, "upload is not a readable xlsx workbook")
	}

	header := len(rows) > 0 && IsHeader(sheet.Cell(rows[0], colItem))
	lines, err := e.collect(rows, header)
	if err != nil {
		return nil, err
	}

	if err := e.price(ctx, lines, req); err != nil {
		return nil, err
	}

	sum := summarize(lines, req)
	out, err := render(rows, header, lines, sum)
	if err != nil {
		return nil, err
	}

	zap.L().Info("estimator: workbook priced",
		zap.String("run_id", sum.RunID),
		zap.Int("items", sum.ItemsRequested),
		zap.Int("priced", sum.ItemsPriced),
		zap.Int("not_found", sum.ItemsNotFound),
		zap.String("total", sum.TotalValue.StringFixed(2)),
	)
	return &Result{Workbook: out, Summary: sum, Lines: lines}, nil
}

// IsHeader reports whether a first cell looks like a column title.
func IsHeader(cell string) bool {
	c := strings.ToLower(cell)
	return strings.Contains(c, "item") || strings.Contains(c, "number") || strings.Contains(c, "code")
}

// collect turns non-empty item rows into lines. Exceeding the item cap
// rejects the whole upload.
func (e *Estimator) collect(rows [][]string, header bool) ([]Line, error) {
	start := 0
	if header {
		start = 1
	}

	var lines []Line
	for i := start; i < len(rows); i++ {
		item := strings.TrimSpace(sheet.Cell(rows[i], colItem))
		if item == "" {
			continue
		}
		if len(lines) == e.maxItems {
			return nil, apperr.Newf(apperr.KindTooManyItems,
				"upload has more than %d items; split it into smaller files", e.maxItems)
		}
		qty, ok := ParseQuantity(sheet.Cell(rows[i], colQuantity))
		lines = append(lines, Line{
			Row:         i,
			ItemNumber:  item,
			Description: strings.TrimSpace(sheet.Cell(rows[i], colDescription)),
			Unit:        strings.TrimSpace(sheet.Cell(rows[i], colUnit)),
			Quantity:    qty,
			quantityOK:  ok,
		})
	}

	if len(lines) == 0 {
		return nil, apperr.Validation("no items found in column A")
	}
	return lines, nil
}

// ParseQuantity reads a quantity cell. Thousands separators are accepted;
// anything unparseable or negative is 0.
func ParseQuantity(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	q, err := strconv.ParseFloat(s, 64)
	if err != nil || q < 0 {
		return 0, false
	}
	return q, true
}

// price looks up every line concurrently. Each goroutine writes only its own
// slot, so output order is input order.
func (e *Estimator) price(ctx context.Context, lines []Line, req Request) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range lines {
		g.Go(func() error {
			p, err := e.pricer.PriceByItem(gctx, req.filter(lines[i].ItemNumber))
			if err != nil {
				return eris.Wrapf(err, "estimator: price item %s", lines[i].ItemNumber)
			}
			lines[i].apply(p)
			return nil
		})
	}

	return g.Wait()
}

func (l *Line) apply(p *pricing.ItemPrice) {
	if p == nil || p.WeightedAvgPrice == nil {
		return
	}
	price := decimal.NewFromFloat(*p.WeightedAvgPrice).Round(2)
	ext := price.Mul(decimal.NewFromFloat(l.Quantity)).Round(2)

	l.Found = true
	l.UnitPrice = &price
	l.Extension = &ext
	l.BidCount = p.BidCount
	if l.Description == "" {
		l.Description = p.Description
	}
	if l.Unit == "" {
		l.Unit = p.Unit
	}
}

func summarize(lines []Line, req Request) Summary {
	s := Summary{
		RunID:          uuid.New().String(),
		ItemsRequested: len(lines),
		TotalValue:     decimal.Zero,
		Districts:      req.Districts,
		YearStart:      req.YearStart,
		YearEnd:        req.YearEnd,
	}
	if s.Districts == nil {
		s.Districts = []string{}
	}
	for _, l := range lines {
		if !l.Found {
			s.ItemsNotFound++
			continue
		}
		s.ItemsPriced++
		s.TotalValue = s.TotalValue.Add(*l.Extension)
	}
	return s
}
