package estimator

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/bid-intel/internal/sheet"
)

const outputSheet = "Priced Items"

var pricingHeaders = []string{"Unit Price", "Extension", "Bid Count"}

var templateHeaders = []string{"Item Number", "Description", "Quantity", "Unit"}

var instructions = []string{
	"Bulk Pricing Template",
	"",
	"1. Enter one pay item number per row in column A, starting on row 2.",
	"2. Description (column B) and Unit (column D) are optional; blanks are filled from bid history.",
	"3. Enter the quantity in column C. Non-numeric quantities are treated as 0.",
	"4. Upload up to 300 items per file.",
	"",
	"Prices are weighted averages of winning bids: total extension divided by total quantity.",
	"Items with no winning bid history are marked NOT FOUND.",
}

// render copies the input rows, appends the pricing columns, and writes a
// summary block below them. Input without a header row gets one.
func render(rows [][]string, header bool, lines []Line, sum Summary) ([]byte, error) {
	width := inputColumns
	for _, r := range rows {
		width = max(width, len(r))
	}

	byRow := make(map[int]*Line, len(lines))
	for i := range lines {
		byRow[lines[i].Row] = &lines[i]
	}

	wb := sheet.NewWorkbook()
	s, err := wb.AddSheet(outputSheet)
	if err != nil {
		return nil, err
	}

	start := 0
	if header {
		start = 1
		s.AddRow(append(pad(rows[0], width), toAny(pricingHeaders)...)...)
	} else {
		s.AddRow(append(pad(templateHeaders, width), toAny(pricingHeaders)...)...)
	}

	for i := start; i < len(rows); i++ {
		cells := pad(rows[i], width)
		l, ok := byRow[i]
		if !ok {
			s.AddRow(cells...)
			continue
		}

		cells[colItem] = l.ItemNumber
		cells[colDescription] = l.Description
		cells[colUnit] = l.Unit
		if l.quantityOK {
			cells[colQuantity] = l.Quantity
		}

		if l.Found {
			cells = append(cells, money(*l.UnitPrice), money(*l.Extension), l.BidCount)
		} else {
			cells = append(cells, NotFound, nil, 0)
		}
		s.AddRow(cells...)
	}

	s.AddRow()
	writeSummary(s, sum)
	return wb.Bytes()
}

func writeSummary(s *sheet.Sheet, sum Summary) {
	s.AddRow("Summary")
	s.AddRow("Run ID", sum.RunID)
	s.AddRow("Items Requested", sum.ItemsRequested)
	s.AddRow("Items Priced", sum.ItemsPriced)
	s.AddRow("Items Not Found", sum.ItemsNotFound)
	s.AddRow("Total Estimated Value", money(sum.TotalValue))
	s.AddRow("Districts", describeDistricts(sum.Districts))
	s.AddRow("Years", describeYears(sum.YearStart, sum.YearEnd))
	s.AddRow("Price Basis", "Weighted average of winning bids")
}

func describeDistricts(d []string) string {
	if len(d) == 0 {
		return "All"
	}
	return strings.Join(d, ", ")
}

func describeYears(start, end int) string {
	switch {
	case start > 0 && end > 0:
		return strconv.Itoa(start) + "-" + strconv.Itoa(end)
	case start > 0:
		return strconv.Itoa(start) + " and later"
	case end > 0:
		return "through " + strconv.Itoa(end)
	default:
		return "All"
	}
}

// Template returns a blank upload workbook with an instructions sheet.
func (e *Estimator) Template() ([]byte, error) {
	wb := sheet.NewWorkbook()
	items, err := wb.AddSheet("Items")
	if err != nil {
		return nil, err
	}
	items.AddRow(toAny(templateHeaders)...)

	help, err := wb.AddSheet("Instructions")
	if err != nil {
		return nil, err
	}
	for _, line := range instructions {
		help.AddRow(line)
	}
	return wb.Bytes()
}

// FormatCurrency renders an amount as US dollars with digit grouping.
func FormatCurrency(d decimal.Decimal) string {
	p := message.NewPrinter(language.AmericanEnglish)
	return p.Sprintf("$%.2f", d.InexactFloat64())
}

func money(d decimal.Decimal) sheet.Money {
	return sheet.Money(d.InexactFloat64())
}

func pad(row []string, width int) []any {
	out := make([]any, width)
	for i := range out {
		out[i] = sheet.Cell(row, i)
	}
	return out
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
