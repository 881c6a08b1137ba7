// Package ingest loads bid tabulations from xlsx or csv files into the bids
// table. Columns are matched by header name; derived fields absent from the
// file (ranks, winner flags, totals) are computed per contract.
package ingest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bid-intel/internal/model"
	"github.com/sells-group/bid-intel/internal/sheet"
)

const defaultBatchSize = 1000

// Writer persists bid records.
type Writer interface {
	InsertBids(ctx context.Context, bids []model.BidRecord) (int64, error)
}

// Options controls how an import reads and writes.
type Options struct {
	BatchSize int
	Read      sheet.Options
}

// Report counts the outcome of an import.
type Report struct {
	Rows       int   `json:"rows"`
	Parsed     int   `json:"parsed"`
	Skipped    int   `json:"skipped"`
	Duplicates int   `json:"duplicates"`
	Unpriced   int   `json:"unpriced"` // stored, but excluded from price aggregates
	Written    int64 `json:"written"`
}

// ReadFile returns the rows of an xlsx or csv file, header first.
func ReadFile(ctx context.Context, path string, opts sheet.Options) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return sheet.ReadXLSX(path, opts)
	case ".csv":
		return readCSVFile(ctx, path, opts)
	default:
		return nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

func readCSVFile(ctx context.Context, path string, opts sheet.Options) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close() //nolint:errcheck
	return sheet.ReadCSV(ctx, f, opts)
}

// Import reads path and writes its bids in batches.
func Import(ctx context.Context, w Writer, path string, opts Options) (Report, error) {
	rows, err := ReadFile(ctx, path, opts.Read)
	if err != nil {
		return Report{}, err
	}

	bids, rep, err := Parse(rows)
	if err != nil {
		return rep, eris.Wrapf(err, "ingest: parse %s", filepath.Base(path))
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	for start := 0; start < len(bids); start += batchSize {
		end := min(start+batchSize, len(bids))
		n, err := w.InsertBids(ctx, bids[start:end])
		if err != nil {
			return rep, eris.Wrapf(err, "ingest: write rows %d-%d", start, end)
		}
		rep.Written += n
	}

	zap.L().Info("ingest: import complete",
		zap.String("file", filepath.Base(path)),
		zap.Int("rows", rep.Rows),
		zap.Int("skipped", rep.Skipped),
		zap.Int("duplicates", rep.Duplicates),
		zap.Int("unpriced", rep.Unpriced),
		zap.Int64("written", rep.Written),
	)
	return rep, nil
}

// Parse converts rows (header first) into bid records. Rows missing a key
// field or with an unreadable letting date are skipped. Records repeating a
// contract, bidder and item keep the last occurrence.
func Parse(rows [][]string) ([]model.BidRecord, Report, error) {
	var rep Report
	if len(rows) == 0 {
		return nil, rep, eris.New("ingest: file is empty")
	}

	cols := mapColumns(rows[0])
	if missing := cols.missing(fContract, fLettingDate, fItem, fBidder, fQuantity, fUnitPrice); len(missing) > 0 {
		return nil, rep, eris.Errorf("ingest: missing columns %s", strings.Join(missing, ", "))
	}

	var bids []model.BidRecord
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rep.Rows++
		b, err := parseRow(cols, row)
		if err != nil {
			rep.Skipped++
			zap.L().Warn("ingest: skipping row", zap.Int("row", i+2), zap.Error(err))
			continue
		}
		bids = append(bids, b)
	}

	bids, rep.Duplicates = dedupe(bids)
	derive(bids, cols)
	rep.Parsed = len(bids)
	for _, b := range bids {
		if !b.ValidForPricing() {
			rep.Unpriced++
		}
	}
	return bids, rep, nil
}

func parseRow(cols columnMap, row []string) (model.BidRecord, error) {
	b := model.BidRecord{
		ContractNumber:  cols.get(row, fContract),
		County:          optional(cols.get(row, fCounty)),
		District:        optional(cols.get(row, fDistrict)),
		Municipality:    optional(cols.get(row, fMunicipality)),
		ItemNumber:      cols.get(row, fItem),
		ItemDescription: cols.get(row, fDescription),
		Unit:            cols.get(row, fUnit),
		BidderName:      cols.get(row, fBidder),
		BidderNumber:    cols.get(row, fBidderNumber),
	}
	if b.ContractNumber == "" || b.ItemNumber == "" || b.BidderName == "" {
		return b, eris.New("ingest: contract, item and bidder are required")
	}

	var err error
	if b.LettingDate, b.LettingYear, err = ParseLettingDate(cols.get(row, fLettingDate)); err != nil {
		return b, err
	}

	b.Quantity = number(cols.get(row, fQuantity))
	b.UnitPrice = number(cols.get(row, fUnitPrice))
	if ext := cols.get(row, fExtension); ext != "" {
		b.Extension = number(ext)
	} else {
		b.Extension = round2(b.Quantity * b.UnitPrice)
	}
	b.EngineersEstUnitPrice = optionalNumber(cols.get(row, fEngineerEst))
	b.BidderRank = int(number(cols.get(row, fBidderRank)))
	b.ItemRank = int(number(cols.get(row, fItemRank)))
	b.IsWinner = flag(cols.get(row, fWinner))
	b.IsLowItem = flag(cols.get(row, fLowItem))
	b.TotalBidAmount = number(cols.get(row, fTotalBid))
	b.BidSpreadPct = optionalNumber(cols.get(row, fSpread))
	b.NumBidders = int(number(cols.get(row, fNumBidders)))
	return b, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var numberReplacer = strings.NewReplacer("$", "", ",", "", "%", "", " ", "")

// number parses currency and counts; unparseable values are 0.
func number(s string) float64 {
	f, err := strconv.ParseFloat(numberReplacer.Replace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func optionalNumber(s string) *float64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	f, err := strconv.ParseFloat(numberReplacer.Replace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

func flag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y", "x", "winner", "awarded":
		return true
	default:
		return false
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

type bidKey struct {
	contract, bidder, item string
}

func keyOf(b model.BidRecord) bidKey {
	return bidKey{b.ContractNumber, b.BidderName, b.ItemNumber}
}

// dedupe keeps the last record for each conflict key, in first-seen order.
// Postgres rejects an upsert batch that touches the same key twice.
func dedupe(bids []model.BidRecord) ([]model.BidRecord, int) {
	idx := make(map[bidKey]int, len(bids))
	out := make([]model.BidRecord, 0, len(bids))
	for _, b := range bids {
		k := keyOf(b)
		if i, ok := idx[k]; ok {
			out[i] = b
			continue
		}
		idx[k] = len(out)
		out = append(out, b)
	}
	return out, len(bids) - len(out)
}
