package ingest

import (
	"strings"
)

// Field names match the bids table columns.
const (
	fContract     = "contract_number"
	fLettingDate  = "letting_date"
	fCounty       = "county"
	fDistrict     = "district"
	fMunicipality = "municipality"
	fItem         = "item_number"
	fDescription  = "item_description"
	fUnit         = "unit"
	fQuantity     = "quantity"
	fUnitPrice    = "unit_price"
	fExtension    = "extension"
	fEngineerEst  = "engineers_est_unit_price"
	fBidder       = "bidder_name"
	fBidderNumber = "bidder_number"
	fBidderRank   = "bidder_rank"
	fItemRank     = "item_rank"
	fWinner       = "is_winner"
	fLowItem      = "is_low_item"
	fTotalBid     = "total_bid_amount"
	fSpread       = "bid_spread_pct"
	fNumBidders   = "num_bidders"
)

// aliases maps normalized header text to a field.
var aliases = map[string]string{
	"contract":                 fContract,
	"contract number":          fContract,
	"contract no":              fContract,
	"letting date":             fLettingDate,
	"letting":                  fLettingDate,
	"date":                     fLettingDate,
	"county":                   fCounty,
	"district":                 fDistrict,
	"municipality":             fMunicipality,
	"item":                     fItem,
	"item number":              fItem,
	"item no":                  fItem,
	"pay item":                 fItem,
	"pay code":                 fItem,
	"description":              fDescription,
	"item description":         fDescription,
	"unit":                     fUnit,
	"units":                    fUnit,
	"uom":                      fUnit,
	"quantity":                 fQuantity,
	"qty":                      fQuantity,
	"unit price":               fUnitPrice,
	"price":                    fUnitPrice,
	"bid price":                fUnitPrice,
	"extension":                fExtension,
	"amount":                   fExtension,
	"engineers est unit price": fEngineerEst,
	"engineers estimate":       fEngineerEst,
	"engineer estimate":        fEngineerEst,
	"eng est":                  fEngineerEst,
	"bidder":                   fBidder,
	"bidder name":              fBidder,
	"contractor":               fBidder,
	"contractor name":          fBidder,
	"bidder number":            fBidderNumber,
	"vendor number":            fBidderNumber,
	"rank":                     fBidderRank,
	"bidder rank":              fBidderRank,
	"item rank":                fItemRank,
	"winner":                   fWinner,
	"is winner":                fWinner,
	"awarded":                  fWinner,
	"low item":                 fLowItem,
	"is low item":              fLowItem,
	"total bid":                fTotalBid,
	"total bid amount":         fTotalBid,
	"bid total":                fTotalBid,
	"spread":                   fSpread,
	"bid spread pct":           fSpread,
	"spread pct":               fSpread,
	"bidders":                  fNumBidders,
	"num bidders":              fNumBidders,
	"number of bidders":        fNumBidders,
}

var headerReplacer = strings.NewReplacer("_", " ", "-", " ", ".", " ", "'", "", "#", " number", "%", " pct")

func normalizeHeader(h string) string {
	h = headerReplacer.Replace(strings.ToLower(strings.TrimSpace(h)))
	return strings.Join(strings.Fields(h), " ")
}

// columnMap indexes a header row by field. Unknown headers are ignored; the
// first occurrence of a field wins.
type columnMap map[string]int

func mapColumns(header []string) columnMap {
	m := columnMap{}
	for i, h := range header {
		f, ok := aliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := m[f]; !dup {
			m[f] = i
		}
	}
	return m
}

func (m columnMap) has(f string) bool {
	_, ok := m[f]
	return ok
}

func (m columnMap) get(row []string, f string) string {
	i, ok := m[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (m columnMap) missing(required ...string) []string {
	var out []string
	for _, f := range required {
		if !m.has(f) {
			out = append(out, f)
		}
	}
	return out
}
