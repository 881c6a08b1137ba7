package model

// BidRecord is one bidder's line item on one contract. Records are written
// only by ingestion; everything downstream reads them.
type BidRecord struct {
	ContractNumber        string   `json:"contract_number"`
	LettingDate           string   `json:"letting_date"` // normalized YYYY-MM-DD
	LettingYear           int      `json:"letting_year"`
	County                *string  `json:"county,omitempty"`
	District              *string  `json:"district,omitempty"`
	Municipality          *string  `json:"municipality,omitempty"`
	ItemNumber            string   `json:"item_number"`
	ItemDescription       string   `json:"item_description"`
	Unit                  string   `json:"unit"`
	Quantity              float64  `json:"quantity"`
	UnitPrice             float64  `json:"unit_price"`
	Extension             float64  `json:"extension"`
	EngineersEstUnitPrice *float64 `json:"engineers_est_unit_price,omitempty"`
	BidderName            string   `json:"bidder_name"`
	BidderNumber          string   `json:"bidder_number,omitempty"`
	BidderRank            int      `json:"bidder_rank"`
	ItemRank              int      `json:"item_rank"`
	IsWinner              bool     `json:"is_winner"`
	IsLowItem             bool     `json:"is_low_item"`
	TotalBidAmount        float64  `json:"total_bid_amount"`
	BidSpreadPct          *float64 `json:"bid_spread_pct,omitempty"`
	NumBidders            int      `json:"num_bidders"`
}

// BidColumns lists the bids table columns in the order returned by Values.
var BidColumns = []string{
	"contract_number", "letting_date", "letting_year", "county", "district", "municipality",
	"item_number", "item_description", "unit", "quantity", "unit_price", "extension",
	"engineers_est_unit_price", "bidder_name", "bidder_number", "bidder_rank", "item_rank",
	"is_winner", "is_low_item", "total_bid_amount", "bid_spread_pct", "num_bidders",
}

// BidConflictKeys identify a unique bid line.
var BidConflictKeys = []string{"contract_number", "bidder_name", "item_number"}

// Values returns the record's column values aligned with BidColumns.
func (b BidRecord) Values() []any {
	return []any{
		b.ContractNumber, b.LettingDate, b.LettingYear, b.County, b.District, b.Municipality,
		b.ItemNumber, b.ItemDescription, b.Unit, b.Quantity, b.UnitPrice, b.Extension,
		b.EngineersEstUnitPrice, b.BidderName, b.BidderNumber, b.BidderRank, b.ItemRank,
		b.IsWinner, b.IsLowItem, b.TotalBidAmount, b.BidSpreadPct, b.NumBidders,
	}
}

// ValidForPricing reports whether the row may contribute to price aggregates.
func (b BidRecord) ValidForPricing() bool {
	return b.Quantity > 0 && b.UnitPrice > 0
}
