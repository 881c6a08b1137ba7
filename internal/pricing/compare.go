package pricing

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bid-intel/internal/apperr"
)

// ContractHeader describes a letting-level contract.
type ContractHeader struct {
	ContractNumber string  `json:"contract_number"`
	LettingDate    string  `json:"letting_date"`
	County         *string `json:"county"`
	District       *string `json:"district"`
	Municipality   *string `json:"municipality"`
	NumBidders     int     `json:"num_bidders"`
}

// Bidder is one bidder on a contract.
type Bidder struct {
	Name           string   `json:"name"`
	Number         string   `json:"number"`
	Rank           int      `json:"rank"`
	TotalBidAmount float64  `json:"total_bid_amount"`
	BidSpreadPct   *float64 `json:"bid_spread_pct"`
	IsWinner       bool     `json:"is_winner"`
}

// BidCell is one bidder's price for one item.
type BidCell struct {
	UnitPrice float64 `json:"unit_price"`
	Extension float64 `json:"extension"`
	IsWinner  bool    `json:"is_winner"`
	IsLowItem bool    `json:"is_low_item"`
	Rank      int     `json:"rank"`
}

// ContractItem is one row of the item-by-bidder cross-tab.
type ContractItem struct {
	ItemNumber            string             `json:"item_number"`
	Description           string             `json:"description"`
	Unit                  string             `json:"unit"`
	Quantity              float64            `json:"quantity"`
	EngineersEstUnitPrice *float64           `json:"engineers_est_unit_price"`
	Bids                  map[string]BidCell `json:"bids"`
}

// ContractDetail is the side-by-side view of every bid on one contract.
type ContractDetail struct {
	Contract ContractHeader `json:"contract"`
	Bidders  []Bidder       `json:"bidders"`
	Items    []ContractItem `json:"items"`
}

// ContractDetail builds the cross-tab for contractNumber. Bidders are ordered
// by rank then name, items by item number.
func (e *Engine) ContractDetail(ctx context.Context, contractNumber string) (*ContractDetail, error) {
	if contractNumber = strings.TrimSpace(contractNumber); contractNumber == "" {
		return nil, apperr.Validation("contract number is required")
	}

	b := Filter{ContractNumber: contractNumber, ExactContract: true}.where(e.q.Dialect(), false)
	query := `SELECT contract_number, letting_date, county, district, municipality, num_bidders,
			item_number, item_description, unit, quantity, engineers_est_unit_price,
			bidder_name, bidder_number, bidder_rank, total_bid_amount, bid_spread_pct,
			unit_price, extension, item_rank, is_winner, is_low_item
		FROM bids` + b.Clause() + `
		ORDER BY item_number, bidder_rank, bidder_name`

	rows, err := e.q.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, eris.Wrapf(err, "pricing: contract detail %s", contractNumber)
	}
	defer rows.Close()

	var detail *ContractDetail
	var items []ContractItem
	bidders := map[string]Bidder{}
	for rows.Next() {
		var (
			h        ContractHeader
			item     ContractItem
			bidder   Bidder
			cell     BidCell
			estPrice *float64
		)
		if err := rows.Scan(&h.ContractNumber, &h.LettingDate, &h.County, &h.District, &h.Municipality, &h.NumBidders,
			&item.ItemNumber, &item.Description, &item.Unit, &item.Quantity, &estPrice,
			&bidder.Name, &bidder.Number, &bidder.Rank, &bidder.TotalBidAmount, &bidder.BidSpreadPct,
			&cell.UnitPrice, &cell.Extension, &cell.Rank, &cell.IsWinner, &cell.IsLowItem); err != nil {
			return nil, eris.Wrap(err, "pricing: scan contract row")
		}

		if detail == nil {
			detail = &ContractDetail{Contract: h}
		}
		bidder.IsWinner = cell.IsWinner
		if _, ok := bidders[bidder.Name]; !ok {
			bidders[bidder.Name] = bidder
		}

		if n := len(items); n == 0 || items[n-1].ItemNumber != item.ItemNumber {
			item.Bids = map[string]BidCell{}
			items = append(items, item)
		}
		cur := &items[len(items)-1]
		if cur.EngineersEstUnitPrice == nil {
			cur.EngineersEstUnitPrice = estPrice
		}
		cur.Bids[bidder.Name] = cell
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "pricing: iterate contract rows")
	}
	if detail == nil {
		return nil, apperr.NotFound("contract %s not found", contractNumber)
	}

	detail.Bidders = make([]Bidder, 0, len(bidders))
	for _, bd := range bidders {
		detail.Bidders = append(detail.Bidders, bd)
	}
	sort.Slice(detail.Bidders, func(i, j int) bool {
		a, c := detail.Bidders[i], detail.Bidders[j]
		if a.Rank != c.Rank {
			return a.Rank < c.Rank
		}
		return a.Name < c.Name
	})
	if detail.Contract.NumBidders == 0 {
		detail.Contract.NumBidders = len(detail.Bidders)
	}
	detail.Items = items
	return detail, nil
}

// GeoGroup is one county or district in a comparison, with its weighted
// price relative to the item's overall weighted price.
type GeoGroup struct {
	PricingSummary
	DeltaPct *float64 `json:"delta_pct"`
}

// GeoComparison compares an item's price across counties or districts.
type GeoComparison struct {
	ItemNumber string     `json:"item_number"`
	Dimension  Dimension  `json:"dimension"`
	Overall    *ItemPrice `json:"overall"`
	Groups     []GeoGroup `json:"groups"`
}

// CompareGeo prices item exactly across dim. Overall is nil and Groups is
// empty when the item has no priced rows.
func (e *Engine) CompareGeo(ctx context.Context, item string, f Filter, dim Dimension) (*GeoComparison, error) {
	f.ItemNumber = item
	f.ExactItem = true

	overall, err := e.PriceByItem(ctx, f)
	if err != nil {
		return nil, err
	}
	groups, err := e.PriceByItemAndGeo(ctx, f, dim)
	if err != nil {
		return nil, err
	}

	cmp := &GeoComparison{ItemNumber: item, Dimension: dim, Overall: overall, Groups: make([]GeoGroup, 0, len(groups))}
	for _, g := range groups {
		gg := GeoGroup{PricingSummary: g}
		if overall != nil && overall.WeightedAvgPrice != nil && *overall.WeightedAvgPrice != 0 && g.WeightedAvgPrice != nil {
			ratio := *g.WeightedAvgPrice / *overall.WeightedAvgPrice
			delta := math.Round((ratio-1)*1000) / 10
			gg.DeltaPct = &delta
		}
		cmp.Groups = append(cmp.Groups, gg)
	}
	return cmp, nil
}
