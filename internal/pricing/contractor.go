package pricing

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
)

// ContractorStats summarizes how the bidders matched by a filter perform.
type ContractorStats struct {
	ContractsBid  int      `json:"contracts_bid"`
	ContractsWon  int      `json:"contracts_won"`
	WinRate       float64  `json:"win_rate"` // percent
	AvgRank       *float64 `json:"avg_rank"`
	TotalWonValue float64  `json:"total_won_value"`
	AvgBidAmount  *float64 `json:"avg_bid_amount"`
	AvgSpreadPct  *float64 `json:"avg_spread_pct"`
	ItemBids      int      `json:"item_bids"`
	LowItemBids   int      `json:"low_item_bids"`
	ItemWinRate   float64  `json:"item_win_rate"` // percent
}

// ContractBid is one bidder's contract-level bid.
type ContractBid struct {
	ContractNumber string   `json:"contract_number"`
	LettingDate    string   `json:"letting_date"`
	County         *string  `json:"county"`
	BidderName     string   `json:"bidder_name"`
	BidderNumber   string   `json:"bidder_number"`
	TotalBidAmount float64  `json:"total_bid_amount"`
	BidderRank     int      `json:"bidder_rank"`
	IsWinner       bool     `json:"is_winner"`
	NumBidders     int      `json:"num_bidders"`
	BidSpreadPct   *float64 `json:"bid_spread_pct"`
}

// LineBid is a single bid line item.
type LineBid struct {
	ContractNumber string  `json:"contract_number"`
	LettingDate    string  `json:"letting_date"`
	County         *string `json:"county"`
	BidderName     string  `json:"bidder_name"`
	ItemNumber     string  `json:"item_number"`
	UnitPrice      float64 `json:"unit_price"`
	Quantity       float64 `json:"quantity"`
	Extension      float64 `json:"extension"`
	IsWinner       bool    `json:"is_winner"`
	IsLowItem      bool    `json:"is_low_item"`
	ItemRank       int     `json:"item_rank"`
}

// percent returns part/whole as a percentage rounded to one decimal, or 0
// when whole is 0.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*1000) / 10
}

// ContractorSummary computes contract-level and item-level statistics for
// the bidders matched by f. The winners-only policy does not apply.
func (e *Engine) ContractorSummary(ctx context.Context, f Filter) (*ContractorStats, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	d := e.q.Dialect()
	var st ContractorStats

	b := f.where(d, false)
	contractQuery := `SELECT COUNT(DISTINCT contract_number),
			COUNT(DISTINCT CASE WHEN is_winner THEN contract_number END),
			CAST(AVG(bidder_rank) AS DOUBLE PRECISION),
			AVG(total_bid_amount),
			AVG(bid_spread_pct)
		FROM (
			SELECT DISTINCT contract_number, bidder_name, is_winner, bidder_rank, total_bid_amount, bid_spread_pct
			FROM bids` + b.Clause() + `
		) c`
	if err := e.q.QueryRow(ctx, contractQuery, b.Args()...).Scan(
		&st.ContractsBid, &st.ContractsWon, &st.AvgRank, &st.AvgBidAmount, &st.AvgSpreadPct,
	); err != nil {
		return nil, eris.Wrap(err, "pricing: contractor contract stats")
	}

	b = f.where(d, true)
	wonQuery := `SELECT COALESCE(SUM(total_bid_amount), 0)
		FROM (SELECT DISTINCT contract_number, total_bid_amount FROM bids` + b.Clause() + `) w`
	if err := e.q.QueryRow(ctx, wonQuery, b.Args()...).Scan(&st.TotalWonValue); err != nil {
		return nil, eris.Wrap(err, "pricing: contractor won value")
	}

	b = f.where(d, false)
	itemQuery := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN is_low_item THEN 1 ELSE 0 END), 0)
		FROM bids` + b.Clause()
	if err := e.q.QueryRow(ctx, itemQuery, b.Args()...).Scan(&st.ItemBids, &st.LowItemBids); err != nil {
		return nil, eris.Wrap(err, "pricing: contractor item stats")
	}

	st.WinRate = percent(st.ContractsWon, st.ContractsBid)
	st.ItemWinRate = percent(st.LowItemBids, st.ItemBids)
	return &st, nil
}

// ContractorBids lists distinct contract-level bids matched by f, newest first.
func (e *Engine) ContractorBids(ctx context.Context, f Filter, limit int) ([]ContractBid, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	b := f.where(e.q.Dialect(), false)
	query := `SELECT DISTINCT contract_number, letting_date, county, bidder_name, bidder_number,
			total_bid_amount, bidder_rank, is_winner, num_bidders, bid_spread_pct
		FROM bids` + b.Clause() + `
		ORDER BY letting_date DESC, contract_number, bidder_name
		LIMIT ` + b.Arg(e.Cap(limit))

	rows, err := e.q.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: contractor bids")
	}
	defer rows.Close()

	out := []ContractBid{}
	for rows.Next() {
		var c ContractBid
		if err := rows.Scan(&c.ContractNumber, &c.LettingDate, &c.County, &c.BidderName, &c.BidderNumber,
			&c.TotalBidAmount, &c.BidderRank, &c.IsWinner, &c.NumBidders, &c.BidSpreadPct); err != nil {
			return nil, eris.Wrap(err, "pricing: scan contractor bid")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "pricing: iterate contractor bids")
}

// RecentBids lists raw line items matched by f, newest first.
func (e *Engine) RecentBids(ctx context.Context, f Filter, limit int) ([]LineBid, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	b := f.where(e.q.Dialect(), false)
	query := `SELECT contract_number, letting_date, county, bidder_name, item_number,
			unit_price, quantity, extension, is_winner, is_low_item, item_rank
		FROM bids` + b.Clause() + `
		ORDER BY letting_date DESC, contract_number, item_number, item_rank, bidder_name
		LIMIT ` + b.Arg(e.Cap(limit))

	rows, err := e.q.Query(ctx, query, b.Args()...)
	if err != nil {
		return nil, eris.Wrap(err, "pricing: recent bids")
	}
	defer rows.Close()

	out := []LineBid{}
	for rows.Next() {
		var l LineBid
		if err := rows.Scan(&l.ContractNumber, &l.LettingDate, &l.County, &l.BidderName, &l.ItemNumber,
			&l.UnitPrice, &l.Quantity, &l.Extension, &l.IsWinner, &l.IsLowItem, &l.ItemRank); err != nil {
			return nil, eris.Wrap(err, "pricing: scan recent bid")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "pricing: iterate recent bids")
}
