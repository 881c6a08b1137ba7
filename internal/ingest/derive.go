package ingest

import (
	"cmp"
	"slices"

	"github.com/sells-group/bid-intel/internal/model"
)

// derive fills contract-level fields the file did not carry. Columns that
// were present are left as read.
func derive(bids []model.BidRecord, cols columnMap) {
	byContract := map[string][]int{}
	for i, b := range bids {
		byContract[b.ContractNumber] = append(byContract[b.ContractNumber], i)
	}

	for _, idx := range byContract {
		if !cols.has(fTotalBid) {
			deriveTotals(bids, idx)
		}
		ranks := bidderRanks(bids, idx)
		for _, i := range idx {
			b := &bids[i]
			if !cols.has(fBidderRank) {
				b.BidderRank = ranks[b.BidderName]
			}
			if !cols.has(fWinner) {
				b.IsWinner = b.BidderRank == 1
			}
			if !cols.has(fNumBidders) {
				b.NumBidders = len(ranks)
			}
		}
		if !cols.has(fItemRank) || !cols.has(fLowItem) {
			deriveItemRanks(bids, idx, !cols.has(fItemRank), !cols.has(fLowItem))
		}
		if !cols.has(fSpread) {
			deriveSpread(bids, idx)
		}
	}
}

func deriveTotals(bids []model.BidRecord, idx []int) {
	totals := map[string]float64{}
	for _, i := range idx {
		totals[bids[i].BidderName] += bids[i].Extension
	}
	for _, i := range idx {
		bids[i].TotalBidAmount = round2(totals[bids[i].BidderName])
	}
}

// bidderRanks orders a contract's bidders by total bid, lowest first. A
// bidder with no total ranks after every priced bidder.
func bidderRanks(bids []model.BidRecord, idx []int) map[string]int {
	type bidder struct {
		name  string
		total float64
	}
	seen := map[string]bool{}
	var list []bidder
	for _, i := range idx {
		b := bids[i]
		if seen[b.BidderName] {
			continue
		}
		seen[b.BidderName] = true
		list = append(list, bidder{b.BidderName, b.TotalBidAmount})
	}

	slices.SortFunc(list, func(a, b bidder) int {
		if (a.total > 0) != (b.total > 0) {
			if a.total > 0 {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(a.total, b.total); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})

	ranks := make(map[string]int, len(list))
	for r, b := range list {
		ranks[b.name] = r + 1
	}
	return ranks
}

// deriveItemRanks ranks priced bids on each item by unit price. Unpriced
// rows get rank 0 and are never low.
func deriveItemRanks(bids []model.BidRecord, idx []int, setRank, setLow bool) {
	byItem := map[string][]int{}
	for _, i := range idx {
		if bids[i].UnitPrice > 0 {
			byItem[bids[i].ItemNumber] = append(byItem[bids[i].ItemNumber], i)
			continue
		}
		if setRank {
			bids[i].ItemRank = 0
		}
		if setLow {
			bids[i].IsLowItem = false
		}
	}

	for _, items := range byItem {
		slices.SortFunc(items, func(a, b int) int {
			if c := cmp.Compare(bids[a].UnitPrice, bids[b].UnitPrice); c != 0 {
				return c
			}
			return cmp.Compare(bids[a].BidderName, bids[b].BidderName)
		})
		for r, i := range items {
			if setRank {
				bids[i].ItemRank = r + 1
			}
			if setLow {
				bids[i].IsLowItem = r == 0
			}
		}
	}
}

// deriveSpread is each bidder's percent above the low total. The low bidder
// has no spread.
func deriveSpread(bids []model.BidRecord, idx []int) {
	low := 0.0
	for _, i := range idx {
		if t := bids[i].TotalBidAmount; t > 0 && (low == 0 || t < low) {
			low = t
		}
	}
	for _, i := range idx {
		b := &bids[i]
		if low == 0 || b.TotalBidAmount <= low {
			b.BidSpreadPct = nil
			continue
		}
		s := round1((b.TotalBidAmount - low) / low * 100)
		b.BidSpreadPct = &s
	}
}
