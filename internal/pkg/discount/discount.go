package discount

import (
	"github.com/QuestPassApp/QuestPass/app/models"
)

// Quote is the aggregated discount picture for one purchase. It is always
// recomputed from the full result set, never patched incrementally, so
// concurrent result writes can at worst make a quote stale, not wrong.
type Quote struct {
	BasePriceCents int64 `json:"base_price_cents"`
	TotalBps       int   `json:"total_bps"`
	DiscountCents  int64 `json:"discount_cents"`
	NetPriceCents  int64 `json:"net_price_cents"`
}

// TotalBps sums the awarded basis points of every verified result, capped at
// models.MaxDiscountBps. Rejected and pending results contribute nothing.
func TotalBps(results []models.IncentiveResult) int {
	total := 0
	for _, r := range results {
		total += r.ContributesBps()
	}
	if total > models.MaxDiscountBps {
		total = models.MaxDiscountBps
	}
	return total
}

// DiscountCents computes round(base · bps / 10000) with round-half-up integer
// arithmetic.
func DiscountCents(basePriceCents int64, bps int) int64 {
	if bps <= 0 || basePriceCents <= 0 {
		return 0
	}
	if bps > models.MaxDiscountBps {
		bps = models.MaxDiscountBps
	}
	return (basePriceCents*int64(bps) + models.MaxDiscountBps/2) / models.MaxDiscountBps
}

// NetPriceCents computes the settled price for a purchase. The cap at 10000
// bps guarantees the result is never negative.
func NetPriceCents(basePriceCents int64, results []models.IncentiveResult) int64 {
	return basePriceCents - DiscountCents(basePriceCents, TotalBps(results))
}

// QuoteFor computes the full discount picture in one pass.
func QuoteFor(basePriceCents int64, results []models.IncentiveResult) Quote {
	bps := TotalBps(results)
	discountCents := DiscountCents(basePriceCents, bps)
	return Quote{
		BasePriceCents: basePriceCents,
		TotalBps:       bps,
		DiscountCents:  discountCents,
		NetPriceCents:  basePriceCents - discountCents,
	}
}
