package domain

import "context"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Exchange is the capability surface of the exchange client. Retry/backoff,
// request signing and lot-size rounding live behind this interface.
type Exchange interface {
	GetCandles(ctx context.Context, pair, interval string, limit int) ([]Candle, error)
	GetTicker(ctx context.Context, pair string) (float64, error)
	GetBalance(ctx context.Context) (float64, error)
	PlaceOrder(ctx context.Context, pair string, side Side, volume float64) (string, error)

	OnPriceUpdate(callback func(pair string, price float64))
	Subscribe(pairs []string) error
}

// SnapshotStore persists the full ledger state document. Save is called
// write-through after every mutating ledger operation.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}
