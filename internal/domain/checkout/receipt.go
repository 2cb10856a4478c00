package checkout

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// ReceiptKey is the storage key of the cached receipt.
const ReceiptKey = "last_order"

var _ ReceiptStore = (*ReceiptCache)(nil)

// ReceiptCache stores the last receipt in the same key/value storage that
// holds basket snapshots.
type ReceiptCache struct {
	kv cart.SnapshotStorage
}

// NewReceiptCache returns a cache over kv.
func NewReceiptCache(kv cart.SnapshotStorage) *ReceiptCache {
	return &ReceiptCache{kv: kv}
}

func (c *ReceiptCache) SaveReceipt(ctx context.Context, r Receipt) error {
	if err := c.kv.Put(ctx, ReceiptKey, EncodeReceipt(r)); err != nil {
		return errors.Wrap(err, "save receipt")
	}
	return nil
}

// LoadReceipt returns ok=false when nothing is cached. An unreadable record
// is dropped and treated as absent.
func (c *ReceiptCache) LoadReceipt(ctx context.Context) (Receipt, bool, error) {
	data, ok, err := c.kv.Get(ctx, ReceiptKey)
	if err != nil {
		return Receipt{}, false, errors.Wrap(err, "load receipt")
	}
	if !ok {
		return Receipt{}, false, nil
	}
	r, err := DecodeReceipt(data)
	if err != nil {
		_ = c.kv.Delete(ctx, ReceiptKey)
		return Receipt{}, false, nil
	}
	return r, true, nil
}

func (c *ReceiptCache) ClearReceipt(ctx context.Context) error {
	if err := c.kv.Delete(ctx, ReceiptKey); err != nil {
		return errors.Wrap(err, "clear receipt")
	}
	return nil
}
