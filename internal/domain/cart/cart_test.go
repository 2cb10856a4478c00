package cart

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/product"
)

// --- Fakes ---

type fakeStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	putErrs []error
	puts    int
	deletes []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{data: make(map[string][]byte)}
}

func (f *fakeStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeStorage) Put(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if len(f.putErrs) > 0 {
		err := f.putErrs[0]
		f.putErrs = f.putErrs[1:]
		if err != nil {
			return err
		}
	}
	f.data[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	delete(f.data, key)
	return nil
}

func (f *fakeStorage) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

// --- Helpers ---

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func candidate(id, price string) Candidate {
	return Candidate{ProductID: id, Name: "Product " + id, Price: d(price), Stock: 10}
}

func variantCandidate(id, price, size, color string) Candidate {
	p := &product.Product{
		ID:    id,
		Name:  "Tee",
		Price: d(price),
		Variants: []product.Variant{
			{Size: "S", Color: "black", Stock: 3, SKU: id + "-s-black"},
			{Size: "M", Color: "black", Price: d("549"), Stock: 5, SKU: id + "-m-black"},
		},
	}
	return NewCandidate(p, size, color)
}

func fold(s State) (decimal.Decimal, int) {
	total := decimal.Zero
	units := 0
	for _, l := range s.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		units += l.Quantity
	}
	return total, units
}
