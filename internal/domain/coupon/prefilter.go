package coupon

import (
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomPrefilter is a Prefilter over a bloom filter of normalised codes.
// Reset swaps in a freshly built filter, so lookups never block.
type BloomPrefilter struct {
	n      uint
	fpRate float64
	filter atomic.Pointer[bloom.BloomFilter]
}

// NewBloomPrefilter sizes the filter for n codes at false-positive rate fp.
func NewBloomPrefilter(n uint, fp float64) *BloomPrefilter {
	p := &BloomPrefilter{n: n, fpRate: fp}
	p.filter.Store(bloom.NewWithEstimates(n, fp))
	return p
}

// Reset replaces the filter contents with codes.
func (p *BloomPrefilter) Reset(codes []string) {
	n := p.n
	if uint(len(codes)) > n {
		n = uint(len(codes))
	}
	f := bloom.NewWithEstimates(n, p.fpRate)
	for _, c := range codes {
		f.AddString(Normalize(c))
	}
	p.filter.Store(f)
}

// MayContain reports whether code may be a known code.
func (p *BloomPrefilter) MayContain(code string) bool {
	return p.filter.Load().TestString(Normalize(code))
}
