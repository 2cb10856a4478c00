package cart

import (
	"github.com/shopspring/decimal"
)

// MaxQuantity bounds the quantity of a single line. Larger quantities are
// refused by Reduce and treated as corruption in snapshots, so that unit
// counts cannot overflow.
const MaxQuantity = 9999

// State is the basket. Total, LineCount and UnitCount are always the fold
// over Lines; Reduce repairs any divergence.
type State struct {
	Lines     []Line
	Total     decimal.Decimal
	LineCount int
	UnitCount int
}

// Empty returns the empty basket.
func Empty() State {
	return State{Total: decimal.Zero}
}

// IsEmpty reports whether the basket has no lines.
func (s State) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Find returns the line with the given key.
func (s State) Find(key Key) (Line, bool) {
	if i := s.index(key); i >= 0 {
		return s.Lines[i], true
	}
	return Line{}, false
}

func (s State) index(key Key) int {
	for i := range s.Lines {
		if s.Lines[i].Key() == key {
			return i
		}
	}
	return -1
}

// Clone deep-copies the state so callers cannot alias the store's lines.
func (s State) Clone() State {
	out := s
	if s.Lines != nil {
		out.Lines = make([]Line, len(s.Lines))
		copy(out.Lines, s.Lines)
	}
	return out
}

// recompute rebuilds every derived field from Lines.
func (s State) recompute() State {
	total := decimal.Zero
	units := 0
	for _, l := range s.Lines {
		total = total.Add(l.Subtotal())
		units += l.Quantity
	}
	s.Total = total
	s.UnitCount = units
	s.LineCount = len(s.Lines)
	return s
}

// consistent reports whether the derived fields equal the fold over Lines.
func (s State) consistent() bool {
	f := s.recompute()
	return f.Total.Equal(s.Total) && f.UnitCount == s.UnitCount && f.LineCount == s.LineCount
}

// Merge folds src into dst by identity. On collision quantities are summed
// and capped at MaxQuantity; the unit price of src is kept, since it is the
// more recent snapshot.
func Merge(dst, src State) State {
	out := dst.Clone()
	for _, l := range src.Lines {
		if i := out.index(l.Key()); i >= 0 {
			qty := min(out.Lines[i].Quantity+l.Quantity, MaxQuantity)
			out.Lines[i] = l
			out.Lines[i].Quantity = qty
			continue
		}
		out.Lines = append(out.Lines, l)
	}
	return out.recompute()
}
