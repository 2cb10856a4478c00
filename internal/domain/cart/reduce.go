package cart

import (
	"github.com/shopspring/decimal"
)

// Action is a basket mutation. The set is closed: AddLine, RemoveLine,
// SetQuantity, Clear and Load.
type Action interface {
	isAction()
}

// AddLine adds Quantity units of the candidate, merging with an existing line
// of the same identity. An add that would take the line above MaxQuantity is
// ignored.
type AddLine struct {
	Candidate Candidate
	Quantity  int
}

// RemoveLine deletes the line with Key.
type RemoveLine struct {
	Key Key
}

// SetQuantity replaces the quantity of the line with Key. A non-positive
// quantity removes the line; one above MaxQuantity is ignored.
type SetQuantity struct {
	Key      Key
	Quantity int
}

// Clear empties the basket.
type Clear struct{}

// Load replaces the basket with a persisted snapshot. Nil Data means no
// snapshot exists for the active identity.
type Load struct {
	Data []byte
}

func (AddLine) isAction()     {}
func (RemoveLine) isAction()  {}
func (SetQuantity) isAction() {}
func (Clear) isAction()       {}
func (Load) isAction()        {}

// Effect is a side effect requested by Reduce and executed by the Store.
type Effect interface {
	isEffect()
}

// Persist asks for the new state to be written to the active storage key.
type Persist struct{}

// DriftRepaired reports that derived totals diverged from the lines and were
// recomputed.
type DriftRepaired struct {
	Reason string
}

// CorruptSnapshot reports that a persisted snapshot was discarded.
type CorruptSnapshot struct {
	Reason string
}

// Loaded reports that a snapshot (or its absence) was read.
type Loaded struct {
	Lines int
}

func (Persist) isEffect()         {}
func (DriftRepaired) isEffect()   {}
func (CorruptSnapshot) isEffect() {}
func (Loaded) isEffect()          {}

// Reduce is the basket transition function. It never mutates s and performs
// no I/O; side effects are returned for the caller to run. An action that
// changes nothing returns no effects.
func Reduce(s State, a Action) (State, []Effect) {
	s = s.Clone()
	var (
		next    State
		effects []Effect
	)
	switch a := a.(type) {
	case AddLine:
		next, effects = addLine(s, a)
	case RemoveLine:
		next, effects = removeLine(s, a.Key)
	case SetQuantity:
		next, effects = setQuantity(s, a)
	case Clear:
		next, effects = Empty(), []Effect{Persist{}}
	case Load:
		next, effects = load(a.Data)
	default:
		return s, nil
	}
	return guard(next, effects)
}

func addLine(s State, a AddLine) (State, []Effect) {
	if a.Quantity <= 0 || a.Quantity > MaxQuantity || a.Candidate.ProductID == "" || a.Candidate.Price.IsNegative() {
		return s, nil
	}
	l := a.Candidate.resolve()
	qty := decimal.NewFromInt(int64(a.Quantity))

	if i := s.index(l.Key()); i >= 0 {
		if s.Lines[i].Quantity+a.Quantity > MaxQuantity {
			return s, nil
		}
		s.Lines[i].Quantity += a.Quantity
		s.Total = s.Total.Add(s.Lines[i].UnitPrice.Mul(qty))
		s.UnitCount += a.Quantity
		return s, []Effect{Persist{}}
	}

	l.Quantity = a.Quantity
	s.Lines = append(s.Lines, l)
	s.Total = s.Total.Add(l.UnitPrice.Mul(qty))
	s.LineCount++
	s.UnitCount += a.Quantity
	return s, []Effect{Persist{}}
}

func removeLine(s State, key Key) (State, []Effect) {
	i := s.index(key)
	if i < 0 {
		return s, nil
	}
	l := s.Lines[i]
	s.Lines = append(s.Lines[:i], s.Lines[i+1:]...)
	s.Total = s.Total.Sub(l.Subtotal())
	s.UnitCount -= l.Quantity
	s.LineCount--
	return s, []Effect{Persist{}}
}

func setQuantity(s State, a SetQuantity) (State, []Effect) {
	if a.Quantity <= 0 {
		return removeLine(s, a.Key)
	}
	i := s.index(a.Key)
	if i < 0 || a.Quantity > MaxQuantity {
		return s, nil
	}
	s.Lines[i].Quantity = a.Quantity
	return s.recompute(), []Effect{Persist{}}
}

func load(data []byte) (State, []Effect) {
	st, rep := Decode(data)
	effects := []Effect{Loaded{Lines: len(st.Lines)}}
	switch {
	case rep.Corrupt:
		effects = append(effects, CorruptSnapshot{Reason: rep.Reason}, Persist{})
	case rep.Drift != "":
		effects = append(effects, DriftRepaired{Reason: rep.Drift}, Persist{})
	}
	return st, effects
}

// guard recomputes the derived fields when they went negative or otherwise
// disagree with the lines.
func guard(s State, effects []Effect) (State, []Effect) {
	if s.Total.IsNegative() || s.UnitCount < 0 || s.LineCount < 0 {
		return s.recompute(), append(effects, DriftRepaired{Reason: "negative totals"})
	}
	if !s.consistent() {
		return s.recompute(), append(effects, DriftRepaired{Reason: "totals diverged from lines"})
	}
	return s, effects
}
