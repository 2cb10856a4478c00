package cart

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKey(t *testing.T) {
	assert.Equal(t, ResolveKey("p1", "M", "red"), ResolveKey("p1", " M ", "red\t"))
	assert.Equal(t, ResolveKey("p1", "", ""), Line{ProductID: "p1"}.Key())
	assert.NotEqual(t, ResolveKey("p1", "M", ""), ResolveKey("p1", "", "M"))
	assert.NotEqual(t, ResolveKey("p1", "M", "red"), ResolveKey("p2", "M", "red"))
	assert.NotEqual(t, ResolveKey("a", "b|c", ""), ResolveKey("a|b", "c", ""))
	assert.NotEqual(t, ResolveKey("a", `b\`, "|c"), ResolveKey("a", `b\|`, "c"))
	assert.Equal(t, Key("p1|M|red"), ResolveKey("p1", "M", "red"))

	t.Run("separator in parts keeps lines apart", func(t *testing.T) {
		first := candidate("a", "10")
		first.Size = "b|c"
		second := candidate("a|b", "99")
		second.Size = "c"

		s, _ := Reduce(Empty(), AddLine{Candidate: first, Quantity: 1})
		s, _ = Reduce(s, AddLine{Candidate: second, Quantity: 1})

		require.Len(t, s.Lines, 2)
		assert.Equal(t, 2, s.LineCount)
		assert.True(t, d("109").Equal(s.Total))
	})
}

func TestReduce_QuantityBounds(t *testing.T) {
	s, _ := Reduce(Empty(), AddLine{Candidate: candidate("p1", "10"), Quantity: MaxQuantity})
	require.Equal(t, MaxQuantity, s.UnitCount)

	over, effects := Reduce(s, AddLine{Candidate: candidate("p1", "10"), Quantity: 1})
	assert.Empty(t, effects)
	assert.Equal(t, MaxQuantity, over.UnitCount)

	_, effects = Reduce(Empty(), AddLine{Candidate: candidate("p2", "10"), Quantity: MaxQuantity + 1})
	assert.Empty(t, effects)

	set, effects := Reduce(s, SetQuantity{Key: ResolveKey("p1", "", ""), Quantity: math.MaxInt})
	assert.Empty(t, effects)
	assert.Equal(t, MaxQuantity, set.UnitCount)

	merged := Merge(s, s)
	assert.Equal(t, MaxQuantity, merged.UnitCount)
}

func TestReduce_AddLine(t *testing.T) {
	s, effects := Reduce(Empty(), AddLine{Candidate: candidate("p1", "100"), Quantity: 2})
	require.Len(t, s.Lines, 1)
	assert.Contains(t, effects, Effect(Persist{}))
	assert.Equal(t, 1, s.LineCount)
	assert.Equal(t, 2, s.UnitCount)
	assert.True(t, d("200").Equal(s.Total))

	t.Run("same identity merges", func(t *testing.T) {
		merged, _ := Reduce(s, AddLine{Candidate: candidate("p1", "100"), Quantity: 3})
		require.Len(t, merged.Lines, 1)
		assert.Equal(t, 5, merged.Lines[0].Quantity)
		assert.Equal(t, 1, merged.LineCount)
		assert.Equal(t, 5, merged.UnitCount)
		assert.True(t, d("500").Equal(merged.Total))
	})

	t.Run("merge keeps snapshotted price", func(t *testing.T) {
		merged, _ := Reduce(s, AddLine{Candidate: candidate("p1", "150"), Quantity: 1})
		require.Len(t, merged.Lines, 1)
		assert.True(t, d("100").Equal(merged.Lines[0].UnitPrice))
		assert.True(t, d("300").Equal(merged.Total))
	})

	t.Run("different product appends", func(t *testing.T) {
		next, _ := Reduce(s, AddLine{Candidate: candidate("p2", "50"), Quantity: 1})
		assert.Len(t, next.Lines, 2)
		assert.Equal(t, 2, next.LineCount)
		assert.True(t, d("250").Equal(next.Total))
	})

	t.Run("input state is not mutated", func(t *testing.T) {
		_, _ = Reduce(s, AddLine{Candidate: candidate("p1", "100"), Quantity: 7})
		assert.Equal(t, 2, s.Lines[0].Quantity)
	})

	t.Run("non-positive quantity is a no-op", func(t *testing.T) {
		for _, q := range []int{0, -1} {
			next, effects := Reduce(s, AddLine{Candidate: candidate("p1", "100"), Quantity: q})
			assert.Empty(t, effects)
			assert.Equal(t, 2, next.UnitCount)
		}
	})

	t.Run("missing product id is a no-op", func(t *testing.T) {
		next, effects := Reduce(s, AddLine{Candidate: candidate("", "100"), Quantity: 1})
		assert.Empty(t, effects)
		assert.Len(t, next.Lines, 1)
	})
}

func TestReduce_AddLineVariants(t *testing.T) {
	t.Run("no selection uses first variant", func(t *testing.T) {
		s, _ := Reduce(Empty(), AddLine{Candidate: variantCandidate("tee", "499", "", ""), Quantity: 1})
		require.Len(t, s.Lines, 1)
		l := s.Lines[0]
		assert.Equal(t, "S", l.Size)
		assert.Equal(t, "black", l.Color)
		assert.Equal(t, "tee-s-black", l.SKU)
		assert.Equal(t, 3, l.Stock)
		assert.True(t, d("499").Equal(l.UnitPrice), "zero variant price falls back to product price")
	})

	t.Run("selected variant supplies price", func(t *testing.T) {
		s, _ := Reduce(Empty(), AddLine{Candidate: variantCandidate("tee", "499", "M", "black"), Quantity: 2})
		require.Len(t, s.Lines, 1)
		assert.True(t, d("549").Equal(s.Lines[0].UnitPrice))
		assert.True(t, d("1098").Equal(s.Total))
	})

	t.Run("default and explicit first variant are the same line", func(t *testing.T) {
		s, _ := Reduce(Empty(), AddLine{Candidate: variantCandidate("tee", "499", "", ""), Quantity: 1})
		s, _ = Reduce(s, AddLine{Candidate: variantCandidate("tee", "499", "S", "black"), Quantity: 1})
		require.Len(t, s.Lines, 1)
		assert.Equal(t, 2, s.Lines[0].Quantity)
	})

	t.Run("different sizes are different lines", func(t *testing.T) {
		s, _ := Reduce(Empty(), AddLine{Candidate: variantCandidate("tee", "499", "S", "black"), Quantity: 1})
		s, _ = Reduce(s, AddLine{Candidate: variantCandidate("tee", "499", "M", "black"), Quantity: 1})
		assert.Len(t, s.Lines, 2)
	})
}

func TestReduce_RemoveAndSetQuantity(t *testing.T) {
	s, _ := Reduce(Empty(), AddLine{Candidate: candidate("p1", "100"), Quantity: 2})
	s, _ = Reduce(s, AddLine{Candidate: candidate("p2", "30"), Quantity: 1})
	k1 := ResolveKey("p1", "", "")
	k2 := ResolveKey("p2", "", "")

	t.Run("remove", func(t *testing.T) {
		next, effects := Reduce(s, RemoveLine{Key: k1})
		assert.NotEmpty(t, effects)
		require.Len(t, next.Lines, 1)
		assert.Equal(t, "p2", next.Lines[0].ProductID)
		assert.Equal(t, 1, next.LineCount)
		assert.Equal(t, 1, next.UnitCount)
		assert.True(t, d("30").Equal(next.Total))
	})

	t.Run("remove absent key is a no-op", func(t *testing.T) {
		next, effects := Reduce(s, RemoveLine{Key: "nope"})
		assert.Empty(t, effects)
		assert.Len(t, next.Lines, 2)
	})

	t.Run("set quantity recomputes", func(t *testing.T) {
		next, _ := Reduce(s, SetQuantity{Key: k2, Quantity: 4})
		assert.Equal(t, 6, next.UnitCount)
		assert.True(t, d("320").Equal(next.Total))
	})

	t.Run("set quantity zero removes", func(t *testing.T) {
		next, _ := Reduce(s, SetQuantity{Key: k2, Quantity: 0})
		require.Len(t, next.Lines, 1)
		assert.Equal(t, "p1", next.Lines[0].ProductID)
	})

	t.Run("clear", func(t *testing.T) {
		next, effects := Reduce(s, Clear{})
		assert.True(t, next.IsEmpty())
		assert.Equal(t, 0, next.LineCount)
		assert.True(t, next.Total.IsZero())
		assert.Contains(t, effects, Effect(Persist{}))
	})
}

func TestReduce_RepairsNegativeTotals(t *testing.T) {
	broken := State{
		Lines:     []Line{{ProductID: "p1", UnitPrice: d("10"), Quantity: 2}},
		Total:     d("-5"),
		LineCount: 1,
		UnitCount: -1,
	}

	next, effects := Reduce(broken, RemoveLine{Key: "absent"})

	assert.True(t, d("20").Equal(next.Total))
	assert.Equal(t, 2, next.UnitCount)
	var repaired bool
	for _, e := range effects {
		if _, ok := e.(DriftRepaired); ok {
			repaired = true
		}
	}
	assert.True(t, repaired)
}

func TestReduce_InvariantsHoldForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ids := []string{"a", "b", "c", "d"}
	sizes := []string{"", "S", "M"}
	prices := []string{"0.99", "10", "249.5", "1000"}

	s := Empty()
	for i := 0; i < 2000; i++ {
		id := ids[rng.Intn(len(ids))]
		size := sizes[rng.Intn(len(sizes))]
		key := ResolveKey(id, size, "")

		var a Action
		switch rng.Intn(4) {
		case 0, 1:
			c := candidate(id, prices[rng.Intn(len(prices))])
			c.Size = size
			a = AddLine{Candidate: c, Quantity: rng.Intn(5) - 1}
		case 2:
			a = RemoveLine{Key: key}
		default:
			a = SetQuantity{Key: key, Quantity: rng.Intn(6) - 1}
		}
		s, _ = Reduce(s, a)

		total, units := fold(s)
		require.True(t, total.Equal(s.Total), "step %d: total %s != fold %s", i, s.Total, total)
		require.Equal(t, units, s.UnitCount, "step %d", i)
		require.Equal(t, len(s.Lines), s.LineCount, "step %d", i)

		seen := make(map[Key]bool, len(s.Lines))
		for _, l := range s.Lines {
			require.False(t, seen[l.Key()], "duplicate identity %s", l.Key())
			require.Positive(t, l.Quantity)
			seen[l.Key()] = true
		}
	}
}

func TestMerge(t *testing.T) {
	user, _ := Reduce(Empty(), AddLine{Candidate: candidate("p1", "100"), Quantity: 1})
	user, _ = Reduce(user, AddLine{Candidate: candidate("p2", "20"), Quantity: 1})
	guest, _ := Reduce(Empty(), AddLine{Candidate: candidate("p1", "90"), Quantity: 2})
	guest, _ = Reduce(guest, AddLine{Candidate: candidate("p3", "5"), Quantity: 4})

	m := Merge(user, guest)

	require.Len(t, m.Lines, 3)
	l, ok := m.Find(ResolveKey("p1", "", ""))
	require.True(t, ok)
	assert.Equal(t, 3, l.Quantity)
	assert.True(t, d("90").Equal(l.UnitPrice))
	assert.Equal(t, 8, m.UnitCount)
	assert.True(t, d("310").Equal(m.Total))
}
