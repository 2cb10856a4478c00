package wire

import (
	"testing"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "integer", input: `1000`, want: "1000"},
		{name: "fraction", input: `1785.71`, want: "1785.71"},
		{name: "numeric string", input: `"214.29"`, want: "214.29"},
		{name: "exponent", input: `1e3`, want: "1000"},
		{name: "bool", input: `true`, wantErr: true},
		{name: "junk string", input: `"ten"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decimal(jx.DecodeStr(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestLooseDecimal_ConsumesWrongType(t *testing.T) {
	d := jx.DecodeStr(`{"a":{"x":1},"b":2}`)
	var b decimal.Decimal
	err := d.Obj(func(d *jx.Decoder, key string) error {
		v, raw, err := LooseDecimal(d)
		if key == "a" {
			assert.Error(t, err)
			assert.Equal(t, `{"x":1}`, raw)
			return nil
		}
		b = v
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "2", b.String())
}

func TestInt(t *testing.T) {
	n, err := Int(jx.DecodeStr(`3`))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = Int(jx.DecodeStr(`2.5`))
	require.Error(t, err)
}

func TestEncodeHelpers(t *testing.T) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	MoneyField(e, "total", decimal.RequireFromString("2000.00"))
	StrField(e, "code", "")
	StrField(e, "currency", "INR")
	e.ObjEnd()

	assert.Equal(t, `{"total":2000,"currency":"INR"}`, e.String())
}

func TestOptStringAndStrings(t *testing.T) {
	s, err := OptString(jx.DecodeStr(`null`))
	require.NoError(t, err)
	assert.Empty(t, s)

	list, err := Strings(jx.DecodeStr(`["a",null,"b"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "b"}, list)

	_, err = OptString(jx.DecodeStr(`12`))
	require.Error(t, err)
}
