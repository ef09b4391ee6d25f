package amount

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12.50", "12.5"},
		{"-0.01", "-0.01"},
		{"1/3", "1/3"},
		{"2/4", "0.5"},
		{"100", "100"},
		{"1e2", "100"},
		{" 7.25 ", "7.25"},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.String(), tc.in)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1/0", "1.2.3"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestArithmeticIsExact(t *testing.T) {
	third := MustParse("1/3")
	sum := third.Add(third).Add(third)
	assert.True(t, sum.Equal(FromInt(1)))

	// 0.1 + 0.2 must be exactly 0.3
	assert.True(t, MustParse("0.1").Add(MustParse("0.2")).Equal(MustParse("0.3")))

	assert.Equal(t, "9", MustParse("10").Mul(MustParse("0.90")).String())
	assert.Equal(t, "-5", FromInt(5).Neg().String())
	assert.Equal(t, "5", FromInt(-5).Abs().String())
}

func TestZeroValue(t *testing.T) {
	var a Amount
	assert.True(t, a.IsZero())
	assert.Equal(t, "0", a.String())
	assert.True(t, a.Add(FromInt(2)).Equal(FromInt(2)))
}

func TestQuo(t *testing.T) {
	q, err := FromInt(1).Quo(FromInt(3))
	require.NoError(t, err)
	assert.Equal(t, "1/3", q.String())

	_, err = FromInt(1).Quo(Zero())
	assert.Error(t, err)
}

func TestRepresentableIn(t *testing.T) {
	assert.True(t, MustParse("12.34").RepresentableIn(100))
	assert.False(t, MustParse("12.345").RepresentableIn(100))
	assert.True(t, MustParse("12.345").RepresentableIn(1000))
	assert.False(t, MustParse("1/3").RepresentableIn(100))
	assert.True(t, FromInt(7).RepresentableIn(1))
	assert.False(t, FromInt(7).RepresentableIn(0))
}

func TestInt64Parts(t *testing.T) {
	num, denom, err := MustParse("-12.50").Int64Parts()
	require.NoError(t, err)
	assert.Equal(t, int64(-25), num)
	assert.Equal(t, int64(2), denom)

	huge := MustParse("123456789012345678901234567890")
	_, _, err = huge.Int64Parts()
	assert.Error(t, err)
}

func TestStringFixed(t *testing.T) {
	assert.Equal(t, "9.00", MustParse("9").StringFixed(2))
	assert.Equal(t, "0.33", MustParse("1/3").StringFixed(2))
	assert.Equal(t, "0.67", MustParse("2/3").StringFixed(2))
	assert.Equal(t, "-1.50", MustParse("-1.5").StringFixed(2))
}

func TestJSONText(t *testing.T) {
	type wrap struct {
		V Amount `json:"v"`
	}
	raw, err := json.Marshal(wrap{V: MustParse("1/3")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"1/3"}`, string(raw))

	var back wrap
	require.NoError(t, json.Unmarshal([]byte(`{"v":"-50.25"}`), &back))
	assert.True(t, back.V.Equal(MustParse("-50.25")))
}

func TestSum(t *testing.T) {
	assert.True(t, Sum(FromInt(50), FromInt(-50)).IsZero())
	assert.True(t, Sum().IsZero())
}
