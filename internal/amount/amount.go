package amount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an exact rational quantity of some commodity.
// The zero value is a valid zero amount. Amounts are immutable; every
// arithmetic method returns a new value.
type Amount struct {
	r *big.Rat
}

var zeroRat = new(big.Rat)

// Zero returns the zero amount.
func Zero() Amount { return Amount{} }

// New returns num/denom. It panics if denom is zero.
func New(num, denom int64) Amount {
	if denom == 0 {
		panic("amount: zero denominator")
	}
	return Amount{r: big.NewRat(num, denom)}
}

// FromInt returns n/1.
func FromInt(n int64) Amount {
	return Amount{r: new(big.Rat).SetInt64(n)}
}

// FromRat copies r into a new Amount.
func FromRat(r *big.Rat) Amount {
	if r == nil {
		return Amount{}
	}
	return Amount{r: new(big.Rat).Set(r)}
}

// FromDecimal converts a decimal without loss.
func FromDecimal(d decimal.Decimal) Amount {
	coef := d.Coefficient()
	exp := d.Exponent()
	r := new(big.Rat).SetInt(coef)
	if exp > 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
		r.Mul(r, new(big.Rat).SetInt(scale))
	} else if exp < 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-exp)), nil)
		r.Quo(r, new(big.Rat).SetInt(scale))
	}
	return Amount{r: r}
}

// Parse reads either a decimal ("-12.50", "1e3") or a fraction ("1/3").
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("amount: empty string")
	}
	if strings.Contains(s, "/") {
		r, ok := new(big.Rat).SetString(s)
		if !ok {
			return Amount{}, fmt.Errorf("amount: invalid fraction %q", s)
		}
		return Amount{r: r}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("amount: invalid decimal %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) rat() *big.Rat {
	if a.r == nil {
		return zeroRat
	}
	return a.r
}

// Rat returns a copy of the underlying rational.
func (a Amount) Rat() *big.Rat { return new(big.Rat).Set(a.rat()) }

// Num returns a copy of the reduced numerator.
func (a Amount) Num() *big.Int { return new(big.Int).Set(a.rat().Num()) }

// Denom returns a copy of the reduced denominator (always > 0).
func (a Amount) Denom() *big.Int { return new(big.Int).Set(a.rat().Denom()) }

func (a Amount) Add(b Amount) Amount { return Amount{r: new(big.Rat).Add(a.rat(), b.rat())} }
func (a Amount) Sub(b Amount) Amount { return Amount{r: new(big.Rat).Sub(a.rat(), b.rat())} }
func (a Amount) Mul(b Amount) Amount { return Amount{r: new(big.Rat).Mul(a.rat(), b.rat())} }
func (a Amount) Neg() Amount { return Amount{r: new(big.Rat).Neg(a.rat())} }
func (a Amount) Abs() Amount { return Amount{r: new(big.Rat).Abs(a.rat())} }

// Quo returns a/b, failing on division by zero.
func (a Amount) Quo(b Amount) (Amount, error) {
	if b.IsZero() {
		return Amount{}, fmt.Errorf("amount: division by zero")
	}
	return Amount{r: new(big.Rat).Quo(a.rat(), b.rat())}, nil
}

// Inv returns 1/a, failing when a is zero.
func (a Amount) Inv() (Amount, error) {
	return FromInt(1).Quo(a)
}

func (a Amount) Cmp(b Amount) int { return a.rat().Cmp(b.rat()) }
func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }
func (a Amount) Sign() int { return a.rat().Sign() }
func (a Amount) IsZero() bool { return a.Sign() == 0 }
func (a Amount) IsNegative() bool { return a.Sign() < 0 }

// RepresentableIn reports whether a can be written as n/fraction for
// some integer n, i.e. the reduced denominator divides fraction.
func (a Amount) RepresentableIn(fraction int64) bool {
	if fraction <= 0 {
		return false
	}
	rem := new(big.Int).Rem(big.NewInt(fraction), a.rat().Denom())
	return rem.Sign() == 0
}

// Int64Parts returns the reduced numerator and denominator for storage.
func (a Amount) Int64Parts() (num, denom int64, err error) {
	r := a.rat()
	if !r.Num().IsInt64() || !r.Denom().IsInt64() {
		return 0, 0, fmt.Errorf("amount: %s overflows int64 storage", r.RatString())
	}
	return r.Num().Int64(), r.Denom().Int64(), nil
}

// Decimal returns a decimal approximation rounded half away from zero
// at the given number of places.
func (a Amount) Decimal(places int32) decimal.Decimal {
	r := a.rat()
	num := decimal.NewFromBigInt(r.Num(), 0)
	den := decimal.NewFromBigInt(r.Denom(), 0)
	return num.DivRound(den, places)
}

// StringFixed formats a rounded to places decimals, e.g. "9.00".
func (a Amount) StringFixed(places int32) string {
	return a.Decimal(places).StringFixed(places)
}

// Float64 is for display-only consumers such as spreadsheets.
func (a Amount) Float64() float64 {
	f, _ := a.rat().Float64()
	return f
}

// maxExactPlaces bounds the search for a terminating decimal form.
const maxExactPlaces = 18

// String returns the exact value: a terminating decimal when one exists,
// otherwise "num/denom".
func (a Amount) String() string {
	r := a.rat()
	if places, ok := exactPlaces(r.Denom()); ok {
		return r.FloatString(places)
	}
	return r.RatString()
}

// exactPlaces finds the smallest k with denom | 10^k.
func exactPlaces(denom *big.Int) (int, bool) {
	ten := big.NewInt(10)
	pow := big.NewInt(1)
	rem := new(big.Int)
	for k := 0; k <= maxExactPlaces; k++ {
		if rem.Rem(pow, denom).Sign() == 0 {
			return k, true
		}
		pow.Mul(pow, ten)
	}
	return 0, false
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Sum adds all amounts.
func Sum(as ...Amount) Amount {
	total := new(big.Rat)
	for _, a := range as {
		total.Add(total, a.rat())
	}
	return Amount{r: total}
}
