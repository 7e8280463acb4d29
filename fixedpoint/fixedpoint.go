// Package fixedpoint holds the checked integer arithmetic shared by every
// pricing curve. Intermediates are carried in a Wide value that is bounded to
// 128 bits; any step that leaves that bound, divides by zero or goes below zero
// reports ErrOverflow. All divisions floor.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// BasisPoints is the denominator of fee and band percentages (10000 = 100%).
	BasisPoints uint64 = 10_000
	// Scale is the 1e6 fixed-point unit used for ratios, weights and sqrt prices.
	Scale uint64 = 1_000_000
	// WideBits is the working width of a Wide intermediate.
	WideBits = 128
)

var ErrOverflow = errors.New("overflow")

var maxWide = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), WideBits), 1)

// Wide is a 128-bit unsigned intermediate with a sticky error. Once an
// operation fails every following operation is a no-op and the first error is
// reported by Err, Uint64 or Cmp's callers via Err.
type Wide struct {
	v   uint256.Int
	err error
}

// New returns a Wide holding x.
func New(x uint64) *Wide {
	w := new(Wide)
	w.v.SetUint64(x)
	return w
}

// Max returns a Wide holding 2^128-1.
func Max() *Wide {
	w := new(Wide)
	w.v.Set(maxWide)
	return w
}

// Clone returns an independent copy of w, including its error state.
func (w *Wide) Clone() *Wide {
	c := &Wide{err: w.err}
	c.v.Set(&w.v)
	return c
}

func (w *Wide) Err() error { return w.err }

func (w *Wide) IsZero() bool { return w.err == nil && w.v.IsZero() }

// IsMax reports whether w holds the largest representable value.
func (w *Wide) IsMax() bool { return w.err == nil && w.v.Eq(maxWide) }

func (w *Wide) fail(format string, args ...any) *Wide {
	if w.err == nil {
		w.err = fmt.Errorf("%w: "+format, append([]any{ErrOverflow}, args...)...)
	}
	return w
}

func (w *Wide) bound(op string) *Wide {
	if w.v.BitLen() > WideBits {
		return w.fail("%s exceeds %d bits", op, WideBits)
	}
	return w
}

func (w *Wide) Mul(y uint64) *Wide {
	if w.err != nil {
		return w
	}
	w.v.Mul(&w.v, uint256.NewInt(y))
	return w.bound("mul")
}

func (w *Wide) MulWide(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		w.err = o.err
		return w
	}
	w.v.Mul(&w.v, &o.v)
	return w.bound("mul")
}

func (w *Wide) Add(y uint64) *Wide {
	if w.err != nil {
		return w
	}
	w.v.Add(&w.v, uint256.NewInt(y))
	return w.bound("add")
}

func (w *Wide) AddWide(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		w.err = o.err
		return w
	}
	w.v.Add(&w.v, &o.v)
	return w.bound("add")
}

func (w *Wide) Sub(y uint64) *Wide {
	return w.SubWide(New(y))
}

// SubWide subtracts o, failing on underflow.
func (w *Wide) SubWide(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		w.err = o.err
		return w
	}
	if w.v.Lt(&o.v) {
		return w.fail("sub underflow")
	}
	w.v.Sub(&w.v, &o.v)
	return w
}

// SaturatingSub subtracts o, stopping at zero.
func (w *Wide) SaturatingSub(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		w.err = o.err
		return w
	}
	if w.v.Lt(&o.v) {
		w.v.Clear()
		return w
	}
	w.v.Sub(&w.v, &o.v)
	return w
}

func (w *Wide) Div(y uint64) *Wide {
	return w.DivWide(New(y))
}

// DivWide floors w/o, failing on division by zero.
func (w *Wide) DivWide(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		w.err = o.err
		return w
	}
	if o.v.IsZero() {
		return w.fail("division by zero")
	}
	w.v.Div(&w.v, &o.v)
	return w
}

// Sqrt floors the square root of w.
func (w *Wide) Sqrt() *Wide {
	if w.err != nil {
		return w
	}
	w.v.Sqrt(&w.v)
	return w
}

// Min keeps the smaller of w and o.
func (w *Wide) Min(o *Wide) *Wide {
	if w.err != nil {
		return w
	}
	if o.err != nil {
		w.err = o.err
		return w
	}
	if o.v.Lt(&w.v) {
		w.v.Set(&o.v)
	}
	return w
}

// Cmp compares the values of w and o. Error state is ignored.
func (w *Wide) Cmp(o *Wide) int {
	return w.v.Cmp(&o.v)
}

// Uint64 narrows w to 64 bits, failing if it does not fit.
func (w *Wide) Uint64() (uint64, error) {
	if w.err != nil {
		return 0, w.err
	}
	if !w.v.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit in 64 bits", ErrOverflow, w.v.Dec())
	}
	return w.v.Uint64(), nil
}

func (w *Wide) String() string {
	if w.err != nil {
		return "<" + w.err.Error() + ">"
	}
	return w.v.Dec()
}

// MulDiv returns floor(a*b/c) with a 128-bit intermediate.
func MulDiv(a, b, c uint64) (uint64, error) {
	return New(a).Mul(b).Div(c).Uint64()
}

// ApplyFee returns floor(amount*(BasisPoints-feeBps)/BasisPoints).
func ApplyFee(amount, feeBps uint64) (uint64, error) {
	if feeBps > BasisPoints {
		return 0, fmt.Errorf("%w: fee %d bps above %d", ErrOverflow, feeBps, BasisPoints)
	}
	return MulDiv(amount, BasisPoints-feeBps, BasisPoints)
}

// ScaledRatio returns floor(num*Scale/den).
func ScaledRatio(num, den uint64) (uint64, error) {
	return MulDiv(num, Scale, den)
}

// ApplyRatio returns floor(amount*ratio/Scale).
func ApplyRatio(amount, ratio uint64) (uint64, error) {
	return MulDiv(amount, ratio, Scale)
}

// SqrtProduct returns floor(sqrt(a*b)).
func SqrtProduct(a, b uint64) (uint64, error) {
	return New(a).Mul(b).Sqrt().Uint64()
}

// CheckedAdd returns a+b, failing on 64-bit wraparound.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// CheckedSub returns a-b, failing when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, a, b)
	}
	return a - b, nil
}

// Int returns a copy of w's value.
func (w *Wide) Int() (*uint256.Int, error) {
	if w.err != nil {
		return nil, w.err
	}
	return new(uint256.Int).Set(&w.v), nil
}

// FromInt returns a Wide holding x, failing if x exceeds 128 bits.
func FromInt(x *uint256.Int) *Wide {
	w := new(Wide)
	w.v.Set(x)
	return w.bound("load")
}
