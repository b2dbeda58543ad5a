package curve

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Precision is the fixed-point scale shared by prices and powered bases.
const Precision uint64 = 100_000_000

var (
	ErrOverflow           = errors.New("math overflow")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrInvalidExponent    = errors.New("invalid exponent")
	ErrInvalidRatio       = errors.New("reserve ratio must be within [1,100]")
	ErrInsufficientSupply = errors.New("insufficient supply")
)

var (
	precision256 = uint256.NewInt(Precision)
	precisionBig = new(big.Int).SetUint64(Precision)
)

// FractionalPow raises a Precision-scaled base to num/den. roundUp selects the
// ceiling of the exact result where the implementation supports it.
type FractionalPow func(base, num, den uint64, roundUp bool) (uint64, error)

// MulDiv returns a*b/c computed with 256-bit intermediates.
func MulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(uint256.NewInt(a), uint256.NewInt(b), uint256.NewInt(c))
	if overflow || !out.IsUint64() {
		return 0, ErrOverflow
	}
	return out.Uint64(), nil
}

// Power raises a Precision-scaled base to an integer exponent by binary exponentiation.
func Power(base, exp uint64) (uint64, error) {
	result := new(uint256.Int).Set(precision256)
	b := uint256.NewInt(base)

	for exp > 0 {
		if exp&1 == 1 {
			if _, overflow := result.MulOverflow(result, b); overflow {
				return 0, ErrOverflow
			}
			result.Div(result, precision256)
		}
		exp >>= 1
		if exp > 0 {
			if _, overflow := b.MulOverflow(b, b); overflow {
				return 0, ErrOverflow
			}
			b.Div(b, precision256)
		}
	}

	if !result.IsUint64() {
		return 0, ErrOverflow
	}
	return result.Uint64(), nil
}

// ExactPow computes base^(num/den) as the exact integer den-th root of
// base^num * Precision^(den-num), floored or ceiled.
func ExactPow(base, num, den uint64, roundUp bool) (uint64, error) {
	if den == 0 {
		return 0, ErrInvalidExponent
	}
	if num == 0 || base == Precision {
		return Precision, nil
	}
	if base == 0 {
		return 0, nil
	}

	g := gcd(num, den)
	num, den = num/g, den/g

	x := new(big.Int).Exp(new(big.Int).SetUint64(base), new(big.Int).SetUint64(num), nil)
	y := big.NewInt(1)
	if den >= num {
		x.Mul(x, new(big.Int).Exp(precisionBig, new(big.Int).SetUint64(den-num), nil))
	} else {
		y.Exp(precisionBig, new(big.Int).SetUint64(num-den), nil)
	}

	q := new(big.Int).Quo(x, y)
	root := iroot(q, den)
	if roundUp {
		check := new(big.Int).Exp(root, new(big.Int).SetUint64(den), nil)
		check.Mul(check, y)
		if check.Cmp(x) < 0 {
			root.Add(root, big.NewInt(1))
		}
	}

	if !root.IsUint64() {
		return 0, ErrOverflow
	}
	return root.Uint64(), nil
}

// LinearPow is the first-order approximation Precision ± |base-Precision|*num/den.
// It is only accurate for bases close to Precision and saturates at zero.
func LinearPow(base, num, den uint64, _ bool) (uint64, error) {
	if den == 0 {
		return 0, ErrInvalidExponent
	}
	if base >= Precision {
		diff, err := MulDiv(base-Precision, num, den)
		if err != nil {
			return 0, err
		}
		if diff > ^uint64(0)-Precision {
			return 0, ErrOverflow
		}
		return Precision + diff, nil
	}
	diff, err := MulDiv(Precision-base, num, den)
	if err != nil {
		return 0, err
	}
	if diff >= Precision {
		return 0, nil
	}
	return Precision - diff, nil
}

// iroot returns floor(n^(1/k)) using Newton's method from an upper bound.
func iroot(n *big.Int, k uint64) *big.Int {
	if n.Sign() == 0 {
		return new(big.Int)
	}
	if k == 1 {
		return new(big.Int).Set(n)
	}

	kBig := new(big.Int).SetUint64(k)
	kMinus1 := new(big.Int).SetUint64(k - 1)
	shift := (uint64(n.BitLen()) + k - 1) / k
	x := new(big.Int).Lsh(big.NewInt(1), uint(shift))

	for {
		// y = ((k-1)*x + n/x^(k-1)) / k
		pow := new(big.Int).Exp(x, kMinus1, nil)
		y := new(big.Int).Quo(n, pow)
		y.Add(y, new(big.Int).Mul(kMinus1, x))
		y.Quo(y, kBig)
		if y.Cmp(x) >= 0 {
			return x
		}
		x = y
	}
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
