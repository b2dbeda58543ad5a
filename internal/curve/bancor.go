package curve

import (
	"github.com/holiman/uint256"
)

// Pricer evaluates the Bancor purchase and sale formulas with a chosen
// fractional power implementation. The zero value uses ExactPow.
type Pricer struct {
	pow FractionalPow
}

var (
	// Exact prices trades with exact integer roots.
	Exact = Pricer{pow: ExactPow}
	// Linear reproduces the legacy first-order approximation.
	Linear = Pricer{pow: LinearPow}
)

// NewPricer wraps a custom fractional power implementation.
func NewPricer(pow FractionalPow) Pricer {
	return Pricer{pow: pow}
}

func (p Pricer) fractional() FractionalPow {
	if p.pow == nil {
		return ExactPow
	}
	return p.pow
}

// PowerFraction returns base^(num/den), rounded down.
func (p Pricer) PowerFraction(base, num, den uint64) (uint64, error) {
	return p.fractional()(base, num, den, false)
}

// PurchaseReturn returns the tokens minted for depositing reserve into the curve.
func (p Pricer) PurchaseReturn(supply, reserve uint64, ratio uint8, deposit uint64) (uint64, error) {
	if err := ValidateRatio(ratio); err != nil {
		return 0, err
	}
	if deposit == 0 {
		return 0, nil
	}
	if supply == 0 || reserve == 0 {
		return MulDiv(deposit, uint64(ratio), 100)
	}

	step, err := MulDiv(deposit, Precision, reserve)
	if err != nil {
		return 0, err
	}
	if step > ^uint64(0)-Precision {
		return 0, ErrOverflow
	}

	powered, err := p.fractional()(Precision+step, uint64(ratio), 100, false)
	if err != nil {
		return 0, err
	}
	if powered <= Precision {
		return 0, nil
	}
	return MulDiv(supply, powered-Precision, Precision)
}

// SaleReturn returns the reserve released for burning amount tokens. The powered
// base is rounded up so the curve never pays out more than it took in.
func (p Pricer) SaleReturn(supply, reserve uint64, ratio uint8, amount uint64) (uint64, error) {
	if err := ValidateRatio(ratio); err != nil {
		return 0, err
	}
	if amount > supply {
		return 0, ErrInsufficientSupply
	}
	if amount == 0 || supply == 0 {
		return 0, nil
	}

	step, err := MulDiv(amount, Precision, supply)
	if err != nil {
		return 0, err
	}

	powered, err := p.fractional()(Precision-step, 100, uint64(ratio), true)
	if err != nil {
		return 0, err
	}
	if powered >= Precision {
		return 0, nil
	}
	return MulDiv(reserve, Precision-powered, Precision)
}

// PurchaseReturn prices a purchase with exact roots.
func PurchaseReturn(supply, reserve uint64, ratio uint8, deposit uint64) (uint64, error) {
	return Exact.PurchaseReturn(supply, reserve, ratio, deposit)
}

// SaleReturn prices a sale with exact roots.
func SaleReturn(supply, reserve uint64, ratio uint8, amount uint64) (uint64, error) {
	return Exact.SaleReturn(supply, reserve, ratio, amount)
}

// CurrentPrice returns reserve*Precision*100/(supply*ratio), the marginal price
// of one token base unit in Precision-scaled reserve units.
func CurrentPrice(supply, reserve uint64, ratio uint8) (uint64, error) {
	if err := ValidateRatio(ratio); err != nil {
		return 0, err
	}
	if supply == 0 {
		return 0, nil
	}

	num := new(uint256.Int).Mul(uint256.NewInt(reserve), uint256.NewInt(Precision*100))
	den := new(uint256.Int).Mul(uint256.NewInt(supply), uint256.NewInt(uint64(ratio)))
	num.Div(num, den)
	if !num.IsUint64() {
		return 0, ErrOverflow
	}
	return num.Uint64(), nil
}

// ValidateRatio checks the reserve ratio is a percentage in [1,100].
func ValidateRatio(ratio uint8) error {
	if ratio < 1 || ratio > 100 {
		return ErrInvalidRatio
	}
	return nil
}
