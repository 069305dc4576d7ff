package escrow

import "github.com/holiman/uint256"

// Checked arithmetic on value units. Results are computed in 256 bits and
// rejected when they do not fit back into 64.

func Add(a, b uint64) (uint64, bool) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, false
	}
	return sum.Uint64(), true
}

func Sub(a, b uint64) (uint64, bool) {
	diff, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if underflow {
		return 0, false
	}
	return diff.Uint64(), true
}

func Mul(a, b uint64) (uint64, bool) {
	prod, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !prod.IsUint64() {
		return 0, false
	}
	return prod.Uint64(), true
}

// Div returns false on division by zero.
func Div(a, b uint64) (uint64, bool) {
	if b == 0 {
		return 0, false
	}
	return new(uint256.Int).Div(uint256.NewInt(a), uint256.NewInt(b)).Uint64(), true
}
