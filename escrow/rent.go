package escrow

import (
	"github.com/cockroachdb/errors"

	"github.com/NethermindEth/agent-protocol/core"
)

// Rent prices the minimum standing balance a custody account must keep to
// stay alive: (Overhead + size) * PerByte.
type Rent struct {
	PerByte  uint64 `json:"per_byte" cbor:"per_byte"`
	Overhead uint64 `json:"overhead" cbor:"overhead"`
}

// DefaultRent charges two years of storage at 3480 units per byte-year.
var DefaultRent = Rent{PerByte: 6960, Overhead: 128}

// MinimumBalance returns the standing balance required for a record of size bytes.
func (r Rent) MinimumBalance(size uint64) (uint64, error) {
	total, ok := Add(r.Overhead, size)
	if !ok {
		return 0, errors.Wrap(core.ErrOverflow, "record size")
	}
	minimum, ok := Mul(total, r.PerByte)
	if !ok {
		return 0, errors.Wrap(core.ErrOverflow, "minimum balance")
	}
	return minimum, nil
}
