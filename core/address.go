package core

import (
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/crypto/tmhash"
)

// AddressSize matches the truncated tmhash used by cometbft for account addresses.
const AddressSize = tmhash.TruncatedSize

// Address identifies a signer or a custody account (agent profile, job, rating).
type Address [AddressSize]byte

// ZeroAddress is never a valid signer or record.
var ZeroAddress Address

// AddressFromBytes converts a cometbft address (or any 20 byte slice).
func AddressFromBytes(bz []byte) (Address, error) {
	var a Address
	if len(bz) != AddressSize {
		return a, errors.Mark(errors.Newf("address must be %d bytes, got %d", AddressSize, len(bz)), ErrValidation)
	}
	copy(a[:], bz)
	return a, nil
}

// AddressFromPubKey returns the address owned by an ed25519 signer.
func AddressFromPubKey(pub crypto.PubKey) Address {
	var a Address
	copy(a[:], pub.Address())
	return a
}

// ParseAddress parses the hex text form of an address.
func ParseAddress(s string) (Address, error) {
	bz, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Address{}, errors.Mark(errors.Wrapf(err, "parse address %q", s), ErrValidation)
	}
	return AddressFromBytes(bz)
}

func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) Bytes() []byte { return a[:] }

func (a Address) String() string { return strings.ToUpper(hex.EncodeToString(a[:])) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func deriveAddress(parts ...[]byte) Address {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	var a Address
	copy(a[:], tmhash.SumTruncated(buf))
	return a
}

// DeriveAgentAddress returns the profile address of an agent owner. One profile per owner.
func DeriveAgentAddress(owner Address) Address {
	return deriveAddress([]byte("agent"), owner[:])
}

// DeriveJobAddress returns the custody address of a job funded by client
// against the given agent profile. The seed disambiguates repeated jobs.
func DeriveJobAddress(client, agentProfile Address, seed int64) Address {
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], uint64(seed))
	return deriveAddress([]byte("job"), client[:], agentProfile[:], le[:])
}

// DeriveRatingAddress returns the single rating slot of a job.
func DeriveRatingAddress(job Address) Address {
	return deriveAddress([]byte("rating"), job[:])
}
