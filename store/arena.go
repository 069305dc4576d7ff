package store

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

var (
	// ErrSlotTaken is returned when allocating an id that already holds a slot.
	ErrSlotTaken = errors.New("store: id already allocated")
	// ErrNoSlot is returned when an id holds no slot.
	ErrNoSlot = errors.New("store: id not allocated")
)

// Arena stores fixed-identity records in numbered slots. A slot is allocated
// when a record is created and zeroed and recycled when the record is closed,
// so a closed record leaves nothing behind under its id.
type Arena struct {
	prefix string
}

type arenaMeta struct {
	Next uint64   `cbor:"next"`
	Free []uint64 `cbor:"free"`
}

func NewArena(name string) Arena {
	return Arena{prefix: name + "/"}
}

func (a Arena) metaKey() []byte { return []byte(a.prefix + "meta") }

func (a Arena) indexKey(id []byte) []byte {
	return append([]byte(a.prefix+"idx/"), id...)
}

func (a Arena) slotKey(slot uint64) []byte {
	key := []byte(a.prefix + "slot/")
	return binary.BigEndian.AppendUint64(key, slot)
}

func (a Arena) meta(kv KV) (arenaMeta, error) {
	var m arenaMeta
	bz, err := kv.Get(a.metaKey())
	if err != nil || bz == nil {
		return m, err
	}
	if err := Unmarshal(bz, &m); err != nil {
		return m, errors.Wrapf(err, "decode %smeta", a.prefix)
	}
	return m, nil
}

func (a Arena) saveMeta(kv KV, m arenaMeta) error {
	bz, err := Marshal(m)
	if err != nil {
		return err
	}
	return kv.Set(a.metaKey(), bz)
}

// Slot returns the slot held by id.
func (a Arena) Slot(kv KV, id []byte) (uint64, error) {
	bz, err := kv.Get(a.indexKey(id))
	if err != nil {
		return 0, err
	}
	if len(bz) != 8 {
		return 0, ErrNoSlot
	}
	return binary.BigEndian.Uint64(bz), nil
}

// Alloc places record in a free slot (the most recently freed one first) and
// binds it to id.
func (a Arena) Alloc(kv KV, id, record []byte) (uint64, error) {
	if _, err := a.Slot(kv, id); err == nil {
		return 0, ErrSlotTaken
	} else if !errors.Is(err, ErrNoSlot) {
		return 0, err
	}
	m, err := a.meta(kv)
	if err != nil {
		return 0, err
	}
	var slot uint64
	if n := len(m.Free); n > 0 {
		slot = m.Free[n-1]
		m.Free = m.Free[:n-1]
	} else {
		slot = m.Next
		m.Next++
	}
	if err := a.saveMeta(kv, m); err != nil {
		return 0, err
	}
	if err := kv.Set(a.indexKey(id), binary.BigEndian.AppendUint64(nil, slot)); err != nil {
		return 0, err
	}
	return slot, kv.Set(a.slotKey(slot), record)
}

// Get returns the record bound to id, or ErrNoSlot.
func (a Arena) Get(kv KV, id []byte) ([]byte, error) {
	slot, err := a.Slot(kv, id)
	if err != nil {
		return nil, err
	}
	bz, err := kv.Get(a.slotKey(slot))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, errors.Wrapf(ErrNoSlot, "slot %d is empty", slot)
	}
	return bz, nil
}

// Put overwrites the record bound to id.
func (a Arena) Put(kv KV, id, record []byte) error {
	slot, err := a.Slot(kv, id)
	if err != nil {
		return err
	}
	return kv.Set(a.slotKey(slot), record)
}

// Free zeroes the slot bound to id and returns it to the free list.
func (a Arena) Free(kv KV, id []byte) (uint64, error) {
	slot, err := a.Slot(kv, id)
	if err != nil {
		return 0, err
	}
	m, err := a.meta(kv)
	if err != nil {
		return 0, err
	}
	m.Free = append(m.Free, slot)
	if err := a.saveMeta(kv, m); err != nil {
		return 0, err
	}
	if err := kv.Delete(a.slotKey(slot)); err != nil {
		return 0, err
	}
	return slot, kv.Delete(a.indexKey(id))
}

// Live is the number of allocated slots.
func (a Arena) Live(kv KV) (uint64, error) {
	m, err := a.meta(kv)
	if err != nil {
		return 0, err
	}
	return m.Next - uint64(len(m.Free)), nil
}
