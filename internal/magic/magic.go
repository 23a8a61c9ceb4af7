// Package magic builds the lookup tables that map a (multiplier, shift) pair
// emitted by a compiler for division by a constant back to the divisor.
package magic

import (
	"errors"
	"fmt"
)

const (
	// DefaultMaxDivisor is the exclusive upper bound of the default divisor range.
	DefaultMaxDivisor = 1 << 10

	// MaxDivisorLimit bounds the range so that 2^power stays inside 64 bits.
	MaxDivisorLimit = 1 << 24

	basePower   = 32
	maxSigned   = 1<<31 - 1
	maxUnsigned = 1<<32 - 1
)

// ErrRangeTooLarge is returned when the requested divisor range cannot be
// computed with 64-bit arithmetic.
var ErrRangeTooLarge = errors.New("divisor range too large")

// Kind distinguishes the signed and unsigned tables.
type Kind string

const (
	KindSigned   Kind = "signed"
	KindUnsigned Kind = "unsigned"
)

// Key identifies a table entry.
type Key struct {
	Magic int64
	Power int
}

// Entry is one (magic, power) -> divisor association.
type Entry struct {
	Divisor int64 `json:"divisor"`
	Magic   int64 `json:"magic"`
	Power   int   `json:"power"`
}

// Table is an immutable (magic, power) -> divisor map.
type Table struct {
	kind    Kind
	max     int
	entries map[Key]int64
	order   []Key
}

func newTable(kind Kind, max int) *Table {
	return &Table{kind: kind, max: max, entries: make(map[Key]int64)}
}

// put stores an entry; a later put for the same key replaces the divisor.
func (t *Table) put(magic int64, power int, divisor int64) {
	k := Key{Magic: magic, Power: power}
	if _, ok := t.entries[k]; !ok {
		t.order = append(t.order, k)
	}
	t.entries[k] = divisor
}

// Lookup returns the divisor stored for (magic, power).
func (t *Table) Lookup(magic int64, power int) (int64, bool) {
	if t == nil {
		return 0, false
	}
	d, ok := t.entries[Key{Magic: magic, Power: power}]
	return d, ok
}

// Kind reports whether this is the signed or the unsigned table.
func (t *Table) Kind() Kind { return t.kind }

// Max is the exclusive upper bound of the divisor range the table was built for.
func (t *Table) Max() int { return t.max }

// Len is the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Entries returns the entries in build order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, Entry{Divisor: t.entries[k], Magic: k.Magic, Power: k.Power})
	}
	return out
}

func checkRange(max int) error {
	if max > MaxDivisorLimit {
		return fmt.Errorf("%d exceeds %d: %w", max, MaxDivisorLimit, ErrRangeTooLarge)
	}
	return nil
}

func isPowerOfTwo(d uint64) bool {
	return d&(d-1) == 0
}

// Signed builds the signed table for divisors 2 <= d < max. Every divisor d
// that is not a power of two gets its (magic, power) pair plus a negated
// entry resolving to -d.
func Signed(max int) (*Table, error) {
	if err := checkRange(max); err != nil {
		return nil, err
	}
	t := newTable(KindSigned, max)
	for d := uint64(2); d < uint64(max); d++ {
		if isPowerOfTwo(d) {
			continue
		}
		power := signedPower(d)
		y := uint64(1) << power
		m := (d - y%d + y) / d
		t.put(int64(m), power, int64(d))
		if int32(m) > 0 {
			t.put(-int64(m), power, -int64(d))
		} else {
			t.put(-int64(int32(m)), power, -int64(d))
		}
	}
	return t, nil
}

// signedPower is the smallest power >= 32 for which the rounding error of
// the multiplier stays below 1/d over the signed 32-bit range.
func signedPower(d uint64) int {
	maxErr := 1.0 / float64(d)
	power := basePower
	for {
		y := uint64(1) << power
		x := d - y%d
		if float64(x)*maxSigned/(float64(d)*float64(y)) < maxErr {
			return power
		}
		power++
	}
}

// Unsigned builds the unsigned table for divisors 2 <= d < max. Multipliers
// that need 33 bits are stored reduced by 2^32, the form in which they appear
// in code.
func Unsigned(max int) (*Table, error) {
	if err := checkRange(max); err != nil {
		return nil, err
	}
	t := newTable(KindUnsigned, max)
	for d := uint64(2); d < uint64(max); d++ {
		if isPowerOfTwo(d) {
			continue
		}
		power := unsignedPower(d)
		y := uint64(1) << power
		m := int64((d - 1 - (y-1)%d + y) / d)
		if m >= maxUnsigned {
			m -= 1 << 32
		}
		t.put(m, power, int64(d))
	}
	return t, nil
}

// unsignedPower mirrors signedPower over the unsigned 32-bit range. The
// first candidate uses the round-up remainder, later candidates the plain one.
func unsignedPower(d uint64) int {
	maxErr := 1.0 / float64(d)
	power := basePower
	y := uint64(1) << power
	x := d - 1 - (y-1)%d
	for {
		if float64(x)*maxUnsigned/(float64(d)*float64(y)) < maxErr {
			return power
		}
		power++
		y = uint64(1) << power
		x = d - y%d
	}
}

// Build dispatches on kind.
func Build(kind Kind, max int) (*Table, error) {
	switch kind {
	case KindSigned:
		return Signed(max)
	case KindUnsigned:
		return Unsigned(max)
	}
	return nil, fmt.Errorf("unknown table kind %q", kind)
}
