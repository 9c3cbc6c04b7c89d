// Package digest produces stable content hashes of simulation state so a
// recorded playthrough can be replayed and compared bit for bit.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sort"
)

// Hasher accumulates a length-prefixed binary encoding into sha256.
type Hasher struct {
	h   hash.Hash
	tmp [8]byte
}

func New() *Hasher { return &Hasher{h: sha256.New()} }

func (d *Hasher) Int(v int) {
	binary.LittleEndian.PutUint64(d.tmp[:], uint64(int64(v)))
	d.h.Write(d.tmp[:])
}

// Float writes the exact IEEE-754 bits, so 0.1+0.2 and 0.3 hash differently.
func (d *Hasher) Float(v float64) {
	binary.LittleEndian.PutUint64(d.tmp[:], math.Float64bits(v))
	d.h.Write(d.tmp[:])
}

func (d *Hasher) String(s string) {
	d.Int(len(s))
	d.h.Write([]byte(s))
}

func (d *Hasher) Strings(ss []string) {
	d.Int(len(ss))
	for _, s := range ss {
		d.String(s)
	}
}

// FloatMap writes a key-sorted map encoding.
func (d *Hasher) FloatMap(m map[string]float64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d.Int(len(keys))
	for _, k := range keys {
		d.String(k)
		d.Float(m[k])
	}
}

func (d *Hasher) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Values hashes a single year's variable map.
func Values(year int, values map[string]float64) string {
	d := New()
	d.Int(year)
	d.FloatMap(values)
	return d.Sum()
}
