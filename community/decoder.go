package community

import (
	"sync"
	"unicode/utf16"
)

// maskOffset is subtracted from each code unit of an ownership string.
const maskOffset = 35

// bitsPerChar is the number of ownership bits packed into one character.
const bitsPerChar = 6

// Decoder turns packed ownership strings into owned emote indices, memoizing
// every distinct input. It is safe for concurrent use.
type Decoder struct {
	mu    sync.RWMutex
	cache map[string][]int
}

// NewDecoder returns a Decoder with an empty cache.
func NewDecoder() *Decoder {
	return &Decoder{cache: make(map[string][]int)}
}

// Decode returns the owned indices for encoded in ascending order, serving
// repeats from the cache. The returned slice is shared and must not be modified.
func (d *Decoder) Decode(encoded string) []int {
	d.mu.RLock()
	v, ok := d.cache[encoded]
	d.mu.RUnlock()
	if ok {
		return v
	}
	v = DecodeOwnership(encoded)
	d.mu.Lock()
	d.cache[encoded] = v
	d.mu.Unlock()
	return v
}

// Cached reports whether encoded has already been decoded.
func (d *Decoder) Cached(encoded string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.cache[encoded]
	return ok
}

// Len returns the number of memoized inputs.
func (d *Decoder) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cache)
}

// DecodeOwnership decodes without touching any cache. Each UTF-16 code unit
// carries six bits as (unit - 35); the string is read last character first,
// so position i of the reversed value array maps to indices i*6 .. i*6+5.
func DecodeOwnership(encoded string) []int {
	units := utf16.Encode([]rune(encoded))
	n := len(units)
	values := make([]int, n)
	for i, u := range units {
		values[n-1-i] = int(u) - maskOffset
	}
	out := []int{}
	for i, v := range values {
		if v == 0 {
			continue
		}
		for bit := 0; bit < bitsPerChar; bit++ {
			if v&(1<<bit) != 0 {
				out = append(out, i*bitsPerChar+bit)
			}
		}
	}
	return out
}

// hasIndex reports whether idx is in the ascending index list.
func hasIndex(indices []int, idx int) bool {
	for _, v := range indices {
		if v == idx {
			return true
		}
		if v > idx {
			return false
		}
	}
	return false
}
