package stratum

// Value is an owned, opaque byte blob with a caller-specified alignment
// (C3's value half; the link half lives in slotEntry.next). Alignment has
// no bearing on layout in a garbage-collected runtime, but is carried
// through verbatim (and reported by Alignment) because callers that
// reinterpret the bytes as an aligned struct treat it as part of the
// value's identity.
type Value struct {
	data      []byte
	alignment int
}

func newValue(data []byte, alignment int) *Value {
	cp := make([]byte, len(data))
	copy(cp, data)
	if alignment <= 0 {
		alignment = 1
	}
	return &Value{data: cp, alignment: alignment}
}

// Bytes returns the value's payload. The returned slice is owned by the
// tree until the slot it hangs off is replaced or removed; callers that
// hold it across other operations should copy it.
func (v *Value) Bytes() []byte { return v.data }

// Len reports the payload size in bytes.
func (v *Value) Len() int { return len(v.data) }

// Alignment reports the alignment the value was stored with.
func (v *Value) Alignment() int { return v.alignment }
