package models

// Collection is an ordered sequence of sensor records. Published collections
// are never modified; every change produces a new slice.
type Collection []SensorRecord

// Clone returns a copy with its own backing array.
func (c Collection) Clone() Collection {
	if c == nil {
		return nil
	}
	out := make(Collection, len(c))
	copy(out, c)
	return out
}

// Find returns the first record with the given identifier.
func (c Collection) Find(identifier string) (SensorRecord, bool) {
	for _, r := range c {
		if r.Identifier == identifier {
			return r, true
		}
	}
	return SensorRecord{}, false
}

// Identifiers returns the identifiers of all records in order.
func (c Collection) Identifiers() []string {
	ids := make([]string, 0, len(c))
	for _, r := range c {
		ids = append(ids, r.Identifier)
	}
	return ids
}

// Filter returns the records for which keep returns true.
func (c Collection) Filter(keep func(SensorRecord) bool) Collection {
	out := make(Collection, 0)
	for _, r := range c {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Pinned returns the records the user has pinned.
func (c Collection) Pinned() Collection {
	return c.Filter(func(r SensorRecord) bool { return r.IsPinned })
}

// Graphed returns the records the user has enabled graphs for.
func (c Collection) Graphed() Collection {
	return c.Filter(func(r SensorRecord) bool { return r.IsGraphEnabled })
}

// Concat joins collections in the given order into a new collection.
func Concat(parts ...Collection) Collection {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(Collection, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
