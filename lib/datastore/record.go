package datastore

import "bytes"

// --------------------------------------------------------------------------
// Kinds
// --------------------------------------------------------------------------

// Kind names a logical collection of records. All contract operations are
// scoped to a single kind; the same key under two kinds identifies two
// independent records.
type Kind string

const (
	// KindFeatures holds serialized feature flag configurations.
	KindFeatures Kind = "features"
	// KindSegments holds serialized user segment definitions.
	KindSegments Kind = "segments"
)

// Kinds returns the canonical kinds exercised by the conformance suite.
func Kinds() []Kind {
	return []Kind{KindFeatures, KindSegments}
}

func (k Kind) String() string {
	return string(k)
}

// --------------------------------------------------------------------------
// Record
// --------------------------------------------------------------------------

// Record is a versioned, serialized item as stored by a backend. The payload
// is opaque: backends and the conformance suite never interpret the bytes,
// only the version number.
//
// A record with Deleted set is a tombstone. Tombstones carry no payload but
// keep their version and take part in version comparison exactly like live
// records.
//
// Records have value semantics. Constructors and derivation methods copy the
// payload slice so that no caller ever aliases stored state.
type Record struct {
	Key     string
	Version int
	Value   []byte
	Deleted bool
}

// NewRecord creates a live record with the given key, version and payload.
func NewRecord(key string, version int, value []byte) Record {
	return Record{
		Key:     key,
		Version: version,
		Value:   copyBytes(value),
	}
}

// NewTombstone creates a deleted placeholder for the given key and version.
func NewTombstone(key string, version int) Record {
	return Record{
		Key:     key,
		Version: version,
		Deleted: true,
	}
}

// WithVersion returns a copy of the record with the version replaced.
func (r Record) WithVersion(version int) Record {
	c := r.clone()
	c.Version = version
	return c
}

// NextVersion returns a copy of the record with the version incremented by one.
func (r Record) NextVersion() Record {
	return r.WithVersion(r.Version + 1)
}

// WithValue returns a live copy of the record with the payload replaced.
// The key and version are kept.
func (r Record) WithValue(value []byte) Record {
	c := r.clone()
	c.Value = copyBytes(value)
	c.Deleted = false
	return c
}

// AsTombstone returns a deleted copy of the record, dropping the payload
// and keeping key and version.
func (r Record) AsTombstone() Record {
	return Record{
		Key:     r.Key,
		Version: r.Version,
		Deleted: true,
	}
}

// Equal reports whether two records are identical. Payloads are compared
// byte-wise, a nil payload equals an empty one.
func (r Record) Equal(other Record) bool {
	return r.Key == other.Key &&
		r.Version == other.Version &&
		r.Deleted == other.Deleted &&
		bytes.Equal(r.Value, other.Value)
}

// clone returns a deep copy of the record.
func (r Record) clone() Record {
	c := r
	c.Value = copyBytes(r.Value)
	return c
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
