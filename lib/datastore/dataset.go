package datastore

// --------------------------------------------------------------------------
// DataSet
// --------------------------------------------------------------------------

// DataSet is a full snapshot of store contents as handed to Init: for every
// kind the complete set of records keyed by record key. A kind mapped to an
// empty map is declared but empty, which matters to Init since it replaces
// the whole namespace.
type DataSet map[Kind]map[string]Record

// Clone returns a deep copy of the dataset. Mutating the copy or the records
// inside it leaves the original untouched.
func (ds DataSet) Clone() DataSet {
	c := make(DataSet, len(ds))
	for kind, records := range ds {
		m := make(map[string]Record, len(records))
		for key, rec := range records {
			m[key] = rec.clone()
		}
		c[kind] = m
	}
	return c
}

// Count returns the total number of records across all kinds.
func (ds DataSet) Count() int {
	n := 0
	for _, records := range ds {
		n += len(records)
	}
	return n
}

// --------------------------------------------------------------------------
// Builder
// --------------------------------------------------------------------------

// DataSetBuilder accumulates records for an Init payload.
//
// Thread-safety: a builder is not safe for concurrent use.
type DataSetBuilder struct {
	data DataSet
}

// NewDataSet creates an empty builder.
//
// Usage:
//
//	ds := datastore.NewDataSet().
//	    Add(datastore.KindFeatures, flagV1, flagV2).
//	    Add(datastore.KindSegments).
//	    Build()
func NewDataSet() *DataSetBuilder {
	return &DataSetBuilder{data: make(DataSet)}
}

// Add declares a kind and appends records to it. Calling Add with no records
// declares the kind as present but empty. Adding a record whose key already
// exists within the kind overwrites the earlier one.
func (b *DataSetBuilder) Add(kind Kind, records ...Record) *DataSetBuilder {
	m, ok := b.data[kind]
	if !ok {
		m = make(map[string]Record)
		b.data[kind] = m
	}
	for _, rec := range records {
		m[rec.Key] = rec.clone()
	}
	return b
}

// Build returns the accumulated dataset. The result is independent of the
// builder: further Add calls or repeated Builds never alias each other.
func (b *DataSetBuilder) Build() DataSet {
	return b.data.Clone()
}
