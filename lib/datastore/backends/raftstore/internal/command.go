package internal

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/flagforge/storecheck/lib/datastore"
)

// --------------------------------------------------------------------------
// Commands (raft log entries)
// --------------------------------------------------------------------------

// CommandType defines the write operations the state machine applies.
type CommandType uint8

const (
	CommandTInit   CommandType = iota // Replace a namespace with a dataset.
	CommandTUpsert                    // Version-gated write of one record.
	CommandTClear                     // Drop a namespace entirely.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTInit:
		return "Init"
	case CommandTUpsert:
		return "Upsert"
	case CommandTClear:
		return "Clear"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command is one entry in the raft log. Only the fields relevant to the
// Type are populated.
type Command struct {
	Type   CommandType
	Prefix string

	// Upsert fields
	Kind      datastore.Kind
	Key       string
	Candidate datastore.Record

	// Init payload
	Data datastore.DataSet
}

// Encode serializes the command with gob for proposing to the shard.
func (c *Command) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode %s command: %w", c.Type, err)
	}
	return buf.Bytes(), nil
}

// Decode restores a command from its gob form.
func (c *Command) Decode(data []byte) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(c); err != nil {
		return fmt.Errorf("failed to decode command: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Queries (linearizable reads)
// --------------------------------------------------------------------------

// QueryType defines the read operations the state machine serves.
type QueryType uint8

const (
	QueryTGet           QueryType = iota // Read one record.
	QueryTGetAll                         // List all records of a kind.
	QueryTIsInitialized                  // Read the initialized flag.
)

func (qt QueryType) String() string {
	switch qt {
	case QueryTGet:
		return "Get"
	case QueryTGetAll:
		return "GetAll"
	case QueryTIsInitialized:
		return "IsInitialized"
	default:
		return fmt.Sprintf("Unknown(%d)", qt)
	}
}

// Query is passed to the state machine's Lookup. Queries stay within the
// process, so no serialization is involved.
type Query struct {
	Type   QueryType
	Prefix string
	Kind   datastore.Kind
	Key    string
}

// GetResult carries the answer to a QueryTGet lookup.
type GetResult struct {
	Record datastore.Record
	Found  bool
}
