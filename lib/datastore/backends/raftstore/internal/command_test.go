package internal

import (
	"testing"

	"github.com/flagforge/storecheck/lib/datastore"
)

// TestCommandEncodeDecode tests the gob roundtrip of all command shapes.
func TestCommandEncodeDecode(t *testing.T) {
	tests := []struct {
		name    string
		command Command
	}{
		{
			name: "Upsert with live candidate",
			command: Command{
				Type:      CommandTUpsert,
				Prefix:    "flags",
				Kind:      datastore.KindFeatures,
				Key:       "flag-a",
				Candidate: datastore.NewRecord("flag-a", 7, []byte("payload")),
			},
		},
		{
			name: "Upsert with tombstone candidate",
			command: Command{
				Type:      CommandTUpsert,
				Prefix:    "flags",
				Kind:      datastore.KindSegments,
				Key:       "seg-a",
				Candidate: datastore.NewTombstone("seg-a", 9),
			},
		},
		{
			name: "Init with dataset",
			command: Command{
				Type:   CommandTInit,
				Prefix: "flags",
				Data: datastore.NewDataSet().
					Add(datastore.KindFeatures, datastore.NewRecord("flag-a", 1, []byte("a"))).
					Add(datastore.KindSegments).
					Build(),
			},
		},
		{
			name: "Clear",
			command: Command{
				Type:   CommandTClear,
				Prefix: "flags",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.command.Encode()
			if err != nil {
				t.Fatalf("Encode() failed: %v", err)
			}

			var decoded Command
			if err := decoded.Decode(data); err != nil {
				t.Fatalf("Decode() failed: %v", err)
			}

			if decoded.Type != tt.command.Type || decoded.Prefix != tt.command.Prefix {
				t.Errorf("Expected type/prefix %s/%s, got %s/%s",
					tt.command.Type, tt.command.Prefix, decoded.Type, decoded.Prefix)
			}
			if decoded.Kind != tt.command.Kind || decoded.Key != tt.command.Key {
				t.Errorf("Expected kind/key %s/%s, got %s/%s",
					tt.command.Kind, tt.command.Key, decoded.Kind, decoded.Key)
			}
			if !decoded.Candidate.Equal(tt.command.Candidate) {
				t.Errorf("Expected candidate %+v, got %+v", tt.command.Candidate, decoded.Candidate)
			}
			if len(decoded.Data) != len(tt.command.Data) {
				t.Errorf("Expected %d kinds in dataset, got %d", len(tt.command.Data), len(decoded.Data))
			}
			for kind, records := range tt.command.Data {
				for key, rec := range records {
					if !decoded.Data[kind][key].Equal(rec) {
						t.Errorf("Expected record %s/%s to roundtrip, got %+v", kind, key, decoded.Data[kind][key])
					}
				}
			}
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	var cmd Command
	if err := cmd.Decode([]byte("not gob data")); err == nil {
		t.Errorf("Expected decoding garbage to fail")
	}
}
