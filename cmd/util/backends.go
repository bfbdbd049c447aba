package util

import (
	"fmt"
	"strings"

	"github.com/flagforge/storecheck/lib/datastore/backends/casstore"
	"github.com/flagforge/storecheck/lib/datastore/backends/etcdstore"
	"github.com/flagforge/storecheck/lib/datastore/backends/memstore"
	"github.com/flagforge/storecheck/lib/datastore/backends/raftstore"
	"github.com/flagforge/storecheck/lib/datastore/backends/redistore"
	"github.com/flagforge/storecheck/lib/datastore/backends/sqlstore"
	"github.com/flagforge/storecheck/lib/datastore/conformance"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// --------------------------------------------------------------------------
// Backend capability metadata
// --------------------------------------------------------------------------

// Capability describes one compiled-in backend for the capability matrix.
type Capability struct {
	// Name as accepted by the --backend flag.
	Name string
	// Convention is the calling convention the backend exposes natively.
	Convention string
	// Hook reports whether the backend supports the pre-commit hook, i.e.
	// whether race scenarios run or skip against it.
	Hook bool
	// Storage describes where the records live.
	Storage string
}

// Capabilities lists every backend the binary was compiled with, in the
// order the --backend help text names them.
func Capabilities() []Capability {
	return []Capability{
		{Name: "memory", Convention: "sync + async", Hook: true, Storage: "in-process"},
		{Name: "sqlite", Convention: "sync", Hook: true, Storage: "embedded file"},
		{Name: "redis", Convention: "sync", Hook: true, Storage: "server"},
		{Name: "etcd", Convention: "sync", Hook: true, Storage: "server"},
		{Name: "cassandra", Convention: "sync", Hook: true, Storage: "cluster"},
		{Name: "raft", Convention: "async", Hook: false, Storage: "replicated log"},
	}
}

// --------------------------------------------------------------------------
// Harness
// --------------------------------------------------------------------------

// Harness is one live backend plus the cleanup callbacks the conformance
// suite needs. Obtained from OpenHarness, released with Close.
type Harness struct {
	// Backend is the name the harness was opened as.
	Backend string
	// Target is the address, path or directory the backend connects to.
	Target string

	factory conformance.StoreFactory
	clear   func(prefix string) error
	close   func() error
}

// Conformance returns the suite configuration for this harness.
func (h *Harness) Conformance() conformance.Config {
	return conformance.Config{
		Factory: h.factory,
		Clear:   h.clear,
	}
}

// Close releases the harness' shared resources (admin connections, hubs).
func (h *Harness) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// String returns a formatted configuration block for the harness.
func (h *Harness) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	c := capabilityFor(h.Backend)

	addSection("Backend")
	addField("Name", h.Backend)
	addField("Target", h.Target)
	addField("Convention", c.Convention)
	addField("Pre-Commit Hook", fmt.Sprintf("%t", c.Hook))
	addField("Storage", c.Storage)

	return sb.String()
}

func capabilityFor(name string) Capability {
	for _, c := range Capabilities() {
		if c.Name == name {
			return c
		}
	}
	return Capability{Name: name}
}

// --------------------------------------------------------------------------
// Flags and harness construction
// --------------------------------------------------------------------------

// SetupBackendFlags adds the backend selection flags to a command.
func SetupBackendFlags(cmd *cobra.Command) {
	key := "backend"
	cmd.PersistentFlags().String(key, "memory", WrapString("Backend to run against. One of: memory, sqlite, redis, etcd, cassandra, raft"))

	key = "sqlite-path"
	cmd.PersistentFlags().String(key, "storecheck.db", WrapString("(sqlite) Path of the database file"))

	key = "redis-addr"
	cmd.PersistentFlags().String(key, "localhost:6379", WrapString("(redis) Address of the Redis server"))

	key = "redis-password"
	cmd.PersistentFlags().String(key, "", WrapString("(redis) Password for the Redis server, empty for none"))

	key = "redis-db"
	cmd.PersistentFlags().Int(key, 0, WrapString("(redis) Logical database to use"))

	key = "etcd-endpoints"
	cmd.PersistentFlags().String(key, "localhost:2379", WrapString("(etcd) Comma-separated list of etcd endpoints"))

	key = "cassandra-hosts"
	cmd.PersistentFlags().String(key, "localhost:9042", WrapString("(cassandra) Comma-separated list of cluster hosts"))

	key = "cassandra-keyspace"
	cmd.PersistentFlags().String(key, casstore.DefaultKeyspace, WrapString("(cassandra) Keyspace to keep the records in, created on demand"))

	key = "raft-dir"
	cmd.PersistentFlags().String(key, "data", WrapString("(raft) Directory for the write-ahead log and snapshots"))

	key = "raft-addr"
	cmd.PersistentFlags().String(key, "localhost:63001", WrapString("(raft) Raft address to bind"))
}

// OpenHarness builds a live harness from the bound flags. The caller must
// Close it.
func OpenHarness() (*Harness, error) {
	backend := viper.GetString("backend")

	switch backend {
	case "memory":
		hub := memstore.NewHub()
		return &Harness{
			Backend: backend,
			Target:  "in-process",
			factory: func(prefix string) (any, error) { return hub.Open(prefix), nil },
			clear:   hub.Clear,
		}, nil

	case "sqlite":
		path := viper.GetString("sqlite-path")
		admin, err := sqlstore.Open(path, "admin")
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite backend: %w", err)
		}
		return &Harness{
			Backend: backend,
			Target:  path,
			factory: func(prefix string) (any, error) { return sqlstore.Open(path, prefix) },
			clear:   admin.Wipe,
			close:   admin.Close,
		}, nil

	case "redis":
		opts := redistore.Options{
			Address:  viper.GetString("redis-addr"),
			Password: viper.GetString("redis-password"),
			DB:       viper.GetInt("redis-db"),
		}
		admin, err := redistore.Open(opts, "admin")
		if err != nil {
			return nil, fmt.Errorf("failed to open redis backend: %w", err)
		}
		return &Harness{
			Backend: backend,
			Target:  opts.Address,
			factory: func(prefix string) (any, error) { return redistore.Open(opts, prefix) },
			clear:   admin.Wipe,
			close:   admin.Close,
		}, nil

	case "etcd":
		endpoints := strings.Split(viper.GetString("etcd-endpoints"), ",")
		admin, err := etcdstore.Open(endpoints, "admin")
		if err != nil {
			return nil, fmt.Errorf("failed to open etcd backend: %w", err)
		}
		return &Harness{
			Backend: backend,
			Target:  strings.Join(endpoints, ","),
			factory: func(prefix string) (any, error) { return etcdstore.Open(endpoints, prefix) },
			clear:   admin.Wipe,
			close:   admin.Close,
		}, nil

	case "cassandra":
		opts := casstore.Options{
			Hosts:    strings.Split(viper.GetString("cassandra-hosts"), ","),
			Keyspace: viper.GetString("cassandra-keyspace"),
		}
		admin, err := casstore.Open(opts, "admin")
		if err != nil {
			return nil, fmt.Errorf("failed to open cassandra backend: %w", err)
		}
		return &Harness{
			Backend: backend,
			Target:  strings.Join(opts.Hosts, ","),
			factory: func(prefix string) (any, error) { return casstore.Open(opts, prefix) },
			clear:   admin.Wipe,
			close:   admin.Close,
		}, nil

	case "raft":
		cfg := raftstore.DefaultConfig(viper.GetString("raft-dir"))
		cfg.Address = viper.GetString("raft-addr")
		cfg.LogLevel = viper.GetString("log-level")
		hub, err := raftstore.NewHub(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to start raft backend: %w", err)
		}
		return &Harness{
			Backend: backend,
			Target:  fmt.Sprintf("%s (%s)", cfg.DataDir, cfg.Address),
			factory: func(prefix string) (any, error) { return hub.Open(prefix) },
			clear:   hub.Clear,
			close:   hub.Close,
		}, nil

	default:
		return nil, fmt.Errorf("invalid backend %s (expected one of: memory, sqlite, redis, etcd, cassandra, raft)", backend)
	}
}
