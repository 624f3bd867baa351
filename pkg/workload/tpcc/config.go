// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config is the static configuration of a run. It is populated from flags
// and an optional config file, checked once by Validate and then shared
// read-only by every terminal.
type Config struct {
	// URLs are the connection strings terminals are spread over.
	URLs []string `yaml:"urls" toml:"urls"`

	Warehouses int `yaml:"warehouses" toml:"warehouses"`
	// WarehouseRanges restricts home warehouses to a list like "1,3-7". Empty
	// means all warehouses.
	WarehouseRanges string        `yaml:"warehouse_ranges" toml:"warehouse_ranges"`
	Terminals       int           `yaml:"terminals" toml:"terminals"`
	Duration        time.Duration `yaml:"duration" toml:"duration"`
	// WarehouseFixed pins each terminal to one home warehouse for the whole
	// session instead of drawing one per transaction.
	WarehouseFixed bool          `yaml:"warehouse_fixed" toml:"warehouse_fixed"`
	ReportInterval time.Duration `yaml:"report_interval" toml:"report_interval"`
	Mix            Mix           `yaml:"mix" toml:"mix"`

	Sharding   ShardingPolicy `yaml:"sharding" toml:"sharding"`
	ShardCount int            `yaml:"shard_count" toml:"shard_count"`
	// RouteItemByHint adds the home warehouse to item lookups so that a
	// sharding proxy can route them.
	RouteItemByHint bool `yaml:"route_item_by_hint" toml:"route_item_by_hint"`
	// MultiValuesInsert inserts all order lines of an order with one
	// multi-row INSERT instead of a batch of single-row ones.
	MultiValuesInsert bool   `yaml:"multi_values_insert" toml:"multi_values_insert"`
	Isolation         string `yaml:"isolation" toml:"isolation"`

	// CLoad is the C_LAST constant used when the data was loaded; negative
	// means derive it from Seed.
	CLoad int    `yaml:"c_load" toml:"c_load"`
	Seed  uint64 `yaml:"seed" toml:"seed"`
	// MaxRate caps the number of transactions per second over all terminals;
	// zero means unlimited.
	MaxRate float64 `yaml:"max_rate" toml:"max_rate"`

	ResultFile     string `yaml:"result_file" toml:"result_file"`
	HistogramsFile string `yaml:"histograms" toml:"histograms"`
	PrometheusPort int    `yaml:"prometheus_port" toml:"prometheus_port"`
	Audit          bool   `yaml:"audit" toml:"audit"`

	// Derived by Validate.
	warehouses warehouseSet
	router     router
	sampler    mixSampler
	txOpts     pgx.TxOptions
	nurand     nurandConstants
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Warehouses:     16,
		Terminals:      8,
		Duration:       5 * time.Minute,
		ReportInterval: 10 * time.Second,
		Mix:            DefaultMix(),
		Sharding:       ShardingMod,
		ShardCount:     1,
		Isolation:      "read-committed",
		CLoad:          -1,
	}
}

// Flags returns a FlagSet bound to the fields of c. The current field values
// are used as flag defaults.
func (c *Config) Flags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("tpcc", pflag.ContinueOnError)
	flags.IntVar(&c.Warehouses, "warehouses", c.Warehouses, "Number of warehouses in the database.")
	flags.StringVar(&c.WarehouseRanges, "warehouse-ranges", c.WarehouseRanges,
		`Home warehouses to run against, e.g. "1,3-7,10-20". Empty means all of them.`)
	flags.IntVar(&c.Terminals, "terminals", c.Terminals, "Number of concurrent terminals.")
	flags.DurationVar(&c.Duration, "duration", c.Duration, "How long the measurement runs.")
	flags.BoolVar(&c.WarehouseFixed, "warehouse-fixed", c.WarehouseFixed,
		"Pin every terminal to one home warehouse instead of drawing one per transaction.")
	flags.DurationVar(&c.ReportInterval, "report-interval", c.ReportInterval,
		"Interval between throughput reports.")
	flags.Var(&c.Mix, "mix", "Weights of the transaction types.")
	flags.Var(&c.Sharding, "sharding", "How warehouses are distributed across shards.")
	flags.IntVar(&c.ShardCount, "shard-count", c.ShardCount, "Number of warehouse shards.")
	flags.BoolVar(&c.RouteItemByHint, "route-item-by-hint", c.RouteItemByHint,
		"Look items up together with the home warehouse so they can be routed by it.")
	flags.BoolVar(&c.MultiValuesInsert, "multi-values-insert", c.MultiValuesInsert,
		"Insert the order lines of a New-Order with a single multi-row INSERT.")
	flags.StringVar(&c.Isolation, "isolation", c.Isolation,
		"Transaction isolation level: read-committed, repeatable-read or serializable.")
	flags.IntVar(&c.CLoad, "c-load", c.CLoad,
		"C_LAST constant used to load the data; negative derives it from the seed.")
	flags.Uint64Var(&c.Seed, "seed", c.Seed, "Random seed; zero picks one from the clock.")
	flags.Float64Var(&c.MaxRate, "max-rate", c.MaxRate,
		"Maximum number of transactions per second over all terminals (0 = unlimited).")
	flags.StringVar(&c.ResultFile, "result-file", c.ResultFile,
		"CSV file receiving one line per transaction (default: tpcc_result_<time>.csv in the temp dir).")
	flags.StringVar(&c.HistogramsFile, "histograms", c.HistogramsFile,
		"File to write per-interval histogram snapshots to.")
	flags.IntVar(&c.PrometheusPort, "prometheus-port", c.PrometheusPort,
		"Port to serve Prometheus metrics on (0 disables).")
	flags.BoolVar(&c.Audit, "audit", c.Audit, "Run the TPC-C 9.2 audit checks after the run.")
	return flags
}

// Validate checks the configuration and computes the values derived from it.
// It must be called once, before the Config is shared.
func (c *Config) Validate() error {
	if c.Warehouses < 1 {
		return errors.Errorf("--warehouses must be positive, got %d", c.Warehouses)
	}
	if c.Terminals < 1 {
		return errors.Errorf("--terminals must be positive, got %d", c.Terminals)
	}
	if c.Duration <= 0 {
		return errors.Errorf("--duration must be positive, got %s", c.Duration)
	}
	if c.ReportInterval <= 0 {
		return errors.Errorf("--report-interval must be positive, got %s", c.ReportInterval)
	}
	if c.Mix.total() == 0 {
		return errors.Errorf("--mix must have at least one positive weight")
	}
	if c.CLoad > 255 {
		return errors.Errorf("--c-load must be in [0, 255], got %d", c.CLoad)
	}
	if c.MaxRate < 0 {
		return errors.Errorf("--max-rate must not be negative, got %f", c.MaxRate)
	}
	var err error
	if c.warehouses, err = parseWarehouseRanges(c.WarehouseRanges, c.Warehouses); err != nil {
		return err
	}
	if c.router, err = newRouter(c.Sharding, c.ShardCount, c.Warehouses); err != nil {
		return err
	}
	if c.txOpts, err = parseIsolation(c.Isolation); err != nil {
		return err
	}
	if c.Seed == 0 {
		c.Seed = uint64(time.Now().UnixNano())
	}
	c.sampler = newMixSampler(c.Mix)
	c.nurand = newNURandConstants(c.Seed, c.CLoad)
	return nil
}

func parseIsolation(s string) (pgx.TxOptions, error) {
	switch strings.ReplaceAll(strings.ToLower(s), " ", "-") {
	case "read-committed", "":
		return pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, nil
	case "repeatable-read":
		return pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, nil
	case "serializable":
		return pgx.TxOptions{IsoLevel: pgx.Serializable}, nil
	}
	return pgx.TxOptions{}, errors.Errorf("unknown isolation level %q", s)
}

// ApplyConfigFile loads a YAML or TOML file (chosen by extension) into c.
// Keys absent from the file keep their current value, and flags that were
// explicitly set on fs win over the file.
func ApplyConfigFile(c *Config, fs *pflag.FlagSet, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config file")
	}

	changed := make(map[string]string)
	fs.Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		return errors.Errorf("unsupported config file extension %q, expected .yaml, .yml or .toml", ext)
	}
	if err != nil {
		return errors.Wrapf(err, "parsing config file %s", path)
	}

	for name, value := range changed {
		if err := fs.Set(name, value); err != nil {
			return errors.Wrapf(err, "re-applying --%s", name)
		}
	}
	return nil
}

// Set implements pflag.Value.
func (m *Mix) Set(s string) error {
	parsed, err := ParseMix(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Type implements pflag.Value.
func (m *Mix) Type() string {
	return "mix"
}

// UnmarshalText lets config files spell the mix like the flag does.
func (m *Mix) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}
