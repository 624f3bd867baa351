// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestParseMix(t *testing.T) {
	m, err := ParseMix("newOrder=45,payment=43,orderStatus=4,delivery=4,stockLevel=4")
	require.NoError(t, err)
	require.Equal(t, DefaultMix(), m)
	require.Equal(t, "newOrder=45,payment=43,orderStatus=4,delivery=4,stockLevel=4", m.String())

	m, err = ParseMix("NEW_ORDER=1, stocklevel = 3")
	require.NoError(t, err)
	require.Equal(t, Mix{newOrderType: 1, stockLevelType: 3}, m)

	for _, bad := range []string{
		"",
		"newOrder",
		"newOrder=x",
		"newOrder=-1",
		"newOrder=0",
		"refund=3",
		"payment=1,payment=2",
	} {
		_, err := ParseMix(bad)
		require.Error(t, err, bad)
	}
}

func TestParseTxType(t *testing.T) {
	for typ := txType(0); typ < numTxTypes; typ++ {
		got, err := parseTxType(typ.String())
		require.NoError(t, err)
		require.Equal(t, typ, got)
		got, err = parseTxType(typ.resultName())
		require.NoError(t, err)
		require.Equal(t, typ, got)
	}
	_, err := parseTxType("audit")
	require.Error(t, err)
	require.Equal(t, "txType(7)", txType(7).String())
}

func TestMixSampler(t *testing.T) {
	s := newMixSampler(DefaultMix())
	rng := rand.New(rand.NewSource(1))

	const n = 100000
	var counts [numTxTypes]int
	for i := 0; i < n; i++ {
		counts[s.sample(rng)]++
	}
	for typ, c := range counts {
		require.InDelta(t, float64(DefaultMix()[typ])/100, float64(c)/n, 0.01, txType(typ).String())
	}

	// Types with no weight are never drawn.
	only := newMixSampler(Mix{paymentType: 2})
	for i := 0; i < 100; i++ {
		require.Equal(t, paymentType, only.sample(rng))
	}

	// Large weights cost no more than small ones.
	big := newMixSampler(Mix{newOrderType: 45000000, deliveryType: 5000000})
	counts = [numTxTypes]int{}
	for i := 0; i < n; i++ {
		counts[big.sample(rng)]++
	}
	require.InDelta(t, 0.9, float64(counts[newOrderType])/n, 0.01)
	require.InDelta(t, 0.1, float64(counts[deliveryType])/n, 0.01)
	require.Zero(t, counts[paymentType]+counts[orderStatusType]+counts[stockLevelType])
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42
	cfg.WarehouseRanges = "2-3"
	cfg.Isolation = "serializable"
	require.NoError(t, cfg.Validate())
	require.Equal(t, []int{2, 3}, cfg.warehouses.ids)
	require.Equal(t, pgx.Serializable, cfg.txOpts.IsoLevel)
	require.Equal(t, uint64(42), cfg.Seed)
	require.True(t, validCLastDelta(cfg.nurand.cLast, cfg.nurand.cLoad))

	// A zero seed is replaced.
	cfg = DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.NotZero(t, cfg.Seed)

	testCases := []struct {
		desc   string
		modify func(*Config)
	}{
		{"no warehouses", func(c *Config) { c.Warehouses = 0 }},
		{"no terminals", func(c *Config) { c.Terminals = 0 }},
		{"no duration", func(c *Config) { c.Duration = 0 }},
		{"no report interval", func(c *Config) { c.ReportInterval = 0 }},
		{"empty mix", func(c *Config) { c.Mix = Mix{} }},
		{"c-load too large", func(c *Config) { c.CLoad = 256 }},
		{"negative rate", func(c *Config) { c.MaxRate = -1 }},
		{"bad ranges", func(c *Config) { c.WarehouseRanges = "1-20" }},
		{"no shards", func(c *Config) { c.ShardCount = 0 }},
		{"bad isolation", func(c *Config) { c.Isolation = "snapshot" }},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfigFlags(t *testing.T) {
	cfg := DefaultConfig()
	fs := cfg.Flags()
	require.NoError(t, fs.Parse([]string{
		"--warehouses=4", "--terminals=2", "--duration=30s", "--mix=payment=1",
		"--sharding=range", "--shard-count=2", "--warehouse-fixed",
	}))
	require.Equal(t, 4, cfg.Warehouses)
	require.Equal(t, 2, cfg.Terminals)
	require.Equal(t, 30*time.Second, cfg.Duration)
	require.Equal(t, Mix{paymentType: 1}, cfg.Mix)
	require.Equal(t, ShardingRange, cfg.Sharding)
	require.Equal(t, 2, cfg.ShardCount)
	require.True(t, cfg.WarehouseFixed)
	require.NoError(t, cfg.Validate())
}

func TestApplyConfigFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "tpcc.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
warehouses: 32
terminals: 64
duration: 2m
mix: newOrder=1,payment=1
sharding: none
urls:
  - postgresql://a/tpcc
  - postgresql://b/tpcc
`), 0644))

	cfg := DefaultConfig()
	fs := cfg.Flags()
	require.NoError(t, fs.Parse([]string{"--terminals=3"}))
	require.NoError(t, ApplyConfigFile(&cfg, fs, yamlPath))
	require.Equal(t, 32, cfg.Warehouses)
	// The flag wins over the file.
	require.Equal(t, 3, cfg.Terminals)
	require.Equal(t, 2*time.Minute, cfg.Duration)
	require.Equal(t, Mix{newOrderType: 1, paymentType: 1}, cfg.Mix)
	require.Equal(t, ShardingNone, cfg.Sharding)
	require.Equal(t, []string{"postgresql://a/tpcc", "postgresql://b/tpcc"}, cfg.URLs)
	// Keys missing from the file keep their value.
	require.Equal(t, 10*time.Second, cfg.ReportInterval)

	tomlPath := filepath.Join(dir, "tpcc.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
warehouses = 8
isolation = "serializable"
sharding = "range"
shard_count = 2
`), 0644))
	cfg = DefaultConfig()
	require.NoError(t, ApplyConfigFile(&cfg, cfg.Flags(), tomlPath))
	require.Equal(t, 8, cfg.Warehouses)
	require.Equal(t, "serializable", cfg.Isolation)
	require.Equal(t, ShardingRange, cfg.Sharding)
	require.Equal(t, 2, cfg.ShardCount)

	require.Error(t, ApplyConfigFile(&cfg, cfg.Flags(), filepath.Join(dir, "tpcc.json")))
	require.Error(t, ApplyConfigFile(&cfg, cfg.Flags(), filepath.Join(dir, "missing.yaml")))
}
