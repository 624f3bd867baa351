// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// ShardingPolicy describes how warehouses are distributed across the shards
// of the system under test.
type ShardingPolicy int

const (
	// ShardingNone places no constraint on remote warehouses.
	ShardingNone ShardingPolicy = iota
	// ShardingMod groups warehouses whose ids are congruent modulo the shard
	// count.
	ShardingMod
	// ShardingRange groups warehouses in contiguous ranges of ids.
	ShardingRange
)

func (p ShardingPolicy) String() string {
	switch p {
	case ShardingNone:
		return "none"
	case ShardingMod:
		return "mod"
	case ShardingRange:
		return "range"
	}
	return "unknown"
}

// Set implements pflag.Value.
func (p *ShardingPolicy) Set(s string) error {
	switch strings.ToLower(s) {
	case "none":
		*p = ShardingNone
	case "mod":
		*p = ShardingMod
	case "range":
		*p = ShardingRange
	default:
		return errors.Errorf("unknown sharding policy %q, expected none, mod or range", s)
	}
	return nil
}

// Type implements pflag.Value.
func (p *ShardingPolicy) Type() string {
	return "none|mod|range"
}

// UnmarshalText lets config files name the policy.
func (p *ShardingPolicy) UnmarshalText(text []byte) error {
	return p.Set(string(text))
}

// router keeps randomly chosen remote warehouses on the same shard as the
// home warehouse.
type router struct {
	policy ShardingPolicy
	shards int
	total  int
	// rangeSize is the size of every range but the last one, which also
	// holds the remainder of total/shards.
	rangeSize int
}

func newRouter(policy ShardingPolicy, shards, total int) (router, error) {
	if total < 1 {
		return router{}, errors.Errorf("warehouse count must be positive, got %d", total)
	}
	if shards < 1 {
		return router{}, errors.Errorf("shard count must be positive, got %d", shards)
	}
	r := router{policy: policy, shards: shards, total: total}
	switch policy {
	case ShardingNone, ShardingMod:
	case ShardingRange:
		if shards > total {
			return router{}, errors.Errorf(
				"range sharding needs at least one warehouse per shard, got %d shards for %d warehouses",
				shards, total)
		}
		r.rangeSize = total / shards
	default:
		return router{}, errors.Errorf("unknown sharding policy %d", policy)
	}
	return r, nil
}

// route maps candidate to a warehouse on the same shard as home. Both
// arguments must be in [1,total]; so is the result.
func (r router) route(home, candidate int) int {
	var w int
	switch r.policy {
	case ShardingMod:
		w = r.routeMod(home, candidate)
	case ShardingRange:
		w = r.routeRange(home, candidate)
	default:
		w = candidate
	}
	if w < 1 || w > r.total {
		panic(errors.AssertionFailedf(
			"%s routing of %d (home %d) produced warehouse %d outside of [1, %d]",
			r.policy, candidate, home, w, r.total))
	}
	return w
}

func (r router) routeMod(home, candidate int) int {
	diff := candidate - home
	if diff < 0 {
		diff = -diff
	}
	sub := diff % r.shards
	if sub == 0 {
		return candidate
	}
	// Move toward home by the residue: candidate-sub when candidate > home,
	// candidate+sub otherwise. Both keep the value between candidate and home.
	if candidate < home {
		sub = -sub
	}
	if w := candidate - sub; w > 0 {
		return w
	}
	return candidate + r.shards - sub
}

func (r router) rangeOf(w int) int {
	return min((w-1)/r.rangeSize, r.shards-1)
}

func (r router) routeRange(home, candidate int) int {
	homeRange, candRange := r.rangeOf(home), r.rangeOf(candidate)
	if homeRange == candRange {
		return candidate
	}
	offset := candidate - 1 - candRange*r.rangeSize
	start := homeRange * r.rangeSize
	size := r.rangeSize
	if homeRange == r.shards-1 {
		size = r.total - start
	}
	return start + offset%size + 1
}

// maxRemoteAttempts bounds the redraws of a remote warehouse. A shard may
// hold nothing but the home warehouse, in which case home is used.
const maxRemoteAttempts = 16

// remote draws a warehouse other than home on home's shard. It returns home
// if there is a single warehouse or no other one could be found.
func (r router) remote(rng *randGen, home int) int {
	if r.total == 1 {
		return home
	}
	for i := 0; i < maxRemoteAttempts; i++ {
		if w := r.route(home, rng.uniform(1, r.total)); w != home {
			return w
		}
	}
	return home
}
