// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/rand"
)

var warehouseRangesRE = regexp.MustCompile(`^\d+(-\d+)?(,\d+(-\d+)?)*$`)

// warehouseSet is the sorted, de-duplicated list of warehouses a run draws
// home warehouses from.
type warehouseSet struct {
	ids []int
}

// parseWarehouseRanges parses a list like "1,3-7,10-20". An empty string
// selects every warehouse in [1,total].
func parseWarehouseRanges(s string, total int) (warehouseSet, error) {
	if total < 1 {
		return warehouseSet{}, errors.Errorf("warehouse count must be positive, got %d", total)
	}
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		ids := make([]int, total)
		for i := range ids {
			ids[i] = i + 1
		}
		return warehouseSet{ids: ids}, nil
	}
	if !warehouseRangesRE.MatchString(s) {
		return warehouseSet{}, errors.Errorf("invalid warehouse ranges %q", s)
	}

	present := make([]bool, total+1)
	for _, part := range strings.Split(s, ",") {
		lo, hi := part, part
		if i := strings.IndexByte(part, '-'); i >= 0 {
			lo, hi = part[:i], part[i+1:]
		}
		from, err := strconv.Atoi(lo)
		if err != nil {
			return warehouseSet{}, errors.Wrapf(err, "invalid warehouse range %q", part)
		}
		to, err := strconv.Atoi(hi)
		if err != nil {
			return warehouseSet{}, errors.Wrapf(err, "invalid warehouse range %q", part)
		}
		if from > to {
			return warehouseSet{}, errors.Errorf("warehouse range %q is reversed", part)
		}
		if from < 1 || to > total {
			return warehouseSet{}, errors.Errorf(
				"warehouse range %q is outside of [1, %d]", part, total)
		}
		for w := from; w <= to; w++ {
			present[w] = true
		}
	}
	var ids []int
	for w := 1; w <= total; w++ {
		if present[w] {
			ids = append(ids, w)
		}
	}
	return warehouseSet{ids: ids}, nil
}

func (s warehouseSet) len() int {
	return len(s.ids)
}

// random returns a uniformly chosen member of the set.
func (s warehouseSet) random(rng *rand.Rand) int {
	return s.ids[rng.Intn(len(s.ids))]
}

// forTerminal returns the fixed home warehouse of the i-th terminal
// (0-indexed); terminals are spread round-robin over the set.
func (s warehouseSet) forTerminal(i int) int {
	return s.ids[i%len(s.ids)]
}
