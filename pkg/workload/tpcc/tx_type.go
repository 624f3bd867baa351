// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/rand"
)

// txType is one of the five TPC-C business transactions.
type txType int

const (
	newOrderType txType = iota
	paymentType
	orderStatusType
	deliveryType
	stockLevelType

	numTxTypes
)

var txTypes = [numTxTypes]struct {
	// name is used in flags, histograms and metrics.
	name string
	// resultName is the name written to the result file.
	resultName string
	// defaultWeight is the share of the mix required by 5.2.3.
	defaultWeight int
}{
	newOrderType:    {"newOrder", "NEW_ORDER", 45},
	paymentType:     {"payment", "PAYMENT", 43},
	orderStatusType: {"orderStatus", "ORDER_STATUS", 4},
	deliveryType:    {"delivery", "DELIVERY", 4},
	stockLevelType:  {"stockLevel", "STOCK_LEVEL", 4},
}

func (t txType) String() string {
	if t < 0 || t >= numTxTypes {
		return "txType(" + strconv.Itoa(int(t)) + ")"
	}
	return txTypes[t].name
}

func (t txType) resultName() string {
	return txTypes[t].resultName
}

// parseTxType maps a flag or result-file name to a txType.
func parseTxType(s string) (txType, error) {
	for t := txType(0); t < numTxTypes; t++ {
		if strings.EqualFold(s, txTypes[t].name) || strings.EqualFold(s, txTypes[t].resultName) {
			return t, nil
		}
	}
	return 0, errors.Errorf("unknown transaction type %q", s)
}

// Mix is the relative weight of each transaction type.
type Mix [numTxTypes]int

// DefaultMix is the 45/43/4/4/4 mix of the benchmark.
func DefaultMix() Mix {
	var m Mix
	for t := range m {
		m[t] = txTypes[t].defaultWeight
	}
	return m
}

// ParseMix parses a comma separated list of type=weight pairs, for example
// "newOrder=45,payment=43,orderStatus=4,delivery=4,stockLevel=4". Types that
// are not mentioned get a weight of zero.
func ParseMix(s string) (Mix, error) {
	var m Mix
	var seen [numTxTypes]bool
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, weightStr, ok := strings.Cut(part, "=")
		if !ok {
			return Mix{}, errors.Errorf("invalid mix entry %q, expected type=weight", part)
		}
		t, err := parseTxType(strings.TrimSpace(name))
		if err != nil {
			return Mix{}, err
		}
		if seen[t] {
			return Mix{}, errors.Errorf("transaction type %s listed twice", t)
		}
		seen[t] = true
		weight, err := strconv.Atoi(strings.TrimSpace(weightStr))
		if err != nil {
			return Mix{}, errors.Wrapf(err, "invalid weight for %s", t)
		}
		if weight < 0 {
			return Mix{}, errors.Errorf("negative weight %d for %s", weight, t)
		}
		m[t] = weight
	}
	if m.total() == 0 {
		return Mix{}, errors.Errorf("mix %q has no positive weight", s)
	}
	return m, nil
}

func (m Mix) total() int {
	var total int
	for _, w := range m {
		total += w
	}
	return total
}

// String renders the mix in the format accepted by ParseMix.
func (m Mix) String() string {
	var b strings.Builder
	for t, w := range m {
		if t > 0 {
			b.WriteByte(',')
		}
		b.WriteString(txType(t).String())
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(w))
	}
	return b.String()
}

// mixSampler draws transaction types in proportion to a Mix by searching
// the cumulative weights for a uniform draw.
type mixSampler struct {
	cumulative [numTxTypes]int
}

func newMixSampler(m Mix) mixSampler {
	var s mixSampler
	sum := 0
	for t, w := range m {
		sum += w
		s.cumulative[t] = sum
	}
	return s
}

func (s mixSampler) sample(rng *rand.Rand) txType {
	r := rng.Intn(s.cumulative[numTxTypes-1])
	return txType(sort.SearchInts(s.cumulative[:], r+1))
}
