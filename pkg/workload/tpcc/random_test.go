// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestLastName(t *testing.T) {
	require.Equal(t, "PRICALLYOUGHT", lastName(371))
	require.Equal(t, "BARPRESBAR", lastName(40))
	require.Equal(t, "BARBARBAR", lastName(0))
	require.Equal(t, "EINGEINGEING", lastName(999))

	seen := make(map[string]int, 1000)
	for n := 0; n <= 999; n++ {
		name := lastName(n)
		require.LessOrEqual(t, len(name), maxCLastLength)
		prev, dup := seen[name]
		require.False(t, dup, "%d and %d both map to %s", prev, n, name)
		seen[name] = n

		back, ok := lastNameNumber(name)
		require.True(t, ok, name)
		require.Equal(t, n, back)
	}

	for _, s := range []string{"", "BAR", "BARBAR", "BARBARBARX", "FOOBARBAR"} {
		_, ok := lastNameNumber(s)
		require.False(t, ok, s)
	}
}

func TestNURandConstants(t *testing.T) {
	for seed := uint64(1); seed <= 200; seed++ {
		c := newNURandConstants(seed, -1)
		require.True(t, c.cLoad >= 0 && c.cLoad <= 255)
		require.True(t, validCLastDelta(c.cLast, c.cLoad),
			"seed %d: cLast %d cLoad %d", seed, c.cLast, c.cLoad)
		require.True(t, c.cCustomerID >= 0 && c.cCustomerID <= 1023)
		require.True(t, c.cItemID >= 0 && c.cItemID <= 8191)
	}

	// An explicit load constant is kept.
	c := newNURandConstants(7, 100)
	require.Equal(t, 100, c.cLoad)
	require.True(t, validCLastDelta(c.cLast, 100))

	require.False(t, validCLastDelta(100, 100))
	require.False(t, validCLastDelta(196, 100)) // delta 96
	require.False(t, validCLastDelta(212, 100)) // delta 112
	require.True(t, validCLastDelta(165, 100))
	require.True(t, validCLastDelta(0, 119))
	require.False(t, validCLastDelta(0, 120))
}

func TestRandGenRanges(t *testing.T) {
	c := newNURandConstants(1, -1)
	g := newRandGen(1, &c)
	for i := 0; i < 100000; i++ {
		u := g.uniform(5, 15)
		require.True(t, u >= 5 && u <= 15, u)

		cID := g.customerID()
		require.True(t, cID >= 1 && cID <= numCustomersPerDist, cID)

		iID := g.itemID()
		require.True(t, iID >= 1 && iID <= numItems, iID)

		amount := g.amount(100, 500000)
		require.True(t, amount >= 1 && amount <= 5000, amount)
	}
	// uniform reaches both bounds.
	var lo, hi bool
	for i := 0; i < 1000 && !(lo && hi); i++ {
		switch g.uniform(1, 3) {
		case 1:
			lo = true
		case 3:
			hi = true
		}
	}
	require.True(t, lo && hi)

	_, ok := lastNameNumber(g.skewedLastName())
	require.True(t, ok)
}

func TestRandStrings(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 1000; i++ {
		s := randAString(rng, 8, 16)
		require.True(t, len(s) >= 8 && len(s) <= 16, s)

		n := randNString(rng, 16, 16)
		require.Len(t, n, 16)
		require.Equal(t, "", strings.Trim(n, numbersAlphabet))

		require.Len(t, randState(rng), 2)

		zip := randZip(rng)
		require.Len(t, zip, 9)
		require.True(t, strings.HasSuffix(zip, "11111"))

		tax := randTax(rng)
		require.True(t, tax >= 0 && tax <= 0.2, tax)
	}

	const n = 10000
	original := 0
	for i := 0; i < n; i++ {
		s := randOriginalString(rng)
		require.True(t, len(s) >= 26 && len(s) <= 50, s)
		if strings.Contains(s, originalString) {
			original++
		}
	}
	// 10% of the strings contain ORIGINAL.
	require.InDelta(t, 0.1, float64(original)/n, 0.02)
}
