// Copyright 2017 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tpcc

import (
	"strings"

	"golang.org/x/exp/rand"
)

var cLastTokens = [...]string{
	"BAR", "OUGHT", "ABLE", "PRI", "PRES",
	"ESE", "ANTI", "CALLY", "ATION", "EING"}

const (
	numItems            = 100000
	numDistrictsPerWH   = 10
	numCustomersPerDist = 3000
	numOrdersPerDist    = 3000
	// The last 900 orders of every district are undelivered after the load.
	numNewOrdersPerDist = 900
	minOrderLines       = 5
	maxOrderLines       = 15

	originalString = "ORIGINAL"
)

// nurandConstants are the C values of the NURand function. See 2.1.6.
type nurandConstants struct {
	// cLoad is the C used for C_LAST when the data was loaded.
	cLoad int
	// cLast is the run-time C for C_LAST. It differs from cLoad by an amount
	// allowed by 2.1.6.1.
	cLast       int
	cCustomerID int
	cItemID     int
}

// newNURandConstants draws the run constants from seed. A negative cLoad
// draws the load constant too.
func newNURandConstants(seed uint64, cLoad int) nurandConstants {
	rng := rand.New(rand.NewSource(seed))
	if cLoad < 0 {
		cLoad = rng.Intn(256)
	}
	c := nurandConstants{
		cLoad:       cLoad,
		cCustomerID: rng.Intn(1024),
		cItemID:     rng.Intn(8192),
	}
	for {
		cLast := rng.Intn(256)
		if validCLastDelta(cLast, cLoad) {
			c.cLast = cLast
			return c
		}
	}
}

// validCLastDelta reports whether cRun may be used at run time for a
// database loaded with cLoad. See 2.1.6.1.
func validCLastDelta(cRun, cLoad int) bool {
	delta := cRun - cLoad
	if delta < 0 {
		delta = -delta
	}
	return delta >= 65 && delta <= 119 && delta != 96 && delta != 112
}

// randGen is the random input generator of a single terminal. It is not safe
// for concurrent use.
type randGen struct {
	*rand.Rand
	c *nurandConstants
}

func newRandGen(seed uint64, c *nurandConstants) *randGen {
	return &randGen{Rand: rand.New(rand.NewSource(seed)), c: c}
}

// uniform returns a number within [min, max] inclusive.
func (g *randGen) uniform(min, max int) int {
	return int(randInt(g.Rand, min, max))
}

// nonUniform implements NURand(A, x, y). See 2.1.6.
func (g *randGen) nonUniform(a, min, max int) int {
	var c int
	switch a {
	case 255:
		c = g.c.cLast
	case 1023:
		c = g.c.cCustomerID
	case 8191:
		c = g.c.cItemID
	}
	return nonUniform(g.Rand, a, c, min, max)
}

func nonUniform(rng *rand.Rand, a, c, min, max int) int {
	return (((int(randInt(rng, 0, a)) | int(randInt(rng, min, max))) + c) % (max - min + 1)) + min
}

// customerID returns a non-uniform random customer ID. See 2.1.6.
func (g *randGen) customerID() int {
	return g.nonUniform(1023, 1, numCustomersPerDist)
}

// itemID returns a non-uniform random item ID. See 2.1.6.
func (g *randGen) itemID() int {
	return g.nonUniform(8191, 1, numItems)
}

// skewedLastName returns a non-uniform random customer last name. See
// 4.3.2.3.
func (g *randGen) skewedLastName() string {
	return lastName(g.nonUniform(255, 0, 999))
}

// amount returns a monetary amount drawn uniformly from [minCents, maxCents]
// cents.
func (g *randGen) amount(minCents, maxCents int) float64 {
	return float64(randInt(g.Rand, minCents, maxCents)) / 100.0
}

// randInt returns a number within [min, max] inclusive.
// See 2.1.4.
func randInt(rng *rand.Rand, min, max int) int64 {
	return int64(rng.Intn(max-min+1) + min)
}

// randTax produces a random tax between [0.0000..0.2000]
// See 2.1.5.
func randTax(rng *rand.Rand) float64 {
	return float64(randInt(rng, 0, 2000)) / float64(10000.0)
}

const maxCLastLength = 3 * 5 // 3 entries from cLastTokens * max len of an entry

// lastName returns a customer last name string generated according to the
// table in 4.3.2.3. Given a number between 0 and 999, each of the three
// syllables is determined by the corresponding digit in the three digit
// representation of the number. For example, the number 371 generates the name
// PRICALLYOUGHT, and the number 40 generates the name BARPRESBAR.
func lastName(n int) string {
	buf := make([]byte, 0, maxCLastLength)
	buf = append(buf, cLastTokens[n/100]...)
	n = n % 100
	buf = append(buf, cLastTokens[n/10]...)
	n = n % 10
	buf = append(buf, cLastTokens[n]...)
	return string(buf)
}

// lastNameNumber is the inverse of lastName.
func lastNameNumber(s string) (int, bool) {
	n := 0
	for digit := 0; digit < 3; digit++ {
		found := false
		for i, tok := range cLastTokens {
			if strings.HasPrefix(s, tok) {
				n = n*10 + i
				s = s[len(tok):]
				found = true
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	return n, s == ""
}

const aCharsAlphabet = `abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890`
const lettersAlphabet = `ABCDEFGHIJKLMNOPQRSTUVWXYZ`
const numbersAlphabet = `1234567890`

func randStringFromAlphabet(rng *rand.Rand, minLen, maxLen int, alphabet string) string {
	size := maxLen
	if maxLen-minLen != 0 {
		size = int(randInt(rng, minLen, maxLen))
	}
	if size == 0 {
		return ""
	}
	b := make([]byte, size)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(b)
}

// randAString generates a random alphanumeric string of length between min
// and max inclusive. See 4.3.2.2.
func randAString(rng *rand.Rand, min, max int) string {
	return randStringFromAlphabet(rng, min, max, aCharsAlphabet)
}

// randNString generates a random numeric string of length between min and
// max inclusive. See 4.3.2.2.
func randNString(rng *rand.Rand, min, max int) string {
	return randStringFromAlphabet(rng, min, max, numbersAlphabet)
}

// randState produces a random US state.
func randState(rng *rand.Rand) string {
	return randStringFromAlphabet(rng, 2, 2, lettersAlphabet)
}

// randOriginalString generates a random a-string[26..50] with 10% chance of
// containing the string "ORIGINAL" somewhere in the middle of the string.
// See 4.3.3.1.
func randOriginalString(rng *rand.Rand) string {
	if rng.Intn(10) == 0 {
		l := int(randInt(rng, 26, 50))
		off := int(randInt(rng, 0, l-8))
		return randAString(rng, off, off) + originalString + randAString(rng, l-off-8, l-off-8)
	}
	return randAString(rng, 26, 50)
}

// randZip produces a random "zip code" - a 4-digit number plus the constant
// "11111". See 4.3.2.7.
func randZip(rng *rand.Rand) string {
	return randNString(rng, 4, 4) + "11111"
}
