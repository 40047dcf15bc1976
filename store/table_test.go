package store

import (
	"fmt"
	"math/rand"
	"net/netip"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/*
 ******************************************************************
 Test the trie-backed table against a basic brute force table.
 ******************************************************************
*/

// bruteTable is a linear scan implementation of the table lookups. Its
// correctness is easy to guarantee, so it serves as the ground truth when
// running randomized tests against the trie.
type bruteTable struct {
	routes map[netip.Prefix]map[PathID]RouteAttrs
}

func newBruteTable() *bruteTable {
	return &bruteTable{routes: make(map[netip.Prefix]map[PathID]RouteAttrs)}
}

func (b *bruteTable) update(pfx netip.Prefix, pathID PathID, attrs RouteAttrs) {
	pfx = canonical(pfx)
	if b.routes[pfx] == nil {
		b.routes[pfx] = make(map[PathID]RouteAttrs)
	}
	b.routes[pfx][pathID] = attrs
}

func (b *bruteTable) withdraw(pfx netip.Prefix, pathID PathID) {
	pfx = canonical(pfx)
	delete(b.routes[pfx], pathID)
	if len(b.routes[pfx]) == 0 {
		delete(b.routes, pfx)
	}
}

func (b *bruteTable) get(mode MatchMode, query netip.Prefix) []routeEntry {
	query = canonical(query)
	var match func(stored netip.Prefix) bool
	switch mode {
	case MatchExact:
		match = func(stored netip.Prefix) bool { return stored == query }
	case MatchOrLonger:
		match = func(stored netip.Prefix) bool {
			return stored.Addr().Is4() == query.Addr().Is4() && query.Contains(stored.Addr()) &&
				query.Bits() <= stored.Bits()
		}
	case MatchContains, MatchMostSpecific:
		match = func(stored netip.Prefix) bool {
			return stored.Addr().Is4() == query.Addr().Is4() && stored.Contains(query.Addr()) &&
				stored.Bits() <= query.Bits()
		}
	}
	var results []routeEntry
	for stored, paths := range b.routes {
		if !match(stored) {
			continue
		}
		for pathID, attrs := range paths {
			results = append(results, routeEntry{Net: stored, PathID: pathID, Attrs: attrs})
		}
	}
	if mode == MatchMostSpecific {
		longest := -1
		for _, entry := range results {
			if entry.Net.Bits() > longest {
				longest = entry.Net.Bits()
			}
		}
		var filtered []routeEntry
		for _, entry := range results {
			if entry.Net.Bits() == longest {
				filtered = append(filtered, entry)
			}
		}
		results = filtered
	}
	return results
}

func sortEntries(entries []routeEntry) []routeEntry {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Net != entries[j].Net {
			return entries[i].Net.String() < entries[j].Net.String()
		}
		return entries[i].PathID < entries[j].PathID
	})
	return entries
}

func randPrefixGen(r *rand.Rand) func() netip.Prefix {
	return func() netip.Prefix {
		// A deliberately small address pool so that random networks
		// overlap frequently.
		addr := netip.AddrFrom4([4]byte{10, byte(r.Intn(4)), byte(r.Intn(8)), byte(r.Intn(4)) * 64})
		bits := 8 + r.Intn(21)
		return netip.PrefixFrom(addr, bits).Masked()
	}
}

func TestTableAgainstBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	gen := randPrefixGen(r)

	tab := newTable()
	brute := newBruteTable()

	type inserted struct {
		pfx    netip.Prefix
		pathID PathID
	}
	var all []inserted
	for i := 0; i < 500; i++ {
		pfx := gen()
		pathID := PathID(r.Intn(3))
		attrs := RouteAttrs{ASPath: []uint32{uint32(i)}}
		require.NoError(t, tab.update(pfx, pathID, attrs))
		brute.update(pfx, pathID, attrs)
		all = append(all, inserted{pfx: pfx, pathID: pathID})
	}

	modes := []MatchMode{MatchMostSpecific, MatchExact, MatchOrLonger, MatchContains}
	check := func() {
		for i := 0; i < 300; i++ {
			query := gen()
			for _, mode := range modes {
				expected := brute.get(mode, query)
				actual, err := tab.get(mode, query)
				assert.NoError(t, err)
				assert.Equal(t, sortEntries(expected), sortEntries(actual),
					"mode %s query %s", mode, query)
			}
		}
	}
	check()

	// Withdraw a random half and compare again.
	r.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	for _, ins := range all[:len(all)/2] {
		require.NoError(t, tab.withdraw(ins.pfx, ins.pathID))
		brute.withdraw(ins.pfx, ins.pathID)
	}
	check()
}

func TestTableMatchModes(t *testing.T) {
	tab := newTable()
	nets := []string{"8.0.0.0/8", "8.8.8.0/24", "8.8.8.0/25", "8.8.9.0/24"}
	for i, s := range nets {
		require.NoError(t, tab.update(netip.MustParsePrefix(s), 0, RouteAttrs{ASPath: []uint32{uint32(i)}}))
	}

	get := func(mode MatchMode, q string) []string {
		entries, err := tab.get(mode, netip.MustParsePrefix(q))
		require.NoError(t, err)
		var nets []string
		for _, entry := range sortEntries(entries) {
			nets = append(nets, entry.Net.String())
		}
		return nets
	}

	assert.Equal(t, []string{"8.8.8.0/24"}, get(MatchExact, "8.8.8.0/24"))
	assert.Empty(t, get(MatchExact, "8.8.8.0/26"))

	assert.Equal(t, []string{"8.8.8.0/24", "8.8.8.0/25", "8.8.9.0/24"}, get(MatchOrLonger, "8.8.8.0/23"))
	assert.Equal(t, []string{"8.0.0.0/8", "8.8.8.0/24"}, get(MatchContains, "8.8.8.0/24"))
	assert.Equal(t, []string{"8.8.8.0/25"}, get(MatchMostSpecific, "8.8.8.8/32"))
	assert.Equal(t, []string{"8.0.0.0/8"}, get(MatchMostSpecific, "8.8.10.1/32"))
	assert.Empty(t, get(MatchMostSpecific, "9.9.9.9/32"))
}

func TestTableMultiPath(t *testing.T) {
	tab := newTable()
	pfx := netip.MustParsePrefix("2001:db8::/32")
	require.NoError(t, tab.update(pfx, 1, RouteAttrs{}))
	require.NoError(t, tab.update(pfx, 2, RouteAttrs{}))
	assert.Equal(t, 1, tab.len())

	entries, err := tab.get(MatchExact, pfx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Withdrawing one path keeps the network.
	require.NoError(t, tab.withdraw(pfx, 1))
	entries, err = tab.get(MatchExact, pfx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, PathID(2), entries[0].PathID)

	require.NoError(t, tab.withdraw(pfx, 2))
	assert.Equal(t, 0, tab.len())
	entries, err = tab.get(MatchExact, pfx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTableEntryOrderIsStable(t *testing.T) {
	tab := newTable()
	pfx := netip.MustParsePrefix("192.0.2.0/24")
	for _, id := range []PathID{5, 1, 3} {
		require.NoError(t, tab.update(pfx, id, RouteAttrs{}))
	}
	for i := 0; i < 10; i++ {
		entries, err := tab.get(MatchExact, pfx)
		require.NoError(t, err)
		var ids []PathID
		for _, entry := range entries {
			ids = append(ids, entry.PathID)
		}
		assert.Equal(t, []PathID{1, 3, 5}, ids, fmt.Sprintf("iteration %d", i))
	}
}
