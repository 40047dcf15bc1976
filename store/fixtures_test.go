package store

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exaring/fernglas/rd"
)

func TestLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routers:
  - addr: "198.51.100.1:11019"
    client_name: edge1
    router_id: 198.51.100.1
routes:
  - client: "198.51.100.1:11019"
    peer: 203.0.113.1
    table: PostPolicyAdjIn
    net: 8.8.8.0/24
    as_path: [64496, 15169]
    nexthop: 203.0.113.1
  - client: "198.51.100.1:11019"
    peer: 0.0.0.0
    route_distinguisher: "65000:1"
    net: 10.1.0.0/16
    as_path: [64512]
`), 0o644))

	s := NewInMemoryStore()
	require.NoError(t, LoadFixtures(path, s))

	routers := s.GetRouters()
	require.Len(t, routers, 1)
	assert.Equal(t, "edge1", routers[netip.MustParseAddrPort("198.51.100.1:11019")].ClientName)

	instances := s.GetRoutingInstances()
	assert.Equal(t, []rd.RD{rd.Default, rd.Type0(65000, 1)},
		instances[netip.MustParseAddrPort("198.51.100.1:11019")])

	results, err := s.GetRoutes(Query{Mode: MatchExact, Net: netip.MustParsePrefix("8.8.8.0/24")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateAccepted, results[0].State)
	assert.Equal(t, []uint32{64496, 15169}, results[0].ASPath)

	// The table without an explicit table type defaults to the selected
	// loc-RIB routes.
	results, err = s.GetRoutes(Query{
		Mode:               MatchExact,
		Net:                netip.MustParsePrefix("10.1.0.0/16"),
		RouteDistinguisher: rd.Type0(65000, 1),
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StateSelected, results[0].State)
}

func TestLoadFixturesErrors(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"bad-addr.yaml":  "routers:\n  - addr: nonsense\n    client_name: x\n    router_id: 198.51.100.1\n",
		"bad-table.yaml": "routes:\n  - client: \"198.51.100.1:11019\"\n    peer: 0.0.0.0\n    table: Bogus\n    net: 8.8.8.0/24\n",
		"bad-net.yaml":   "routes:\n  - client: \"198.51.100.1:11019\"\n    peer: 0.0.0.0\n    net: nonsense\n",
		"bad-yaml.yaml":  "routes: [",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		assert.Error(t, LoadFixtures(path, NewInMemoryStore()), name)
	}
	assert.Error(t, LoadFixtures(filepath.Join(dir, "missing.yaml"), NewInMemoryStore()))
}
