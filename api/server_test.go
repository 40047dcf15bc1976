package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exaring/fernglas/directory"
	"github.com/exaring/fernglas/query"
	"github.com/exaring/fernglas/rd"
	"github.com/exaring/fernglas/store"
)

var (
	clientA = netip.MustParseAddrPort("198.51.100.1:11019")
	clientB = netip.MustParseAddrPort("198.51.100.2:11019")
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	s := store.NewInMemoryStore()
	s.ClientUp(clientA, store.Client{ClientName: "edge1", RouterID: netip.MustParseAddr("198.51.100.1")})
	s.ClientUp(clientB, store.Client{ClientName: "edge2", RouterID: netip.MustParseAddr("198.51.100.2")})

	sel := func(client netip.AddrPort, dist rd.RD) store.TableSelector {
		return store.TableSelector{
			RouteDistinguisher: dist,
			Session:            store.SessionID{FromClient: client, PeerAddress: netip.IPv4Unspecified()},
			Type:               store.TableType{Kind: store.TableLocRib, State: store.StateSelected},
		}
	}
	s.UpdateRoute(0, netip.MustParsePrefix("8.8.8.0/24"), sel(clientA, rd.Default),
		store.RouteAttrs{ASPath: []uint32{64496, 15169}})
	s.UpdateRoute(0, netip.MustParsePrefix("8.8.8.0/24"), sel(clientB, rd.Default),
		store.RouteAttrs{ASPath: []uint32{64497, 15169}})
	s.UpdateRoute(0, netip.MustParsePrefix("10.1.0.0/16"), sel(clientA, rd.Type0(65000, 1)),
		store.RouteAttrs{ASPath: []uint32{64512}})
	s.UpdateRoute(0, netip.MustParsePrefix("10.1.0.0/16"), sel(clientB, rd.Type0(65000, 2)),
		store.RouteAttrs{ASPath: []uint32{64513}})

	e := echo.New()
	NewServer(s, map[string]string{"65000:1": "customer-a"}, store.QueryLimits{}).Register(e)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server
}

func getJSON(t *testing.T, url string, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestGetRouters(t *testing.T) {
	server := testServer(t)
	var routers map[string]store.Client
	getJSON(t, server.URL+"/api/routers", &routers)
	require.Len(t, routers, 2)
	assert.Equal(t, "edge1", routers["198.51.100.1:11019"].ClientName)
}

func TestGetRoutingInstances(t *testing.T) {
	server := testServer(t)
	var instances map[string][]store.RoutingInstance
	getJSON(t, server.URL+"/api/routing-instances", &instances)
	require.Len(t, instances, 2)
	assert.Equal(t, []store.RoutingInstance{
		{RouteDistinguisher: "0:0"},
		{RouteDistinguisher: "65000:1", Name: "customer-a"},
	}, instances["198.51.100.1:11019"])
	assert.Equal(t, []store.RoutingInstance{
		{RouteDistinguisher: "0:0"},
		{RouteDistinguisher: "65000:2"},
	}, instances["198.51.100.2:11019"])
}

func TestQueryEndpoint(t *testing.T) {
	server := testServer(t)

	var results []store.QueryResult
	getJSON(t, server.URL+"/api/query?value=8.8.8.8&mode=MostSpecific", &results)
	require.Len(t, results, 2)
	assert.Equal(t, netip.MustParsePrefix("8.8.8.0/24"), results[0].Net)

	// Router filter is by client name.
	getJSON(t, server.URL+"/api/query?value=8.8.8.8&Router=edge2", &results)
	require.Len(t, results, 1)
	assert.Equal(t, "edge2", results[0].ClientName)

	// Routing instance filter.
	getJSON(t, server.URL+"/api/query?value=10.0.0.0/8&mode=OrLonger&route_distinguisher=65000:1", &results)
	require.Len(t, results, 1)
	assert.Equal(t, "65000:1", results[0].RouteDistinguisher)

	// Without the filter, default instance semantics apply.
	getJSON(t, server.URL+"/api/query?value=10.0.0.0/8&mode=OrLonger", &results)
	assert.Empty(t, results)
}

func TestQueryEndpointBadRequests(t *testing.T) {
	server := testServer(t)
	for _, path := range []string{
		"/api/query",
		"/api/query?value=not-an-ip",
		"/api/query?value=8.8.8.8&mode=Bogus",
		"/api/query?value=8.8.8.8&route_distinguisher=nonsense",
		"/api/query?value=8.8.8.8&max_results=x",
	} {
		resp, err := http.Get(server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := testServer(t)
	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestSearchFlow exercises the whole front end path: directory fetch, form
// rendering, submission, and the backend lookup the fragment stands for.
func TestSearchFlow(t *testing.T) {
	server := testServer(t)

	dir, err := (&directory.Client{BaseURL: server.URL}).Fetch(context.Background())
	require.NoError(t, err)

	form := query.BuildForm(dir, query.New())
	// Three distinct instances across the two clients, so the selector is
	// offered; the conflicting default instance entries merge.
	require.NotNil(t, form.Instances)

	q := form.Submit(query.Submission{
		Mode:               store.MatchOrLonger,
		Value:              "10.0.0.0/8",
		Router:             "edge1",
		RouteDistinguisher: "65000:1",
	})
	assert.Equal(t, "#/OrLonger/10.0.0.0/8?Router=edge1&route_distinguisher=65000:1", q.Fragment())

	// The results view turns the fragment's parts into the lookup call.
	params := url.Values{}
	params.Set("value", q.Value)
	params.Set("mode", string(q.Mode))
	params.Set("Router", q.Router)
	params.Set("route_distinguisher", q.RouteDistinguisher)
	var results []store.QueryResult
	getJSON(t, server.URL+"/api/query?"+params.Encode(), &results)
	require.Len(t, results, 1)
	assert.Equal(t, "edge1", results[0].ClientName)
	assert.True(t, strings.HasPrefix(results[0].Net.String(), "10.1."))
}
