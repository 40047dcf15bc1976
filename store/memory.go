package store

import (
	"fmt"
	"net/netip"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/exaring/fernglas/rd"
)

// InMemoryStore keeps all route tables in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	clients  map[netip.AddrPort]Client
	sessions map[SessionID]Session
	tables   map[TableSelector]*table
}

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		clients:  make(map[netip.AddrPort]Client),
		sessions: make(map[SessionID]Session),
		tables:   make(map[TableSelector]*table),
	}
}

func (s *InMemoryStore) getTable(sel TableSelector) *table {
	s.mu.Lock()
	defer s.mu.Unlock()
	tab, ok := s.tables[sel]
	if !ok {
		tab = newTable()
		s.tables[sel] = tab
	}
	return tab
}

// UpdateRoute records a route announcement.
func (s *InMemoryStore) UpdateRoute(pathID PathID, net netip.Prefix, sel TableSelector, attrs RouteAttrs) {
	metricRouteUpdates.Inc()
	if err := s.getTable(sel).update(net, pathID, attrs); err != nil {
		log.WithFields(log.Fields{"net": net, "err": err}).Warn("dropping route update")
	}
}

// WithdrawRoute records a route withdrawal.
func (s *InMemoryStore) WithdrawRoute(pathID PathID, net netip.Prefix, sel TableSelector) {
	metricRouteWithdraws.Inc()
	if err := s.getTable(sel).withdraw(net, pathID); err != nil {
		log.WithFields(log.Fields{"net": net, "err": err}).Warn("dropping route withdraw")
	}
}

// ClientUp records a connected BMP client.
func (s *InMemoryStore) ClientUp(clientAddr netip.AddrPort, client Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[clientAddr] = client
}

// ClientDown drops a client and all state derived from it.
func (s *InMemoryStore) ClientDown(clientAddr netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientAddr)
	for id := range s.sessions {
		if id.FromClient == clientAddr {
			delete(s.sessions, id)
		}
	}
	for sel := range s.tables {
		if sel.ClientAddr() == clientAddr {
			delete(s.tables, sel)
		}
	}
}

// SessionUp records a monitored BGP session.
func (s *InMemoryStore) SessionUp(session SessionID, data Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session] = data
}

// SessionDown drops a session and its tables.
func (s *InMemoryStore) SessionDown(session SessionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session)
	for sel := range s.tables {
		if id, ok := sel.SessionID(); ok && id == session {
			delete(s.tables, sel)
		}
	}
}

// GetRouters returns the connected clients keyed by their address.
func (s *InMemoryStore) GetRouters() map[netip.AddrPort]Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	routers := make(map[netip.AddrPort]Client, len(s.clients))
	for addr, client := range s.clients {
		routers[addr] = client
	}
	return routers
}

// GetRoutingInstances returns, per client, the set of route distinguishers
// observed among its tables.
func (s *InMemoryStore) GetRoutingInstances() map[netip.AddrPort][]rd.RD {
	s.mu.RLock()
	defer s.mu.RUnlock()
	instances := make(map[netip.AddrPort][]rd.RD)
	seen := make(map[netip.AddrPort]map[rd.RD]struct{})
	for sel := range s.tables {
		addr := sel.ClientAddr()
		if seen[addr] == nil {
			seen[addr] = make(map[rd.RD]struct{})
		}
		if _, ok := seen[addr][sel.RouteDistinguisher]; ok {
			continue
		}
		seen[addr][sel.RouteDistinguisher] = struct{}{}
		instances[addr] = append(instances[addr], sel.RouteDistinguisher)
	}
	for _, rds := range instances {
		sort.Slice(rds, func(i, j int) bool { return rds[i].String() < rds[j].String() })
	}
	return instances
}

// GetRoutes runs a route lookup across the selected tables.
func (s *InMemoryStore) GetRoutes(query Query) ([]QueryResult, error) {
	metricQueries.WithLabelValues(string(query.Mode)).Inc()

	var matchASPath *regexp.Regexp
	if query.ASPathRegex != "" {
		var err error
		if matchASPath, err = regexp.Compile(query.ASPathRegex); err != nil {
			return nil, fmt.Errorf("invalid as_path_regex: %w", err)
		}
	}

	limits := DefaultQueryLimits()
	if query.Limits != nil {
		limits = *query.Limits
	}
	maxResults := limits.MaxResults
	if maxResults == 0 {
		maxResults = int(^uint(0) >> 1)
	}
	maxResultsPerTable := limits.MaxResultsPerTable
	if maxResultsPerTable == 0 {
		maxResultsPerTable = int(^uint(0) >> 1)
	}

	selected, clients := s.selectTables(query)

	var results []QueryResult
	for _, st := range selected {
		entries, err := st.table.get(query.Mode, query.Net)
		if err != nil {
			return nil, err
		}
		perTable := 0
		for _, entry := range entries {
			if matchASPath != nil &&
				(len(entry.Attrs.ASPath) == 0 || !matchASPath.MatchString(asPathString(entry.Attrs.ASPath))) {
				continue
			}
			client, ok := clients[st.sel.ClientAddr()]
			if !ok {
				log.WithField("client", st.sel.ClientAddr()).Warn("client is not connected")
				continue
			}
			results = append(results, newQueryResult(st.sel, client, entry))
			perTable++
			if len(results) >= maxResults {
				return results, nil
			}
			if perTable >= maxResultsPerTable {
				break
			}
		}
	}
	return results, nil
}

type selectedTable struct {
	sel   TableSelector
	table *table
}

// selectTables snapshots the tables matched by the query's table filter and
// routing instance, in a stable order, together with the current clients.
func (s *InMemoryStore) selectTables(query Query) ([]selectedTable, map[netip.AddrPort]Client) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match := func(sel TableSelector) bool { return true }
	if tq := query.Table; tq != nil {
		switch {
		case tq.Table != nil:
			match = func(sel TableSelector) bool { return sel == *tq.Table }
		case tq.Client != nil:
			match = func(sel TableSelector) bool { return sel.ClientAddr() == *tq.Client }
		case tq.RouterName != "":
			match = func(sel TableSelector) bool {
				client, ok := s.clients[sel.ClientAddr()]
				return ok && client.ClientName == tq.RouterName
			}
		case tq.Session != nil:
			match = func(sel TableSelector) bool {
				id, ok := sel.SessionID()
				return ok && id == *tq.Session
			}
		}
	}

	var selected []selectedTable
	for sel, tab := range s.tables {
		if sel.RouteDistinguisher != query.RouteDistinguisher {
			continue
		}
		if !match(sel) {
			continue
		}
		selected = append(selected, selectedTable{sel: sel, table: tab})
	}
	sort.Slice(selected, func(i, j int) bool {
		return tableSortKey(selected[i].sel) < tableSortKey(selected[j].sel)
	})

	clients := make(map[netip.AddrPort]Client, len(s.clients))
	for addr, client := range s.clients {
		clients[addr] = client
	}
	return selected, clients
}

func tableSortKey(sel TableSelector) string {
	return sel.Session.FromClient.String() + "|" + sel.Session.PeerAddress.String() +
		"|" + string(sel.Type.Kind) + "|" + sel.RouteDistinguisher.String()
}

func newQueryResult(sel TableSelector, client Client, entry routeEntry) QueryResult {
	result := QueryResult{
		State:       sel.RouteState(),
		Net:         entry.Net,
		FromClient:  sel.Session.FromClient,
		PeerAddress: sel.Session.PeerAddress,
		TableType:   sel.Type.Kind,
		Client:      client,
		RouteAttrs:  entry.Attrs,
	}
	if !sel.RouteDistinguisher.IsDefault() {
		result.RouteDistinguisher = sel.RouteDistinguisher.String()
	}
	return result
}

func asPathString(asPath []uint32) string {
	parts := make([]string, len(asPath))
	for i, asn := range asPath {
		parts[i] = strconv.FormatUint(uint64(asn), 10)
	}
	return strings.Join(parts, " ")
}
