package store

import (
	"net"
	"net/netip"
	"sort"
	"sync"

	rnet "github.com/yl2chen/cidranger/net"
)

// routeEntry is one route held in a table.
type routeEntry struct {
	Net    netip.Prefix
	PathID PathID
	Attrs  RouteAttrs
}

// table holds the routes of one TableSelector, split by address family
// since IPv4 and IPv6 networks can not share a prefix trie.
type table struct {
	mu sync.RWMutex
	v4 *routeTrie
	v6 *routeTrie
}

func newTable() *table {
	return &table{
		v4: newRouteTrie(rnet.IPv4),
		v6: newRouteTrie(rnet.IPv6),
	}
}

func (t *table) trieFor(pfx netip.Prefix) *routeTrie {
	if pfx.Addr().Is4() {
		return t.v4
	}
	return t.v6
}

// canonical unmaps 4-in-6 addresses and zeroes the host bits so equal
// networks always land on the same trie node.
func canonical(pfx netip.Prefix) netip.Prefix {
	return netip.PrefixFrom(pfx.Addr().Unmap(), pfx.Bits()).Masked()
}

func (t *table) update(pfx netip.Prefix, pathID PathID, attrs RouteAttrs) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pfx = canonical(pfx)
	trie := t.trieFor(pfx)
	created, err := trie.insert(newNetwork(pfx), pathID, attrs)
	if created {
		trie.size++
	}
	return err
}

func (t *table) withdraw(pfx netip.Prefix, pathID PathID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pfx = canonical(pfx)
	trie := t.trieFor(pfx)
	removed, err := trie.remove(newNetwork(pfx), pathID)
	if removed {
		trie.size--
	}
	return err
}

// get returns the routes matched by mode against pfx, ordered by ascending
// prefix length and path id.
func (t *table) get(mode MatchMode, pfx netip.Prefix) ([]routeEntry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pfx = canonical(pfx)
	trie := t.trieFor(pfx)
	network := newNetwork(pfx)
	switch mode {
	case MatchExact:
		return trie.exact(network), nil
	case MatchOrLonger:
		return trie.covered(network)
	case MatchContains:
		return trie.containing(network)
	case MatchMostSpecific:
		nodes, err := trie.containing(network)
		if err != nil || len(nodes) == 0 {
			return nil, err
		}
		longest := nodes[len(nodes)-1].Net
		var results []routeEntry
		for _, entry := range nodes {
			if entry.Net == longest {
				results = append(results, entry)
			}
		}
		return results, nil
	default:
		return nil, ErrInvalidMatchMode
	}
}

func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.v4.size + t.v6.size
}

// routeTrie is a path-compressed prefix trie over the networks of one
// address family. Networks are stored using a prefix tree structure where
// each node has its parent as prefix, and the path from the root node
// represents the current network. Strings of nodes with a single child are
// compressed into one node.
//
// Each node carrying routes maps add-path ids to their route attributes,
// mirroring how a BGP speaker can announce the same network several times.
type routeTrie struct {
	parent   *routeTrie
	children []*routeTrie

	numBitsSkipped uint

	network rnet.Network
	routes  map[PathID]RouteAttrs

	size int // Number of networks carrying routes, maintained in the root only.
}

func newRouteTrie(version rnet.IPVersion) *routeTrie {
	_, rootNet, _ := net.ParseCIDR("0.0.0.0/0")
	if version == rnet.IPv6 {
		_, rootNet, _ = net.ParseCIDR("0::0/0")
	}
	return &routeTrie{
		children: make([]*routeTrie, 2),
		network:  rnet.NewNetwork(*rootNet),
	}
}

func newPathTrie(network rnet.Network, numBitsSkipped uint) *routeTrie {
	return &routeTrie{
		children:       make([]*routeTrie, 2),
		numBitsSkipped: numBitsSkipped,
		network:        network.Masked(int(numBitsSkipped)),
	}
}

func newRouteNode(network rnet.Network, pathID PathID, attrs RouteAttrs) *routeTrie {
	ones, _ := network.IPNet.Mask.Size()
	leaf := newPathTrie(network, uint(ones))
	leaf.routes = map[PathID]RouteAttrs{pathID: attrs}
	return leaf
}

func (p *routeTrie) insert(network rnet.Network, pathID PathID, attrs RouteAttrs) (bool, error) {
	if p.network.Equal(network) {
		created := p.routes == nil
		if created {
			p.routes = make(map[PathID]RouteAttrs)
		}
		p.routes[pathID] = attrs
		return created, nil
	}

	bit, err := p.targetBitFromIP(network.Number)
	if err != nil {
		return false, err
	}
	existingChild := p.children[bit]

	// No existing child, insert new leaf.
	if existingChild == nil {
		p.appendTrie(bit, newRouteNode(network, pathID, attrs))
		return true, nil
	}

	// Check whether it is necessary to insert an additional path prefix
	// between the current node and the existing child, in the case that the
	// inserted network diverges on its path to the existing child.
	lcb, err := network.LeastCommonBitPosition(existingChild.network)
	if err != nil {
		return false, err
	}
	divergingBitPos := int(lcb) - 1
	if divergingBitPos > existingChild.targetBitPosition() {
		pathPrefix := newPathTrie(network, p.totalNumberOfBits()-lcb)
		if err := p.insertPrefix(bit, pathPrefix, existingChild); err != nil {
			return false, err
		}
		existingChild = pathPrefix
	}
	return existingChild.insert(network, pathID, attrs)
}

func (p *routeTrie) appendTrie(bit uint32, child *routeTrie) {
	p.children[bit] = child
	child.parent = p
}

func (p *routeTrie) insertPrefix(bit uint32, pathPrefix, child *routeTrie) error {
	p.children[bit] = pathPrefix
	pathPrefix.parent = p

	pathPrefixBit, err := pathPrefix.targetBitFromIP(child.network.Number)
	if err != nil {
		return err
	}
	pathPrefix.children[pathPrefixBit] = child
	child.parent = pathPrefix
	return nil
}

// remove drops the route identified by pathID from the node matching
// network and reports whether the network itself became empty and was
// removed from the trie.
func (p *routeTrie) remove(network rnet.Network, pathID PathID) (bool, error) {
	if p.hasRoutes() && p.network.Equal(network) {
		delete(p.routes, pathID)
		if len(p.routes) > 0 {
			return false, nil
		}
		p.routes = nil
		return true, p.compressPathIfPossible()
	}
	if p.targetBitPosition() < 0 {
		return false, nil
	}
	bit, err := p.targetBitFromIP(network.Number)
	if err != nil {
		return false, err
	}
	if child := p.children[bit]; child != nil {
		return child.remove(network, pathID)
	}
	return false, nil
}

func (p *routeTrie) qualifiesForPathCompression() bool {
	// A node can be path compressed if it meets all of the following.
	//	1. carries no routes
	//	2. has a single or no child
	//	3. is not the root
	return !p.hasRoutes() && p.childrenCount() <= 1 && p.parent != nil
}

func (p *routeTrie) compressPathIfPossible() error {
	if !p.qualifiesForPathCompression() {
		return nil
	}

	// Find the lone child, if any.
	var loneChild *routeTrie
	for _, child := range p.children {
		if child != nil {
			loneChild = child
			break
		}
	}

	// Find the root of the current single child lineage.
	parent := p.parent
	for ; parent.qualifiesForPathCompression(); parent = parent.parent {
	}
	parentBit, err := parent.targetBitFromIP(p.network.Number)
	if err != nil {
		return err
	}
	parent.children[parentBit] = loneChild
	if loneChild != nil {
		loneChild.parent = parent
	}

	// The lineage may have compressed into a parent that now qualifies
	// itself.
	return parent.compressPathIfPossible()
}

// exact returns the routes stored for exactly the given network.
func (p *routeTrie) exact(network rnet.Network) []routeEntry {
	if p.hasRoutes() && p.network.Equal(network) {
		return p.entries(nil)
	}
	if p.targetBitPosition() < 0 {
		return nil
	}
	bit, err := p.targetBitFromIP(network.Number)
	if err != nil {
		return nil
	}
	if child := p.children[bit]; child != nil {
		return child.exact(network)
	}
	return nil
}

// containing returns the routes of all stored networks covering the given
// network, in ascending prefix order.
func (p *routeTrie) containing(network rnet.Network) ([]routeEntry, error) {
	if !p.network.Contains(network.Number) {
		return nil, nil
	}
	queryLen, _ := network.IPNet.Mask.Size()
	var results []routeEntry
	// The walk guarantees the node covers the queried address, covering the
	// whole net additionally requires an equal or shorter prefix.
	if p.hasRoutes() && p.prefixLen() <= queryLen {
		results = p.entries(results)
	}
	if p.targetBitPosition() < 0 {
		return results, nil
	}
	bit, err := p.targetBitFromIP(network.Number)
	if err != nil {
		return nil, err
	}
	if child := p.children[bit]; child != nil {
		more, err := child.containing(network)
		if err != nil {
			return nil, err
		}
		results = append(results, more...)
	}
	return results, nil
}

// covered returns the routes of all stored networks covered by the given
// network, i.e. the given network and everything more specific.
func (p *routeTrie) covered(network rnet.Network) ([]routeEntry, error) {
	if network.Covers(p.network) {
		return p.appendAll(nil), nil
	}
	if p.targetBitPosition() >= 0 {
		bit, err := p.targetBitFromIP(network.Number)
		if err != nil {
			return nil, err
		}
		if child := p.children[bit]; child != nil {
			return child.covered(network)
		}
	}
	return nil, nil
}

// appendAll walks the subtree in depth order appending every stored route.
func (p *routeTrie) appendAll(results []routeEntry) []routeEntry {
	if p.hasRoutes() {
		results = p.entries(results)
	}
	for _, child := range p.children {
		if child != nil {
			results = child.appendAll(results)
		}
	}
	return results
}

// entries appends the node's routes ordered by path id, for reproducible
// query output.
func (p *routeTrie) entries(results []routeEntry) []routeEntry {
	pfx := prefixFromNetwork(p.network)
	ids := make([]PathID, 0, len(p.routes))
	for id := range p.routes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		results = append(results, routeEntry{Net: pfx, PathID: id, Attrs: p.routes[id]})
	}
	return results
}

func (p *routeTrie) childrenCount() int {
	count := 0
	for _, child := range p.children {
		if child != nil {
			count++
		}
	}
	return count
}

func (p *routeTrie) totalNumberOfBits() uint {
	return rnet.BitsPerUint32 * uint(len(p.network.Number))
}

func (p *routeTrie) targetBitPosition() int {
	return int(p.totalNumberOfBits()-p.numBitsSkipped) - 1
}

func (p *routeTrie) targetBitFromIP(n rnet.NetworkNumber) (uint32, error) {
	return n.Bit(uint(p.targetBitPosition()))
}

func (p *routeTrie) prefixLen() int {
	ones, _ := p.network.IPNet.Mask.Size()
	return ones
}

func (p *routeTrie) hasRoutes() bool {
	return len(p.routes) > 0
}

func newNetwork(pfx netip.Prefix) rnet.Network {
	bits := 32
	if !pfx.Addr().Is4() {
		bits = 128
	}
	return rnet.NewNetwork(net.IPNet{
		IP:   pfx.Addr().AsSlice(),
		Mask: net.CIDRMask(pfx.Bits(), bits),
	})
}

func prefixFromNetwork(n rnet.Network) netip.Prefix {
	ones, _ := n.IPNet.Mask.Size()
	addr, _ := netip.AddrFromSlice(n.IPNet.IP)
	return netip.PrefixFrom(addr.Unmap(), ones)
}
