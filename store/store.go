/*
Package store provides the route store of the looking glass.

Routes are grouped into tables keyed by a TableSelector, the combination of
routing instance (route distinguisher), BMP session and table type. Lookups
are expressed as a Query combining a prefix match mode with optional table
filters.
*/
package store

import (
	"encoding/json"
	"fmt"
	"net/netip"

	"github.com/exaring/fernglas/rd"
)

// PathID is the BGP add-path identifier of a route.
type PathID = uint32

// MatchMode is the lookup semantics applied to a queried prefix.
type MatchMode string

const (
	// MatchMostSpecific returns the longest prefix covering the queried net.
	MatchMostSpecific MatchMode = "MostSpecific"
	// MatchExact returns routes for exactly the queried net.
	MatchExact MatchMode = "Exact"
	// MatchOrLonger returns the queried net and all more specific prefixes.
	MatchOrLonger MatchMode = "OrLonger"
	// MatchContains returns all prefixes covering the queried net.
	MatchContains MatchMode = "Contains"
)

// ErrInvalidMatchMode is returned upon an unknown match mode name.
var ErrInvalidMatchMode = fmt.Errorf("invalid match mode")

// ParseMatchMode parses the canonical match mode name.
func ParseMatchMode(s string) (MatchMode, error) {
	switch m := MatchMode(s); m {
	case MatchMostSpecific, MatchExact, MatchOrLonger, MatchContains:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMatchMode, s)
}

// RouteOrigin is the BGP origin attribute.
type RouteOrigin string

const (
	OriginIgp        RouteOrigin = "Igp"
	OriginEgp        RouteOrigin = "Egp"
	OriginIncomplete RouteOrigin = "Incomplete"
)

// Community is a classic BGP community.
type Community [2]uint16

// LargeCommunity is an RFC 8092 large community.
type LargeCommunity [3]uint32

// RouteAttrs holds the BGP path attributes of a route.
type RouteAttrs struct {
	Origin           RouteOrigin      `json:"origin,omitempty"`
	ASPath           []uint32         `json:"as_path,omitempty"`
	Communities      []Community      `json:"communities,omitempty"`
	LargeCommunities []LargeCommunity `json:"large_communities,omitempty"`
	MED              *uint32          `json:"med,omitempty"`
	LocalPref        *uint32          `json:"local_pref,omitempty"`
	Nexthop          *netip.Addr      `json:"nexthop,omitempty"`
}

// RouteState describes how far a route made it through the BGP pipeline.
type RouteState string

const (
	// StateSeen means the route was received but rejected in a filter.
	StateSeen RouteState = "Seen"
	// StateAccepted means the route was received and accepted in the filters.
	StateAccepted RouteState = "Accepted"
	// StateActive marks equal cost multipath routes.
	StateActive RouteState = "Active"
	// StateSelected marks the preferred route propagated to neighbors.
	StateSelected RouteState = "Selected"
)

// SessionID identifies a BGP session as observed via BMP.
type SessionID struct {
	FromClient  netip.AddrPort `json:"from_client"`
	PeerAddress netip.Addr     `json:"peer_address"`
}

// TableKind is the BMP table type a route was learned from.
type TableKind string

const (
	TablePrePolicyAdjIn  TableKind = "PrePolicyAdjIn"
	TablePostPolicyAdjIn TableKind = "PostPolicyAdjIn"
	TableLocRib          TableKind = "LocRib"
)

// TableType is a table kind plus, for loc-RIB tables, the state the
// contained routes are in.
type TableType struct {
	Kind TableKind
	// State is only meaningful for TableLocRib.
	State RouteState
}

// TableSelector identifies one route table.
type TableSelector struct {
	RouteDistinguisher rd.RD
	Session            SessionID
	Type               TableType
}

// ClientAddr returns the address of the BMP client the table belongs to.
func (s TableSelector) ClientAddr() netip.AddrPort {
	return s.Session.FromClient
}

// SessionID returns the BGP session the table belongs to. Loc-RIB tables
// are not tied to a single session.
func (s TableSelector) SessionID() (SessionID, bool) {
	if s.Type.Kind == TableLocRib {
		return SessionID{}, false
	}
	return s.Session, true
}

// RouteState returns the state of routes held in the table.
func (s TableSelector) RouteState() RouteState {
	switch s.Type.Kind {
	case TableLocRib:
		return s.Type.State
	case TablePostPolicyAdjIn:
		return StateAccepted
	default:
		return StateSeen
	}
}

// Client is the information kept about a connected router.
type Client struct {
	ClientName string     `json:"client_name"`
	RouterID   netip.Addr `json:"router_id"`
}

// Session is the information kept about a monitored BGP session.
type Session struct{}

// RoutingInstance is one (route distinguisher, display name) pair as served
// by the routing instance directory. The display name is optional, the empty
// string canonically denotes an absent name.
//
// The wire encoding is a two element array, with null for an absent name.
type RoutingInstance struct {
	RouteDistinguisher string
	Name               string
}

// MarshalJSON implements json.Marshaler.
func (ri RoutingInstance) MarshalJSON() ([]byte, error) {
	var name *string
	if ri.Name != "" {
		name = &ri.Name
	}
	return json.Marshal([2]interface{}{ri.RouteDistinguisher, name})
}

// UnmarshalJSON implements json.Unmarshaler.
func (ri *RoutingInstance) UnmarshalJSON(b []byte) error {
	var pair []*string
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 || pair[0] == nil {
		return fmt.Errorf("routing instance: expected [rd, name] pair")
	}
	ri.RouteDistinguisher = *pair[0]
	ri.Name = ""
	if pair[1] != nil {
		ri.Name = *pair[1]
	}
	return nil
}

// TableQuery restricts a query to a subset of tables. At most one field is
// set, the first set field wins.
type TableQuery struct {
	// Table selects exactly one table.
	Table *TableSelector
	// Client selects all tables of one BMP client.
	Client *netip.AddrPort
	// RouterName selects the tables of all clients sharing a client name.
	RouterName string
	// Session selects the tables of one BGP session.
	Session *SessionID
}

// QueryLimits bounds the result set of a query. Zero values mean unlimited.
type QueryLimits struct {
	MaxResultsPerTable int `json:"max_results_per_table"`
	MaxResults         int `json:"max_results"`
}

// DefaultQueryLimits returns the limits applied when a query carries none.
func DefaultQueryLimits() QueryLimits {
	return QueryLimits{
		MaxResultsPerTable: 200,
		MaxResults:         500,
	}
}

// Query is a route lookup.
type Query struct {
	// Mode is the prefix match mode.
	Mode MatchMode
	// Net is the queried prefix.
	Net netip.Prefix
	// Table optionally restricts the queried tables.
	Table *TableQuery
	// RouteDistinguisher selects the routing instance. The zero value is
	// the default instance; tables of other instances never match.
	RouteDistinguisher rd.RD
	// Limits bounds the result set, DefaultQueryLimits when nil.
	Limits *QueryLimits
	// ASPathRegex optionally filters results by their AS path, matched
	// against the space-separated ASN list.
	ASPathRegex string
}

// QueryResult is one route matched by a query.
type QueryResult struct {
	State              RouteState     `json:"state"`
	Net                netip.Prefix   `json:"net"`
	RouteDistinguisher string         `json:"route_distinguisher,omitempty"`
	FromClient         netip.AddrPort `json:"from_client"`
	PeerAddress        netip.Addr     `json:"peer_address"`
	TableType          TableKind      `json:"type"`
	Client
	RouteAttrs
}

// Store is the interface between the collector side and the lookup API.
type Store interface {
	UpdateRoute(pathID PathID, net netip.Prefix, table TableSelector, attrs RouteAttrs)
	WithdrawRoute(pathID PathID, net netip.Prefix, table TableSelector)
	GetRoutes(query Query) ([]QueryResult, error)
	GetRouters() map[netip.AddrPort]Client
	GetRoutingInstances() map[netip.AddrPort][]rd.RD
	ClientUp(clientAddr netip.AddrPort, client Client)
	ClientDown(clientAddr netip.AddrPort)
	SessionUp(session SessionID, data Session)
	SessionDown(session SessionID)
}
