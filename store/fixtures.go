package store

import (
	"fmt"
	"net/netip"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/exaring/fernglas/rd"
)

// Route fixtures allow running the daemon without a collector, mainly for
// development and demos.

type fixtureFile struct {
	Routers []fixtureRouter `yaml:"routers"`
	Routes  []fixtureRoute  `yaml:"routes"`
}

type fixtureRouter struct {
	Addr       string `yaml:"addr"`
	ClientName string `yaml:"client_name"`
	RouterID   string `yaml:"router_id"`
}

type fixtureRoute struct {
	Client             string   `yaml:"client"`
	Peer               string   `yaml:"peer"`
	Table              string   `yaml:"table"`
	State              string   `yaml:"state"`
	RouteDistinguisher string   `yaml:"route_distinguisher"`
	Net                string   `yaml:"net"`
	PathID             uint32   `yaml:"path_id"`
	Origin             string   `yaml:"origin"`
	ASPath             []uint32 `yaml:"as_path"`
	Nexthop            string   `yaml:"nexthop"`
	MED                *uint32  `yaml:"med"`
	LocalPref          *uint32  `yaml:"local_pref"`
}

// LoadFixtures reads a YAML fixture file and replays it into the store.
func LoadFixtures(path string, s Store) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading fixtures: %w", err)
	}
	var file fixtureFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return fmt.Errorf("parsing fixtures %s: %w", path, err)
	}

	for i, router := range file.Routers {
		addr, err := netip.ParseAddrPort(router.Addr)
		if err != nil {
			return fmt.Errorf("fixture router #%d: %w", i, err)
		}
		routerID, err := netip.ParseAddr(router.RouterID)
		if err != nil {
			return fmt.Errorf("fixture router #%d: %w", i, err)
		}
		s.ClientUp(addr, Client{ClientName: router.ClientName, RouterID: routerID})
	}

	for i, route := range file.Routes {
		sel, attrs, err := route.parse()
		if err != nil {
			return fmt.Errorf("fixture route #%d: %w", i, err)
		}
		net, err := netip.ParsePrefix(route.Net)
		if err != nil {
			return fmt.Errorf("fixture route #%d: %w", i, err)
		}
		if id, ok := sel.SessionID(); ok {
			s.SessionUp(id, Session{})
		}
		s.UpdateRoute(route.PathID, net, sel, attrs)
	}
	return nil
}

func (r fixtureRoute) parse() (TableSelector, RouteAttrs, error) {
	client, err := netip.ParseAddrPort(r.Client)
	if err != nil {
		return TableSelector{}, RouteAttrs{}, err
	}
	peer, err := netip.ParseAddr(r.Peer)
	if err != nil {
		return TableSelector{}, RouteAttrs{}, err
	}

	tableType := TableType{Kind: TableLocRib, State: StateSelected}
	switch r.Table {
	case "", string(TableLocRib):
		if r.State != "" {
			tableType.State = RouteState(r.State)
		}
	case string(TablePrePolicyAdjIn):
		tableType = TableType{Kind: TablePrePolicyAdjIn}
	case string(TablePostPolicyAdjIn):
		tableType = TableType{Kind: TablePostPolicyAdjIn}
	default:
		return TableSelector{}, RouteAttrs{}, fmt.Errorf("unknown table type %q", r.Table)
	}

	dist := rd.Default
	if r.RouteDistinguisher != "" {
		if dist, err = rd.Parse(r.RouteDistinguisher); err != nil {
			return TableSelector{}, RouteAttrs{}, err
		}
	}

	attrs := RouteAttrs{
		Origin:    RouteOrigin(r.Origin),
		ASPath:    r.ASPath,
		MED:       r.MED,
		LocalPref: r.LocalPref,
	}
	if r.Nexthop != "" {
		nexthop, err := netip.ParseAddr(r.Nexthop)
		if err != nil {
			return TableSelector{}, RouteAttrs{}, err
		}
		attrs.Nexthop = &nexthop
	}

	sel := TableSelector{
		RouteDistinguisher: dist,
		Session:            SessionID{FromClient: client, PeerAddress: peer},
		Type:               tableType,
	}
	return sel, attrs, nil
}
