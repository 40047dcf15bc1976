/*
Package query builds canonical, shareable route lookup queries.

A Query captures the user's lookup intent: a free-form value (address,
prefix or hostname), a match mode, an optional router filter and an
optional routing instance filter. Its fragment encoding

	#/<mode>/<value>?Router=<name>&route_distinguisher=<rd>

is the navigation contract handed to the results view and round-trips
losslessly through ParseFragment.
*/
package query

import (
	"fmt"
	"strings"

	"github.com/exaring/fernglas/store"
)

const (
	// RouterAll is the router selection matching all routers.
	RouterAll = "all"
	// InstanceDefault is the routing instance selection matching the
	// default instance.
	InstanceDefault = "default"
)

// ErrInvalidFragment is returned upon an unparsable fragment string.
var ErrInvalidFragment = fmt.Errorf("invalid query fragment")

// Query is a canonical route lookup query. Route distinguishers are opaque
// at this layer, they are only compared for equality.
type Query struct {
	Mode               store.MatchMode
	Value              string
	Router             string
	RouteDistinguisher string
}

// New returns an empty query with all selections at their sentinels.
func New() Query {
	return Query{
		Mode:               store.MatchMostSpecific,
		Router:             RouterAll,
		RouteDistinguisher: InstanceDefault,
	}
}

// Fragment returns the canonical fragment encoding. The mode is only
// encoded together with a non-empty value, filters at their sentinel
// values are omitted.
func (q Query) Fragment() string {
	var b strings.Builder
	b.WriteString("#/")
	if q.Value != "" {
		b.WriteString(string(q.Mode))
		b.WriteString("/")
		b.WriteString(q.Value)
	}
	var filters []string
	if q.Router != "" && q.Router != RouterAll {
		filters = append(filters, "Router="+q.Router)
	}
	if q.RouteDistinguisher != "" && q.RouteDistinguisher != InstanceDefault {
		filters = append(filters, "route_distinguisher="+q.RouteDistinguisher)
	}
	if len(filters) > 0 {
		b.WriteString("?")
		b.WriteString(strings.Join(filters, "&"))
	}
	return b.String()
}

// ParseFragment parses a fragment back into a Query. Absent segments yield
// the sentinel values of New. Prefix values contain slashes, so everything
// between the mode segment and the filter separator belongs to the value.
func ParseFragment(fragment string) (Query, error) {
	q := New()
	s := strings.TrimPrefix(fragment, "#")
	s = strings.TrimPrefix(s, "/")
	path, rawFilters, _ := strings.Cut(s, "?")

	if path != "" {
		modeName, value, ok := strings.Cut(path, "/")
		if !ok || value == "" {
			return Query{}, fmt.Errorf("%w: mode without value in %q", ErrInvalidFragment, fragment)
		}
		mode, err := store.ParseMatchMode(modeName)
		if err != nil {
			return Query{}, fmt.Errorf("%w: %v", ErrInvalidFragment, err)
		}
		q.Mode = mode
		q.Value = value
	}

	if rawFilters != "" {
		for _, pair := range strings.Split(rawFilters, "&") {
			key, value, _ := strings.Cut(pair, "=")
			if value == "" {
				continue
			}
			switch key {
			case "Router":
				q.Router = value
			case "route_distinguisher":
				q.RouteDistinguisher = value
			}
		}
	}
	return q, nil
}
