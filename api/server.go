/*
Package api exposes the looking glass HTTP API.

	GET /api/routers            — known routers, keyed by client address
	GET /api/routing-instances  — routing instances observed per client
	GET /api/query              — route lookup
	GET /metrics                — prometheus metrics
*/
package api

import (
	"net/http"
	"net/netip"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/exaring/fernglas/rd"
	"github.com/exaring/fernglas/store"
)

// Server serves the looking glass API from a route store.
type Server struct {
	store store.Store
	// rdNames maps route distinguishers to operator-provided display
	// names attached to the routing instance directory.
	rdNames map[string]string
	limits  store.QueryLimits
}

// NewServer creates a Server. rdNames may be nil, limits zero values fall
// back to the store defaults.
func NewServer(st store.Store, rdNames map[string]string, limits store.QueryLimits) *Server {
	if limits == (store.QueryLimits{}) {
		limits = store.DefaultQueryLimits()
	}
	return &Server{store: st, rdNames: rdNames, limits: limits}
}

// Register installs the API routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/api/routers", s.getRouters)
	e.GET("/api/routing-instances", s.getRoutingInstances)
	e.GET("/api/query", s.getRoutes)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) getRouters(ectx echo.Context) error {
	routers := make(map[string]store.Client)
	for addr, client := range s.store.GetRouters() {
		routers[addr.String()] = client
	}
	return ectx.JSON(http.StatusOK, routers)
}

func (s *Server) getRoutingInstances(ectx echo.Context) error {
	instances := make(map[string][]store.RoutingInstance)
	for addr, rds := range s.store.GetRoutingInstances() {
		group := make([]store.RoutingInstance, 0, len(rds))
		for _, dist := range rds {
			encoded := dist.String()
			group = append(group, store.RoutingInstance{
				RouteDistinguisher: encoded,
				Name:               s.rdNames[encoded],
			})
		}
		instances[addr.String()] = group
	}
	return ectx.JSON(http.StatusOK, instances)
}

func (s *Server) getRoutes(ectx echo.Context) error {
	query, err := s.parseQuery(ectx)
	if err != nil {
		return err
	}
	results, err := s.store.GetRoutes(query)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	log.WithFields(log.Fields{
		"net":     query.Net,
		"mode":    query.Mode,
		"results": len(results),
	}).Debug("query served")
	if results == nil {
		results = []store.QueryResult{}
	}
	return ectx.JSON(http.StatusOK, results)
}

// parseQuery maps the request parameters onto a store query. The value
// must be an address or prefix; hostname resolution is the caller's job.
func (s *Server) parseQuery(ectx echo.Context) (store.Query, error) {
	value := ectx.QueryParam("value")
	if value == "" {
		return store.Query{}, echo.NewHTTPError(http.StatusBadRequest, "missing value parameter")
	}
	net, err := parseNet(value)
	if err != nil {
		return store.Query{}, echo.NewHTTPError(http.StatusBadRequest, "value must be an IP address or prefix")
	}

	mode := store.MatchMostSpecific
	if m := ectx.QueryParam("mode"); m != "" {
		if mode, err = store.ParseMatchMode(m); err != nil {
			return store.Query{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	dist := rd.Default
	if v := ectx.QueryParam("route_distinguisher"); v != "" {
		if dist, err = rd.Parse(v); err != nil {
			return store.Query{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	var tableQuery *store.TableQuery
	if router := ectx.QueryParam("Router"); router != "" {
		tableQuery = &store.TableQuery{RouterName: router}
	}

	limits := s.limits
	if v := ectx.QueryParam("max_results"); v != "" {
		if limits.MaxResults, err = strconv.Atoi(v); err != nil {
			return store.Query{}, echo.NewHTTPError(http.StatusBadRequest, "invalid max_results")
		}
	}
	if v := ectx.QueryParam("max_results_per_table"); v != "" {
		if limits.MaxResultsPerTable, err = strconv.Atoi(v); err != nil {
			return store.Query{}, echo.NewHTTPError(http.StatusBadRequest, "invalid max_results_per_table")
		}
	}

	return store.Query{
		Mode:               mode,
		Net:                net,
		Table:              tableQuery,
		RouteDistinguisher: dist,
		Limits:             &limits,
		ASPathRegex:        ectx.QueryParam("as_path_regex"),
	}, nil
}

func parseNet(value string) (netip.Prefix, error) {
	if pfx, err := netip.ParsePrefix(value); err == nil {
		return pfx, nil
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
