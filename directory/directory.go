/*
Package directory retrieves and caches the set of known routers and
routing instances from the looking glass backend.

The directory is fetched once at session start and read-only afterwards.
Both retrievals run concurrently and are awaited jointly; if either fails
the initialization fails as a whole and no partial state is handed out.
*/
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/exaring/fernglas/store"
)

// Router is one known router as served by the backend.
type Router struct {
	// ID is the backend's identity key for the router. Multiple ids may
	// share a ClientName, e.g. redundant collector sessions for the same
	// logical router.
	ID string
	store.Client
}

// Directory is the immutable instance directory of one page session.
type Directory struct {
	// Routers is sorted by client name so selectors get a stable, human
	// scannable ordering.
	Routers []Router
	// Instances maps the backend's grouping key to the routing instances
	// observed there. Stored verbatim, deduplication is presentation
	// specific and left to the query builder.
	Instances map[string][]store.RoutingInstance
}

// Client fetches the instance directory from a looking glass backend.
type Client struct {
	// BaseURL is the backend base, e.g. "http://lg.example.net".
	BaseURL string
	// HTTPClient defaults to http.DefaultClient when nil. Timeout and
	// retry policy belong to the transport layer.
	HTTPClient *http.Client
}

// Fetch retrieves routers and routing instances concurrently and returns
// the normalized directory. Either retrieval failing fails the whole
// initialization.
func (c *Client) Fetch(ctx context.Context) (*Directory, error) {
	var (
		routers   []Router
		instances map[string][]store.RoutingInstance
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		byID := make(map[string]store.Client)
		if err := c.getJSON(ctx, "/api/routers", &byID); err != nil {
			return fmt.Errorf("fetching routers: %w", err)
		}
		routers = sortRouters(byID)
		return nil
	})
	g.Go(func() error {
		if err := c.getJSON(ctx, "/api/routing-instances", &instances); err != nil {
			return fmt.Errorf("fetching routing instances: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("initializing instance directory: %w", err)
	}

	log.WithFields(log.Fields{
		"routers":         len(routers),
		"instance_groups": len(instances),
	}).Debug("instance directory ready")
	return &Directory{Routers: routers, Instances: instances}, nil
}

// sortRouters orders routers by client name, case-sensitive. Ids break
// ties so the ordering is reproducible across fetches.
func sortRouters(byID map[string]store.Client) []Router {
	routers := make([]Router, 0, len(byID))
	for id, client := range byID {
		routers = append(routers, Router{ID: id, Client: client})
	}
	sort.Slice(routers, func(i, j int) bool {
		if routers[i].ClientName != routers[j].ClientName {
			return routers[i].ClientName < routers[j].ClientName
		}
		return routers[i].ID < routers[j].ID
	})
	return routers
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", path, err)
	}
	return nil
}
