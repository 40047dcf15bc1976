// Command fernglas-search builds a shareable looking glass query fragment.
//
// It fetches the instance directory from a fernglas backend, renders the
// selectable routers and routing instances, and serializes the requested
// lookup into its canonical fragment encoding:
//
//	fernglas-search -backend http://lg.example.net -mode OrLonger -value 8.8.8.0/24
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/exaring/fernglas/directory"
	"github.com/exaring/fernglas/query"
	"github.com/exaring/fernglas/store"
)

func main() {
	backend := flag.String("backend", "", "backend base URL (required)")
	mode := flag.String("mode", string(store.MatchMostSpecific), "match mode: MostSpecific, Exact, OrLonger or Contains")
	value := flag.String("value", "", "lookup value: IP address, prefix or hostname")
	router := flag.String("router", query.RouterAll, "router filter, by client name")
	instance := flag.String("rd", query.InstanceDefault, "routing instance filter, by route distinguisher")
	list := flag.Bool("list", false, "list selectable routers and routing instances and exit")
	timeout := flag.Duration("timeout", 10*time.Second, "directory fetch timeout")
	flag.Parse()

	if *backend == "" {
		log.Fatal("-backend is required")
	}
	matchMode, err := store.ParseMatchMode(*mode)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	dir, err := (&directory.Client{BaseURL: *backend}).Fetch(ctx)
	if err != nil {
		log.Fatal(err)
	}

	form := query.BuildForm(dir, query.New())
	if *list {
		for _, opt := range form.Routers {
			fmt.Printf("router\t%s\t%s\n", opt.Value, opt.Label)
		}
		for _, opt := range form.Instances {
			fmt.Printf("instance\t%s\t%s\n", opt.Value, opt.Label)
		}
		return
	}

	q := form.Submit(query.Submission{
		Mode:               matchMode,
		Value:              *value,
		Router:             *router,
		RouteDistinguisher: *instance,
	})
	fmt.Println(q.Fragment())
}
