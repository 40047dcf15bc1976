// Command fernglas serves the looking glass HTTP API.
package main

import (
	"flag"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/exaring/fernglas/api"
	"github.com/exaring/fernglas/config"
	"github.com/exaring/fernglas/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)

	st := store.NewInMemoryStore()
	if cfg.Fixtures != "" {
		if err := store.LoadFixtures(cfg.Fixtures, st); err != nil {
			log.Fatal(err)
		}
		log.WithField("path", cfg.Fixtures).Info("loaded route fixtures")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	server := api.NewServer(st, cfg.RDNames, store.QueryLimits{
		MaxResults:         cfg.QueryLimits.MaxResults,
		MaxResultsPerTable: cfg.QueryLimits.MaxResultsPerTable,
	})
	server.Register(e)

	log.WithField("listen", cfg.Listen).Info("starting http server")
	log.Fatal(e.Start(cfg.Listen))
}
