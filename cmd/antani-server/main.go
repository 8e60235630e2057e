// Command antani-server is the API server that answers queries against a
// tree and accepts votes for its ballot.
package main

import (
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Bren2010/antani/ballot"
	"github.com/Bren2010/antani/db"
	"github.com/Bren2010/antani/log"
	"github.com/Bren2010/antani/tree/accumulator"
)

var (
	configFile = flag.String("config", "", "Location of config file.")
)

func main() {
	flag.Parse()

	// Load config from disk.
	if *configFile == "" {
		log.Fatalf("No config file provided, see --help.")
	}
	config, err := ReadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	} else if err := log.Init(config.LogLevel, os.Stderr); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Open the tree.
	store, err := db.Open(config.StoreConfig.Type, config.StoreConfig.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	tree, err := accumulator.NewTree(store)
	if err != nil {
		log.Fatalf("Failed to initialize tree: %v", err)
	}
	root, err := tree.Root()
	if err != nil {
		log.Fatalf("Failed to load tree root: %v", err)
	}
	log.Infow("tree loaded", "leaves", root.Address/2, "mode", root.Mode().String())

	// Open the ballot and start watching it.
	h := &Handler{tree: tree}
	if bc := config.BallotConfig; bc != nil {
		file, err := ballot.OpenFile(bc.File)
		if err != nil {
			log.Fatalf("Failed to open ballot file: %v", err)
		}
		h.ballot, err = ballot.Open(file, tree, ballot.Options{Issuer: bc.issuer, Candidates: bc.Candidates})
		if err != nil {
			log.Fatalf("Failed to open ballot: %v", err)
		}
		go watcher(h.ballot)
	}

	if config.MetricsAddr != "" {
		go metrics(config.MetricsAddr)
	}

	// Setup the API server.
	srv := &http.Server{
		Addr:      config.ServerAddr,
		Handler:   newRouter(h),
		TLSConfig: config.tlsConfig,

		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	log.Infof("Starting API server at: %v", config.ServerAddr)
	if config.TLSConfig == nil {
		log.Fatalf("%v", srv.ListenAndServe())
	} else {
		log.Fatalf("%v", srv.ListenAndServeTLS("", ""))
	}
}
