package main

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Bren2010/antani/log"
)

// Version is the build version, set at build time with -ldflags.
var Version = "dev"

var GoVersion = runtime.Version()

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "A metric with a constant '1' value labeled by version, and goversion.",
		},
		[]string{"version", "goversion"},
	)
	proofOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proof_operations",
			Help: "Incremented for each proof built, labeled by success or failure.",
		},
		[]string{"success"},
	)
	proofDur = prometheus.NewSummary(
		prometheus.SummaryOpts{
			Name: "proof_duration",
			Help: "Summary of how long building a proof takes, in microseconds.",
		},
	)
	pushOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_operations",
			Help: "Incremented for each vote pushed to the ballot, labeled by outcome.",
		},
		[]string{"outcome"},
	)
	tallyOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tally_operations",
			Help: "Incremented for each tally of the ballot, labeled by success or failure.",
		},
		[]string{"success"},
	)
	ballotVotes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ballot_votes",
			Help: "Number of votes in the ballot.",
		},
	)
	requestCtr = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests",
			Help: "Incremented for each API request received.",
		},
		[]string{"path", "status"},
	)
)

func metrics(addr string) {
	buildInfo.WithLabelValues(Version, GoVersion).Set(1)
	prometheus.MustRegister(buildInfo)
	prometheus.MustRegister(proofOps)
	prometheus.MustRegister(proofDur)
	prometheus.MustRegister(pushOps)
	prometheus.MustRegister(tallyOps)
	prometheus.MustRegister(ballotVotes)
	prometheus.MustRegister(requestCtr)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(rw http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/" {
			fmt.Fprintln(rw, "Hi, I'm an antani metrics and debugging server!")
		} else {
			rw.WriteHeader(404)
			fmt.Fprintln(rw, "404 not found")
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/debug/version", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprintf(w, "Version: %s, GoVersion: %s", Version, GoVersion)
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	log.Infof("Starting metrics server at: %v", addr)
	log.Fatalf("%v", srv.ListenAndServe())
}
