package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetopt/internal/api"
	"fleetopt/internal/buildinfo"
	"fleetopt/internal/config"
	"fleetopt/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	srvDeps, err := api.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	mux := http.NewServeMux()

	// Fleet snapshot
	mux.HandleFunc("/v1/snapshot", srvDeps.SnapshotHandler)

	// Routing
	mux.HandleFunc("/v1/route/search", srvDeps.RouteSearchHandler)
	mux.HandleFunc("/v1/route/tour", srvDeps.RouteTourHandler)

	// Optimization
	mux.HandleFunc("/v1/assignments/optimize", srvDeps.AssignmentsHandler)
	mux.HandleFunc("/v1/capacity/allocate", srvDeps.CapacityHandler)
	mux.HandleFunc("/v1/maintenance/schedule", srvDeps.MaintenanceHandler)
	mux.HandleFunc("/v1/pareto/optimize", srvDeps.ParetoHandler)
	mux.HandleFunc("/v1/optimizer/config", srvDeps.OptimizerConfigHandler)
	mux.HandleFunc("/v1/admin/optimizer/config", srvDeps.AdminOptimizerConfigHandler)

	// Run traces and progress streams
	mux.HandleFunc("/v1/runs", srvDeps.RunsHandler)
	mux.HandleFunc("/v1/runs/", srvDeps.RunByIDHandler) // includes /progress WebSocket

	// Health
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"` + buildinfo.Version + `"}`))
	})

	// Metrics on the dedicated registry
	metrics.RegisterDefault()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(srvDeps.RateLimit(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("fleetopt API %s listening on %s", buildinfo.Version, addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		dur := time.Since(start)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
	})
}
