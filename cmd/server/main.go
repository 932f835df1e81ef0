package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/aolo2/desk/internal/api"
	"github.com/aolo2/desk/internal/db"
	"github.com/aolo2/desk/internal/maintenance"
	"github.com/aolo2/desk/internal/room"
	"github.com/aolo2/desk/internal/ws"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// A missing .env file is fine; env vars and defaults cover everything.
	_ = godotenv.Load()

	if level, err := logrus.ParseLevel(envOr("DESK_LOG_LEVEL", "info")); err == nil {
		logrus.SetLevel(level)
	}

	dbPath := envOr("DESK_DB_PATH", "./data/desk.db")
	staticDir := envOr("DESK_STATIC_DIR", "./client")
	addr := ":" + envOr("PORT", "8080")

	store, err := db.New(dbPath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize store")
	}
	defer store.Close()

	registry := room.NewRegistry(store)

	upkeep := maintenance.New(store, maintenance.DefaultConfig())
	upkeep.Start()

	apiHandler := api.New(registry, store)

	// Desk-scoped websocket endpoint, e.g. /ws/desk/7
	http.HandleFunc("/ws/desk/", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(registry, w, r)
	})

	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/api/desks", apiHandler.DesksRouter)
	http.HandleFunc("/api/desks/", apiHandler.DesksRouter)

	// Presentation assets; never touches the desk connection path.
	http.Handle("/", http.FileServer(http.Dir(staticDir)))

	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logrus.Info("Shutting down server...")
		upkeep.Stop()
		store.Close()
		os.Exit(0)
	}()

	logrus.WithFields(logrus.Fields{
		"addr":     addr,
		"database": dbPath,
	}).Info("Desk server starting")
	logrus.Info("Endpoints:")
	logrus.Info("  - WebSocket: /ws/desk/{desk_id}")
	logrus.Info("  - Health:    GET /health")
	logrus.Info("  - Stats:     GET /api/stats")
	logrus.Info("  - Desks:     GET /api/desks")
	logrus.Info("  - Desk:      GET /api/desks/{desk_id}")

	if err := http.ListenAndServe(addr, handler); err != nil {
		logrus.WithError(err).Fatal("ListenAndServe failed")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
