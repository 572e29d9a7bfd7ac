package api

import (
	"context"
	"net/http"
	"os"
	"strings"

	"fleetopt/internal/auth"
	"fleetopt/internal/config"
	"fleetopt/internal/store"
)

type Server struct {
	Store  store.Store
	Auth   *auth.Verifier
	Broker EventBroker
	Config config.Config
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer(cfg config.Config) (*Server, error) {
	dsn := os.Getenv("DATABASE_URL")
	var s store.Store
	if strings.TrimSpace(dsn) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		s = sp
	}
	// Broker selection
	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}
	return &Server{Store: s, Auth: auth.NewVerifierFromEnv(), Broker: broker, Config: cfg}, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := s.getPrincipal(r).Tenant
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}
