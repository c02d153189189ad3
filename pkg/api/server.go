package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cbodonnell/gametable/pkg/api/handlers"
	"github.com/cbodonnell/gametable/pkg/api/middleware"
	"github.com/cbodonnell/gametable/pkg/bundle"
	"github.com/cbodonnell/gametable/pkg/lobby"
	"github.com/cbodonnell/gametable/pkg/log"
	"github.com/cbodonnell/gametable/pkg/repositories"
	"github.com/gorilla/mux"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port     int
	TLS      *TLSConfig
	Registry *bundle.Registry
	Manager  *lobby.Manager
	// Repository is optional; without it the results endpoint is not
	// registered.
	Repository repositories.Repository
}

func newRouter(opts NewAPIServerOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.NewCORSMiddleware())
	router.HandleFunc("/games", handlers.HandleListGames(opts.Registry)).Methods(http.MethodGet, http.MethodOptions)
	router.HandleFunc("/lobbies", handlers.HandleCreateLobby(opts.Manager)).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/lobbies", handlers.HandleListLobbies(opts.Manager)).Methods(http.MethodGet)
	router.HandleFunc("/lobbies/{lobbyID}/ws", handlers.HandleLobbyWebSocket(opts.Manager)).Methods(http.MethodGet)
	if opts.Repository != nil {
		router.HandleFunc("/results", handlers.HandleListResults(opts.Repository)).Methods(http.MethodGet, http.MethodOptions)
	}
	return router
}

// NewAPIServer creates a new http.Server for handling API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: newRouter(opts),
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
