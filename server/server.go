// Package server exposes the service over HTTP (synchronous API) and
// websocket (live channel). It owns nothing domain-level itself: every
// operation goes through the relay engine or the store.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"duochat/db"
	"duochat/relay"
)

type Config struct {
	Addr          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PingInterval  time.Duration
	SendQueueSize int
	TokenTTL      time.Duration
}

type Server struct {
	db       *db.DB
	engine   *relay.Engine
	config   *Config
	log      *zap.Logger
	tokens   *tokenStore
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

func New(database *db.DB, engine *relay.Engine, config *Config, log *zap.Logger) *Server {
	s := &Server{
		db:     database,
		engine: engine,
		config: config,
		log:    log,
		tokens: newTokenStore(config.TokenTTL),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from a separate origin in development.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.httpSrv = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Router builds the full route table. Exposed so tests can mount it on
// an httptest server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.handleWS)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/users/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/users/login", s.handleLogin).Methods(http.MethodPost)

	private := api.NewRoute().Subrouter()
	private.Use(s.requireAuth)
	private.HandleFunc("/users/profile", s.handleProfile).Methods(http.MethodGet)
	private.HandleFunc("/users/avatar", s.handleSetAvatar).Methods(http.MethodPost)
	private.HandleFunc("/users/search", s.handleSearch).Methods(http.MethodGet)
	private.HandleFunc("/users/friends", s.handleFriends).Methods(http.MethodGet)
	private.HandleFunc("/users/requests", s.handleRequests).Methods(http.MethodGet)
	private.HandleFunc("/users/request/{id}", s.handleSendRequest).Methods(http.MethodPost)
	private.HandleFunc("/users/accept/{id}", s.handleAcceptRequest).Methods(http.MethodPost)
	private.HandleFunc("/users/recent", s.handleRecent).Methods(http.MethodGet)
	private.HandleFunc("/messages", s.handleCreateMessage).Methods(http.MethodPost)
	private.HandleFunc("/messages/{otherID}", s.handleHistory).Methods(http.MethodGet)
	private.HandleFunc("/messages/{otherID}/read", s.handleMarkRead).Methods(http.MethodPost)

	return r
}

func (s *Server) Start() error {
	s.log.Info("duochat server started", zap.String("addr", s.config.Addr))
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
