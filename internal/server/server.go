package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/server/handler"
	"github.com/alanyoungcy/predictmarket/internal/server/middleware"
	"github.com/alanyoungcy/predictmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // if empty, authentication is disabled
	SignatureSkew time.Duration
	RateLimit     int // requests per RateWindow per client IP; 0 disables
	RateWindow    time.Duration

	// ReplayGuard remembers accepted signatures; nil keeps them in process.
	ReplayGuard domain.ReplayGuard
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Keeper and Token may be nil.
type Handlers struct {
	Health    *handler.HealthHandler
	Market    *handler.MarketHandler
	Ownership *handler.OwnershipHandler
	Keeper    *handler.KeeperHandler
	Token     *handler.TokenHandler
}

// Server is the HTTP + WebSocket API of the prediction market.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and builds the middleware chain. Mutating
// routes require a request signature; reads do not. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	if cfg.SignatureSkew <= 0 {
		cfg.SignatureSkew = 5 * time.Minute
	}
	if cfg.ReplayGuard == nil {
		cfg.ReplayGuard = middleware.NewLocalReplayGuard()
	}
	mux := http.NewServeMux()
	signed := func(fn http.HandlerFunc) http.Handler {
		return middleware.Signature(cfg.SignatureSkew, cfg.ReplayGuard, nil)(fn)
	}

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Genesis and rounds.
	m := handlers.Market
	mux.Handle("POST /api/genesis/start", signed(m.GenesisStart))
	mux.Handle("POST /api/genesis/lock", signed(m.GenesisLock))
	mux.HandleFunc("GET /api/genesis/status", m.GenesisStatus)
	mux.Handle("POST /api/rounds/execute", signed(m.ExecuteRound))
	mux.HandleFunc("GET /api/rounds/current", m.CurrentRound)
	mux.HandleFunc("GET /api/rounds/{epoch}", m.GetRound)
	mux.HandleFunc("GET /api/rounds/{epoch}/bettable", m.Bettable)

	// Bets.
	mux.Handle("POST /api/bets", signed(m.PlaceBet))
	mux.HandleFunc("GET /api/bets/{epoch}/{user}", m.GetBet)
	mux.HandleFunc("GET /api/bets/{epoch}/{user}/payout", m.Payout)
	mux.HandleFunc("GET /api/users/{user}/rounds", m.UserRounds)

	// Flash loan and market reads.
	mux.Handle("POST /api/flash-loan", signed(m.FlashLoan))
	mux.HandleFunc("GET /api/oracle/price", m.OraclePrice)
	mux.HandleFunc("GET /api/market/config", m.Config)
	mux.HandleFunc("GET /api/market/treasury", m.Treasury)
	mux.HandleFunc("GET /api/events", m.Events)

	if k := handlers.Keeper; k != nil {
		mux.Handle("POST /api/cron/start", signed(k.Start))
		mux.Handle("POST /api/cron/pause", signed(k.Pause))
		mux.HandleFunc("GET /api/cron/status", k.Status)
	}

	// Ownership.
	o := handlers.Ownership
	mux.HandleFunc("GET /api/ownership", o.Status)
	mux.Handle("POST /api/ownership/transfer", signed(o.Transfer))
	mux.Handle("POST /api/ownership/accept", signed(o.Accept))
	mux.Handle("POST /api/ownership/renounce", signed(o.Renounce))

	if t := handlers.Token; t != nil {
		mux.HandleFunc("GET /api/token/balance/{addr}", t.Balance)
		mux.HandleFunc("GET /api/token/supply", t.Supply)
		mux.Handle("POST /api/token/approve", signed(t.Approve))
		mux.Handle("POST /api/token/transfer", signed(t.Transfer))
		mux.Handle("POST /api/token/mint", signed(t.Mint))
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler is the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Serve accepts connections on ln until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
