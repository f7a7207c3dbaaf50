// Package api is a read-only HTTP and WebSocket gateway over the exchange
// queries. It never signs or sends transactions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexkit/params"
	"github.com/uhyunpark/dexkit/pkg/contracts"
	"github.com/uhyunpark/dexkit/pkg/ops"
	"github.com/uhyunpark/dexkit/pkg/units"
)

// Reader is the query side of ops.Runner.
type Reader interface {
	IsPaused(ctx context.Context) (bool, error)
	PairStatus(ctx context.Context, base, secondary common.Address) (contracts.PairStatus, error)
	TickStage(ctx context.Context, base, secondary common.Address) (contracts.TickStage, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Balance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Status(ctx context.Context) (ops.DexStatus, error)
}

var _ Reader = (*ops.Runner)(nil)

// Server handles REST API and WebSocket connections
type Server struct {
	reader  Reader
	profile params.NetworkProfile
	origins []string
	router  *mux.Router
	hub     *Hub
	log     *zap.SugaredLogger

	queryTimeout time.Duration
}

func NewServer(reader Reader, profile params.NetworkProfile, gw params.Gateway, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		reader:       reader,
		profile:      profile,
		origins:      gw.AllowedOrigins,
		router:       mux.NewRouter(),
		hub:          NewHub(log),
		log:          log,
		queryTimeout: 15 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Exchange endpoints
	api.HandleFunc("/dex/paused", s.handleGetPaused).Methods("GET")
	api.HandleFunc("/dex/status", s.handleGetDexStatus).Methods("GET")

	// Pair endpoints
	api.HandleFunc("/pairs/{base}/{secondary}/status", s.handleGetPairStatus).Methods("GET")
	api.HandleFunc("/pairs/{base}/{secondary}/tick-stage", s.handleGetTickStage).Methods("GET")

	// Token endpoints
	api.HandleFunc("/tokens/{token}/allowance", s.handleGetAllowance).Methods("GET")
	api.HandleFunc("/tokens/{token}/balance", s.handleGetBalance).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler is the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

func (s *Server) Hub() *Hub { return s.hub }

// Start serves addr until ctx is cancelled. Pair subscribers get a fresh
// snapshot every pollInterval.
func (s *Server) Start(ctx context.Context, addr string, pollInterval time.Duration) error {
	go s.hub.Run(ctx)
	go s.RunPoller(ctx, pollInterval)

	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("gateway_listening", "addr", addr, "network", s.profile.Name)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.log.Infow("gateway_stopped")
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetPaused(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()

	paused, err := s.reader.IsPaused(ctx)
	if err != nil {
		s.respondQueryError(w, "paused", err)
		return
	}
	respondJSON(w, PausedInfo{Paused: paused})
}

func (s *Server) handleGetDexStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()

	status, err := s.reader.Status(ctx)
	if err != nil {
		s.respondQueryError(w, "status", err)
		return
	}
	respondJSON(w, newDexStatusInfo(status))
}

func (s *Server) handleGetPairStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	base, secondary, err := s.pair(vars["base"], vars["secondary"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pair", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()

	status, err := s.reader.PairStatus(ctx, base, secondary)
	if err != nil {
		s.respondQueryError(w, "pair status", err)
		return
	}
	respondJSON(w, newPairStatusInfo(base.Hex(), secondary.Hex(), status))
}

func (s *Server) handleGetTickStage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	base, secondary, err := s.pair(vars["base"], vars["secondary"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pair", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()

	stage, err := s.reader.TickStage(ctx, base, secondary)
	if err != nil {
		s.respondQueryError(w, "tick stage", err)
		return
	}
	respondJSON(w, TickStageInfo{Base: base.Hex(), Secondary: secondary.Hex(), Stage: stage, Value: uint8(stage)})
}

func (s *Server) handleGetAllowance(w http.ResponseWriter, r *http.Request) {
	token, err := s.profile.Token(mux.Vars(r)["token"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid token", err.Error())
		return
	}
	q := r.URL.Query()
	owner, err := s.profile.Address(q.Get("owner"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner", err.Error())
		return
	}
	spender := s.profile.Dex
	if raw := q.Get("spender"); raw != "" {
		if spender, err = s.profile.Address(raw); err != nil {
			respondError(w, http.StatusBadRequest, "invalid spender", err.Error())
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()

	amount, err := s.reader.Allowance(ctx, token, owner, spender)
	if err != nil {
		s.respondQueryError(w, "allowance", err)
		return
	}
	respondJSON(w, AmountInfo{
		Token:   token.Hex(),
		Owner:   owner.Hex(),
		Spender: spender.Hex(),
		Amount:  units.FromWei(amount),
		BaseRaw: intStr(amount),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	token, err := s.profile.Token(mux.Vars(r)["token"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid token", err.Error())
		return
	}
	owner, err := s.profile.Address(r.URL.Query().Get("owner"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()

	amount, err := s.reader.Balance(ctx, token, owner)
	if err != nil {
		s.respondQueryError(w, "balance", err)
		return
	}
	respondJSON(w, AmountInfo{Token: token.Hex(), Owner: owner.Hex(), Amount: units.FromWei(amount), BaseRaw: intStr(amount)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok", "network": s.profile.Name})
}

// ==============================
// Broadcast
// ==============================

// RunPoller pushes pair snapshots to subscribers until ctx is cancelled.
func (s *Server) RunPoller(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce queries every subscribed pair once and broadcasts the result.
func (s *Server) PollOnce(ctx context.Context) {
	for _, channel := range s.hub.Channels() {
		base, secondary, err := s.parseChannel(channel)
		if err != nil {
			s.log.Debugw("ws_channel_skipped", "channel", channel, "error", err)
			continue
		}
		qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		status, err := s.reader.PairStatus(qctx, base, secondary)
		var stage contracts.TickStage
		if err == nil {
			stage, err = s.reader.TickStage(qctx, base, secondary)
		}
		cancel()
		if err != nil {
			s.log.Warnw("ws_poll_failed", "channel", channel, "error", err)
			continue
		}
		s.hub.BroadcastToChannel(channel, PairUpdate{
			Type:      "pair",
			Channel:   channel,
			Status:    newPairStatusInfo(base.Hex(), secondary.Hex(), status),
			Stage:     stage,
			Timestamp: nowMillis(),
		})
	}
}

// parseChannel accepts "pair:<base>:<secondary>", tokens as symbols or addresses.
func (s *Server) parseChannel(channel string) (common.Address, common.Address, error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != "pair" {
		return common.Address{}, common.Address{}, fmt.Errorf("unknown channel %q", channel)
	}
	return s.pair(parts[1], parts[2])
}

func (s *Server) pair(base, secondary string) (common.Address, common.Address, error) {
	b, err := s.profile.Token(base)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	sec, err := s.profile.Token(secondary)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return b, sec, nil
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) respondQueryError(w http.ResponseWriter, what string, err error) {
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	s.log.Warnw("query_failed", "query", what, "error", err)
	respondError(w, status, what+" query failed", err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func intStr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
