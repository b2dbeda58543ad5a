package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"curveLaunch/internal/events"
	"curveLaunch/internal/market"
	"curveLaunch/internal/model"
)

// Market is the read-only surface the server exposes.
type Market interface {
	GetPool(id common.Address) (*model.Pool, error)
	GetPools() []*model.Pool
	GetCurrentPrice(ctx context.Context, id common.Address) (uint64, error)
	CalculatePurchaseReturn(ctx context.Context, id common.Address, deposit uint64) (market.Quote, error)
	CalculateSaleReturn(ctx context.Context, id common.Address, amount uint64) (market.Quote, error)
	GetFees() model.FeeConfig
	GetAdmin() common.Address
	GetOracle() model.OracleState
	GetLiquidity() model.LiquidityTotals
	GetMarketCapUSD(ctx context.Context, id common.Address) (decimal.Decimal, error)
	IsMigrationThresholdReached(ctx context.Context, id common.Address) (bool, error)
	Journal() *events.Journal
}

// Error codes returned in the error body.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodePoolNotFound  = "POOL_NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// ApiError is the body of every non-2xx response.
type ApiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Options configures a Server.
type Options struct {
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Logger         *zap.Logger
}

// Server serves market queries over HTTP.
type Server struct {
	market  Market
	router  *mux.Router
	handler http.Handler
	opts    Options
	logger  *zap.Logger
}

func NewServer(m Market, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		market: m,
		router: mux.NewRouter(),
		opts:   opts,
		logger: opts.Logger,
	}
	s.routes()

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) routes() {
	r := s.router.PathPrefix("/api/v1").Subrouter()
	r.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	r.HandleFunc("/market", s.handleMarket()).Methods(http.MethodGet)
	r.HandleFunc("/pools", s.handlePools()).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}", s.handlePool()).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}/quote/buy", s.handleQuote(true)).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}/quote/sell", s.handleQuote(false)).Methods(http.MethodGet)
	r.HandleFunc("/pools/{id}/migration", s.handleMigration()).Methods(http.MethodGet)
	r.HandleFunc("/events", s.handleEvents()).Methods(http.MethodGet)
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

type poolView struct {
	*model.Pool
	CurrentPrice uint64 `json:"current_price,string"`
	MarketCapUSD string `json:"market_cap_usd"`
}

type marketView struct {
	Admin     common.Address        `json:"admin"`
	Fees      model.FeeConfig       `json:"fees"`
	Oracle    model.OracleState     `json:"oracle"`
	Liquidity model.LiquidityTotals `json:"liquidity"`
	Available uint64                `json:"available,string"`
	PoolCount int                   `json:"pool_count"`
}

type eventView struct {
	Seq       uint64      `json:"seq"`
	Name      string      `json:"name"`
	Address   string      `json:"address"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

func (s *Server) handleMarket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		liquidity := s.market.GetLiquidity()
		writeJSON(w, http.StatusOK, marketView{
			Admin:     s.market.GetAdmin(),
			Fees:      s.market.GetFees(),
			Oracle:    s.market.GetOracle(),
			Liquidity: liquidity,
			Available: liquidity.Available(),
			PoolCount: len(s.market.GetPools()),
		})
	}
}

func (s *Server) handlePools() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"pools": s.market.GetPools()})
	}
}

func (s *Server) handlePool() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.poolID(w, r)
		if !ok {
			return
		}
		pool, err := s.market.GetPool(id)
		if err != nil {
			s.writeMarketError(w, err)
			return
		}
		price, err := s.market.GetCurrentPrice(r.Context(), id)
		if err != nil {
			s.writeMarketError(w, err)
			return
		}
		capUSD, err := s.market.GetMarketCapUSD(r.Context(), id)
		if err != nil {
			s.writeMarketError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, poolView{Pool: pool, CurrentPrice: price, MarketCapUSD: capUSD.StringFixed(2)})
	}
}

func (s *Server) handleQuote(buy bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.poolID(w, r)
		if !ok {
			return
		}
		amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
		if err != nil || amount == 0 {
			writeJSONError(w, http.StatusBadRequest, ErrCodeInvalidInput, "amount must be a positive integer in base units")
			return
		}

		var quote market.Quote
		if buy {
			quote, err = s.market.CalculatePurchaseReturn(r.Context(), id, amount)
		} else {
			quote, err = s.market.CalculateSaleReturn(r.Context(), id, amount)
		}
		if err != nil {
			s.writeMarketError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, quote)
	}
}

func (s *Server) handleMigration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.poolID(w, r)
		if !ok {
			return
		}
		pool, err := s.market.GetPool(id)
		if err != nil {
			s.writeMarketError(w, err)
			return
		}
		reached, err := s.market.IsMigrationThresholdReached(r.Context(), id)
		if err != nil {
			s.writeMarketError(w, err)
			return
		}
		capUSD, err := s.market.GetMarketCapUSD(r.Context(), id)
		if err != nil {
			s.writeMarketError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"pool":              id,
			"is_active":         pool.Curve.IsActive,
			"threshold_reached": reached,
			"market_cap_usd":    capUSD.StringFixed(2),
			"threshold_usd":     strconv.FormatUint(pool.Settings.MarketCapThresholdUSD, 10),
			"settings":          pool.Settings,
		})
	}
}

func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var since uint64
		if raw := r.URL.Query().Get("since"); raw != "" {
			v, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, ErrCodeInvalidInput, "since must be a sequence number")
				return
			}
			since = v
		}
		name := r.URL.Query().Get("name")

		entries := s.market.Journal().Since(since)
		out := make([]eventView, 0, len(entries))
		for _, e := range entries {
			if name != "" && e.Name != name {
				continue
			}
			out = append(out, eventView{
				Seq:       e.Seq,
				Name:      e.Name,
				Address:   e.Address.Hex(),
				Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
				Payload:   e.Payload,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
	}
}

func (s *Server) poolID(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["id"]
	if !common.IsHexAddress(raw) {
		writeJSONError(w, http.StatusBadRequest, ErrCodeInvalidInput, fmt.Sprintf("invalid pool id %q", raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) writeMarketError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrPoolNotFound):
		writeJSONError(w, http.StatusNotFound, ErrCodePoolNotFound, err.Error())
	case errors.Is(err, market.ErrValidation), errors.Is(err, market.ErrInsufficientSupply):
		writeJSONError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error())
	default:
		s.logger.Error("query failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]ApiError{"error": {Code: code, Message: message}})
}
