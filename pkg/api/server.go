// Package api is the HTTP/WebSocket boundary in front of the matching
// engine: request parsing and validation, signature verification,
// error-to-status mapping and trade/orderbook broadcasting.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/stellarvault/matching-engine/pkg/core"
	"github.com/stellarvault/matching-engine/pkg/core/engine"
	"github.com/stellarvault/matching-engine/pkg/crypto"
)

// Server exposes the engine and the settlement client over REST and
// WebSocket.
type Server struct {
	engine     *engine.Engine
	settlement engine.SettlementClient
	router     *mux.Router
	hub        *Hub
	log        *zap.SugaredLogger
}

func NewServer(eng *engine.Engine, settlement engine.SettlementClient, log *zap.SugaredLogger) *Server {
	s := &Server{
		engine:     eng,
		settlement: settlement,
		router:     mux.NewRouter(),
		hub:        NewHub(log),
		log:        log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{order_id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{order_id}", s.handleCancelOrder).Methods("DELETE")
	api.HandleFunc("/orderbook/{pair:.*}", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/balances", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/settlement/submit", s.handleSubmitSettlement).Methods("POST")
	api.HandleFunc("/admin/balance-cache/clear", s.handleClearBalanceCache).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Infow("api server starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = uuid.NewString()
	}
	timestamp := req.Timestamp
	if timestamp == 0 {
		timestamp = time.Now().Unix()
	}

	order := &core.Order{
		OrderID:     orderID,
		UserAddress: req.UserAddress,
		AssetPair:   req.AssetPair,
		Side:        req.Side,
		Type:        req.OrderType,
		Price:       req.Price,
		Quantity:    req.Quantity,
		TimeInForce: req.TimeInForce,
		Timestamp:   timestamp,
		Expiration:  req.Expiration,
		Signature:   req.Signature,
		Status:      core.StatusPending,
	}

	if err := order.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	if !crypto.VerifyOrderSignature(order, req.Signature, req.UserAddress) {
		respondError(w, http.StatusUnauthorized, "invalid signature", "")
		return
	}

	trades, err := s.engine.SubmitOrder(r.Context(), order)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrInsufficientBalance):
			respondError(w, http.StatusPaymentRequired, "insufficient balance", err.Error())
		case errors.Is(err, core.ErrUnsupportedAssetPair):
			respondError(w, http.StatusBadRequest, "unsupported asset pair", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "order submission failed", err.Error())
		}
		return
	}

	s.broadcastTrades(r, trades)

	respondJSON(w, SubmitOrderResponse{
		OrderID: orderID,
		Status:  "submitted",
		Trades:  trades,
	})
}

// broadcastTrades pushes executed trades and the post-match book to
// websocket subscribers.
func (s *Server) broadcastTrades(r *http.Request, trades []core.Trade) {
	if len(trades) == 0 {
		return
	}
	for _, t := range trades {
		s.hub.Broadcast(ChannelTrades, t)
	}
	if snap, err := s.engine.Snapshot(r.Context(), core.AssetPair{}); err == nil {
		s.hub.Broadcast(ChannelOrderbook, snap)
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["order_id"]
	pair, err := parsePair(r.URL.Query().Get("asset_pair"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset_pair format", err.Error())
		return
	}

	order, err := s.engine.GetOrder(r.Context(), orderID, pair)
	if err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			respondError(w, http.StatusNotFound, "order not found", "")
			return
		}
		respondError(w, http.StatusInternalServerError, "order lookup failed", err.Error())
		return
	}
	respondJSON(w, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["order_id"]
	userAddress := r.URL.Query().Get("user_address")
	pair, err := parsePair(r.URL.Query().Get("asset_pair"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset_pair format", err.Error())
		return
	}

	if err := s.engine.CancelOrder(r.Context(), orderID, userAddress, pair); err != nil {
		if errors.Is(err, core.ErrUnauthorized) {
			respondError(w, http.StatusForbidden, "unauthorized", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "cancel failed", err.Error())
		return
	}
	respondJSON(w, CancelOrderResponse{Status: "cancelled"})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	pair, err := parsePair(mux.Vars(r)["pair"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pair format", err.Error())
		return
	}

	snap, err := s.engine.Snapshot(r.Context(), pair)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "snapshot failed", err.Error())
		return
	}
	respondJSON(w, snap)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userAddress := r.URL.Query().Get("user_address")
	token := r.URL.Query().Get("token")
	if userAddress == "" || token == "" {
		respondError(w, http.StatusBadRequest, "user_address and token are required", "")
		return
	}

	contractID, err := s.settlement.ResolveContractAddress(token)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "balance lookup failed", err.Error())
		return
	}
	balance, err := s.settlement.VaultBalance(r.Context(), userAddress, contractID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "balance lookup failed", err.Error())
		return
	}

	respondJSON(w, BalanceResponse{
		UserAddress: userAddress,
		Asset:       token,
		ContractID:  contractID,
		Balance:     strconv.FormatInt(balance, 10),
		BalanceRaw:  balance,
		Cached:      false,
	})
}

func (s *Server) handleSubmitSettlement(w http.ResponseWriter, r *http.Request) {
	var instr core.SettlementInstruction
	if err := json.NewDecoder(r.Body).Decode(&instr); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	txHash, err := s.settlement.SubmitSettlement(r.Context(), instr)
	if err != nil {
		respondError(w, http.StatusBadRequest, "settlement submission failed", err.Error())
		return
	}

	respondJSON(w, SettlementResponse{
		Status:          "submitted",
		TransactionHash: txHash,
		Message:         "settlement transaction signed and submitted",
	})
}

func (s *Server) handleClearBalanceCache(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearBalanceCache()
	respondJSON(w, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// parsePair accepts "BASE/QUOTE" or "BASE-QUOTE".
func parsePair(raw string) (core.AssetPair, error) {
	sep := "/"
	if !strings.Contains(raw, "/") {
		sep = "-"
	}
	parts := strings.Split(raw, sep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return core.AssetPair{}, fmt.Errorf("want BASE/QUOTE, got %q", raw)
	}
	return core.AssetPair{Base: parts[0], Quote: parts[1]}, nil
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func respondError(w http.ResponseWriter, status int, msg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Detail: detail})
}
