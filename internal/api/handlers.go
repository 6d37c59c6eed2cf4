package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/axonfi/axon/internal/auth"
	"github.com/axonfi/axon/internal/db"
	"github.com/axonfi/axon/internal/engine"
	"github.com/axonfi/axon/internal/models"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	DB          *db.DB
	Engine      *engine.Engine
	AuthService *auth.AuthService

	// Broadcast, when set, is called after every book mutation
	Broadcast func()
}

// NewHandler creates a new handler
func NewHandler(database *db.DB, eng *engine.Engine, authService *auth.AuthService) *Handler {
	return &Handler{DB: database, Engine: eng, AuthService: authService}
}

func (h *Handler) bookChanged() {
	if h.Broadcast != nil {
		h.Broadcast()
	}
}

// Register handles account registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error": "Username and password required"}`, http.StatusBadRequest)
		return
	}

	acct, err := h.AuthService.Register(r.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		http.Error(w, `{"error": "Failed to register account"}`, http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":       acct.ID,
		"username": acct.Username,
		"role":     acct.Role,
		"balance":  acct.Balance,
	})
}

// Login handles account login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		// Add user_id to context
		ctx := context.WithValue(r.Context(), "user_id", userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlaceOrder handles order admission and the matching pass it triggers
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Side   string          `json:"side"`
		Band   string          `json:"band"`
		Amount decimal.Decimal `json:"amount"`
		ESG    bool            `json:"esg"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	placement, err := h.Engine.PlaceOrder(r.Context(), engine.PlaceRequest{
		UserID: userID,
		Side:   models.Side(req.Side),
		Band:   models.RateBand(req.Band),
		Amount: req.Amount,
		ESG:    req.ESG,
	})
	if err != nil {
		switch {
		case engine.IsValidation(err):
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
		case engine.IsEligibility(err):
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusUnprocessableEntity)
		case errors.Is(err, engine.ErrAccountNotFound):
			http.Error(w, `{"error": "Account not found"}`, http.StatusNotFound)
		default:
			log.Printf("Failed to place order: %v", err)
			http.Error(w, `{"error": "Failed to place order"}`, http.StatusInternalServerError)
		}
		return
	}

	if err := h.persistPlacement(r.Context(), placement); err != nil {
		log.Printf("Failed to persist placement: %v", err)
		http.Error(w, `{"error": "Failed to record placement"}`, http.StatusInternalServerError)
		return
	}

	h.bookChanged()

	message := "no match"
	if placement.Matched() {
		message = "order matched"
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":    message,
		"orders":     placement.Admitted,
		"trades":     placement.Trades,
		"skipped":    placement.Skipped,
		"esg_points": placement.ESGPoints,
	})
}

// persistPlacement writes the engine's results to the database: admitted
// orders, trades, post-match order state, and collected premiums.
func (h *Handler) persistPlacement(ctx context.Context, p *engine.Placement) error {
	for i := range p.Admitted {
		if err := h.DB.SaveOrder(ctx, &p.Admitted[i]); err != nil {
			return err
		}
	}
	for i := range p.Trades {
		if err := h.DB.CreateTrade(ctx, &p.Trades[i]); err != nil {
			return err
		}
	}
	for _, o := range p.Updated {
		if err := h.DB.UpdateOrder(ctx, o.ID, o.Amount, o.Status); err != nil {
			return err
		}
	}
	if p.FundDelta.IsPositive() {
		if err := h.DB.AddToInsuranceFund(ctx, p.FundDelta); err != nil {
			return err
		}
	}
	return nil
}

// CancelOrder cancels a resting order
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	// Get order ID from URL
	orderIDStr := chi.URLParam(r, "id")
	orderID, err := strconv.Atoi(orderIDStr)
	if err != nil {
		http.Error(w, `{"error": "Invalid order ID"}`, http.StatusBadRequest)
		return
	}

	// Remove from the book first; the engine is the source of truth
	// for resting orders.
	_, err = h.Engine.Cancel(orderID, userID)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrOrderNotFound):
			http.Error(w, `{"error": "Order not found"}`, http.StatusNotFound)
		case errors.Is(err, engine.ErrNotOrderOwner):
			http.Error(w, `{"error": "Order not owned by user"}`, http.StatusForbidden)
		default:
			http.Error(w, `{"error": "Failed to cancel order"}`, http.StatusInternalServerError)
		}
		return
	}

	if err := h.DB.UpdateOrderStatus(r.Context(), orderID, "canceled"); err != nil {
		log.Printf("Failed to persist cancellation of order %d: %v", orderID, err)
	}

	h.bookChanged()

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Order canceled"})
}

// GetUserOrders retrieves the caller's orders
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orders, err := h.DB.GetUserOrders(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve orders"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(orders)
}

// GetOrderBook retrieves a consistent snapshot of the book
func (h *Handler) GetOrderBook(w http.ResponseWriter, r *http.Request) {
	asks, bids := h.Engine.BookSnapshot()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"asks": asks,
		"bids": bids,
	})
}

// GetUserTrades retrieves the caller's trade history
func (h *Handler) GetUserTrades(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	trades, err := h.DB.GetUserTrades(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve trades"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(trades)
}

// GetRecentTrades retrieves the latest trades across the market
func (h *Handler) GetRecentTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, `{"error": "Invalid limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}

	trades, err := h.DB.GetRecentTrades(r.Context(), limit)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve trades"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(trades)
}

// RateTrade sets the optional rating on one of the caller's trades
func (h *Handler) RateTrade(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	tradeID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid trade ID"}`, http.StatusBadRequest)
		return
	}

	var req struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		http.Error(w, `{"error": "Rating must be between 1 and 5"}`, http.StatusBadRequest)
		return
	}

	if err := h.DB.SetTradeRating(r.Context(), tradeID, userID, req.Rating); err != nil {
		http.Error(w, `{"error": "Failed to rate trade: `+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Trade rated"})
}

// GetAccount retrieves the caller's wallet view
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	acct, err := h.DB.GetAccount(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve account"}`, http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":           acct.ID,
		"username":     acct.Username,
		"role":         acct.Role,
		"balance":      acct.Balance,
		"credit_score": acct.CreditScore,
		"esg_points":   acct.ESGPoints,
		"badge_level":  acct.BadgeLevel(),
	})
}

// Deposit credits the caller's balance
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, false)
}

// Withdraw debits the caller's balance, refusing overdrafts
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, true)
}

func (h *Handler) moveFunds(w http.ResponseWriter, r *http.Request, withdraw bool) {
	userID, ok := r.Context().Value("user_id").(int)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, `{"error": "Amount must be positive"}`, http.StatusBadRequest)
		return
	}

	var err error
	if withdraw {
		err = h.DB.Debit(r.Context(), userID, req.Amount)
	} else {
		err = h.DB.Credit(r.Context(), userID, req.Amount)
	}
	if err != nil {
		if errors.Is(err, engine.ErrInsufficientFunds) {
			http.Error(w, `{"error": "Insufficient funds"}`, http.StatusBadRequest)
			return
		}
		http.Error(w, `{"error": "Failed to update balance"}`, http.StatusInternalServerError)
		return
	}

	acct, err := h.DB.GetAccount(r.Context(), userID)
	if err != nil {
		http.Error(w, `{"error": "Failed to retrieve account"}`, http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"balance": acct.Balance})
}

// GetInsuranceFund reports the pooled premium level
func (h *Handler) GetInsuranceFund(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"amount": h.Engine.InsuranceFund(),
	})
}
