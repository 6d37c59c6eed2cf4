package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/axonfi/axon/internal/engine"
	"github.com/axonfi/axon/internal/models"
)

// DB wraps a PostgreSQL connection pool. It implements the engine's
// AccountStore and persists orders, trades, and the insurance fund.
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// CreateAccount inserts a new account with the default starting balance
func (db *DB) CreateAccount(ctx context.Context, username, passwordHash, role string) (*models.Account, error) {
	acct := &models.Account{}
	err := db.Pool.QueryRow(ctx,
		"INSERT INTO accounts (username, password_hash, role) VALUES ($1, $2, $3) "+
			"RETURNING id, username, password_hash, role, balance, credit_score, esg_points, created_at",
		username, passwordHash, role).Scan(
		&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role,
		&acct.Balance, &acct.CreditScore, &acct.ESGPoints, &acct.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acct, nil
}

// GetAccount retrieves an account by ID
func (db *DB) GetAccount(ctx context.Context, id int) (*models.Account, error) {
	acct := &models.Account{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, role, balance, credit_score, esg_points, created_at "+
			"FROM accounts WHERE id = $1",
		id).Scan(
		&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role,
		&acct.Balance, &acct.CreditScore, &acct.ESGPoints, &acct.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, engine.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// GetAccountByUsername retrieves an account by username
func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	acct := &models.Account{}
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, role, balance, credit_score, esg_points, created_at "+
			"FROM accounts WHERE username = $1",
		username).Scan(
		&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Role,
		&acct.Balance, &acct.CreditScore, &acct.ESGPoints, &acct.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, engine.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return acct, nil
}

// Debit subtracts amount from a balance. It refuses to overdraw and
// returns engine.ErrInsufficientFunds instead.
func (db *DB) Debit(ctx context.Context, id int, amount decimal.Decimal) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE accounts SET balance = balance - $2 WHERE id = $1 AND balance >= $2",
		id, amount)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.Pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)", id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if !exists {
			return engine.ErrAccountNotFound
		}
		return engine.ErrInsufficientFunds
	}
	return nil
}

// Credit adds amount to a balance
func (db *DB) Credit(ctx context.Context, id int, amount decimal.Decimal) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE accounts SET balance = balance + $2 WHERE id = $1", id, amount)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrAccountNotFound
	}
	return nil
}

// AddESGPoints increments an account's ESG point balance
func (db *DB) AddESGPoints(ctx context.Context, id, points int) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE accounts SET esg_points = esg_points + $2 WHERE id = $1", id, points)
	if err != nil {
		return fmt.Errorf("failed to add esg points: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return engine.ErrAccountNotFound
	}
	return nil
}

// SaveOrder inserts an order admitted by the engine. The engine assigns
// order IDs, so the ID is written as-is.
func (db *DB) SaveOrder(ctx context.Context, order *models.Order) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO orders (id, user_id, side, band, rate, amount, status, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		order.ID, order.UserID, order.Side, order.Band, order.Rate, order.Amount, order.Status, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// UpdateOrder persists the post-match amount and status of an order
func (db *DB) UpdateOrder(ctx context.Context, id int, amount decimal.Decimal, status string) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE orders SET amount = $2, status = $3 WHERE id = $1", id, amount, status)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// UpdateOrderStatus updates an order's status only
func (db *DB) UpdateOrderStatus(ctx context.Context, id int, status string) error {
	_, err := db.Pool.Exec(ctx, "UPDATE orders SET status = $2 WHERE id = $1", id, status)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// GetUserOrders retrieves all orders for a user
func (db *DB) GetUserOrders(ctx context.Context, userID int) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, user_id, side, band, rate, amount, status, created_at "+
			"FROM orders WHERE user_id = $1 ORDER BY created_at DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// GetOpenOrders retrieves all open orders, oldest first, for rebuilding
// the in-memory book at startup
func (db *DB) GetOpenOrders(ctx context.Context) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, user_id, side, band, rate, amount, status, created_at "+
			"FROM orders WHERE status = 'open' ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.Side, &order.Band,
			&order.Rate, &order.Amount, &order.Status, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// CreateTrade inserts a trade produced by the engine
func (db *DB) CreateTrade(ctx context.Context, trade *models.Trade) error {
	_, err := db.Pool.Exec(ctx,
		"INSERT INTO trades (id, bid_order_id, ask_order_id, lender_id, borrower_id, rate, amount, interest, fee, premium, executed_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)",
		trade.ID, trade.BidOrderID, trade.AskOrderID, trade.LenderID, trade.BorrowerID,
		trade.Rate, trade.Amount, trade.Interest, trade.Fee, trade.Premium, trade.ExecutedAt)
	if err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	return nil
}

// SetTradeRating sets the optional rating on a trade. Only the lender
// or the borrower of the trade may rate it.
func (db *DB) SetTradeRating(ctx context.Context, tradeID, userID, rating int) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE trades SET rating = $3 WHERE id = $1 AND (lender_id = $2 OR borrower_id = $2)",
		tradeID, userID, rating)
	if err != nil {
		return fmt.Errorf("failed to set trade rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade not found or user not a counterparty")
	}
	return nil
}

// GetRecentTrades retrieves the most recent trades, newest first
func (db *DB) GetRecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, bid_order_id, ask_order_id, lender_id, borrower_id, rate, amount, interest, fee, premium, rating, executed_at "+
			"FROM trades ORDER BY executed_at DESC, id DESC LIMIT $1",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetUserTrades retrieves all trades a user participated in
func (db *DB) GetUserTrades(ctx context.Context, userID int) ([]models.Trade, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, bid_order_id, ask_order_id, lender_id, borrower_id, rate, amount, interest, fee, premium, rating, executed_at "+
			"FROM trades WHERE lender_id = $1 OR borrower_id = $1 ORDER BY executed_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]models.Trade, error) {
	var trades []models.Trade
	for rows.Next() {
		var trade models.Trade
		if err := rows.Scan(&trade.ID, &trade.BidOrderID, &trade.AskOrderID,
			&trade.LenderID, &trade.BorrowerID, &trade.Rate, &trade.Amount,
			&trade.Interest, &trade.Fee, &trade.Premium, &trade.Rating, &trade.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trades, nil
}

// InsuranceFund returns the persisted fund level
func (db *DB) InsuranceFund(ctx context.Context) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := db.Pool.QueryRow(ctx, "SELECT amount FROM insurance_fund WHERE id = 1").Scan(&amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get insurance fund: %w", err)
	}
	return amount, nil
}

// AddToInsuranceFund credits collected premiums to the persisted fund
func (db *DB) AddToInsuranceFund(ctx context.Context, delta decimal.Decimal) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE insurance_fund SET amount = amount + $1 WHERE id = 1", delta)
	if err != nil {
		return fmt.Errorf("failed to update insurance fund: %w", err)
	}
	return nil
}

// LastIDs returns the highest order and trade IDs in use, so the engine
// can continue the sequences after a restart
func (db *DB) LastIDs(ctx context.Context) (lastOrderID, lastTradeID int, err error) {
	err = db.Pool.QueryRow(ctx,
		"SELECT COALESCE((SELECT MAX(id) FROM orders), 0), COALESCE((SELECT MAX(id) FROM trades), 0)").
		Scan(&lastOrderID, &lastTradeID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get last ids: %w", err)
	}
	return lastOrderID, lastTradeID, nil
}
