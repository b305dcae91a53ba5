package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kedeaceh/pos/internal/domain"
	"kedeaceh/pos/internal/store"
	"kedeaceh/pos/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `code, name, category, price, purchase_price, stock, min_stock, unit, supplier, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.Code, &p.Name, &p.Category, &p.Price, &p.PurchasePrice, &p.Stock, &p.MinStock, &p.Unit, &p.Supplier, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE code = $1
	`, code)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (code, name, category, price, purchase_price, stock, min_stock, unit, supplier, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
	`, product.Code, product.Name, product.Category, product.Price, product.PurchasePrice, product.Stock, product.MinStock, product.Unit, product.Supplier)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price = $4, purchase_price = $5, min_stock = $6, unit = $7, supplier = $8, updated_at = now()
		WHERE code = $1
		RETURNING `+productColumns+`
	`, product.Code, product.Name, product.Category, product.Price, product.PurchasePrice, product.MinStock, product.Unit, product.Supplier)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE code = $1`, code)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateSale decrements stock and records the transaction in one
// serializable database transaction. The conditional update on stock makes
// oversell impossible even under concurrent checkouts.
func (s *Store) CreateSale(ctx context.Context, saleTx domain.Transaction) (*domain.Transaction, error) {
	if len(saleTx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	if saleTx.ID == "" {
		saleTx.ID = xid.New("tx")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range saleTx.Items {
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = now()
			WHERE code = $1 AND stock >= $2
		`, item.Code, item.Quantity)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE code = $1)`, item.Code).Scan(&exists); err != nil {
				return nil, err
			}
			if !exists {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrInsufficientStock
		}
	}

	itemsJSON, err := json.Marshal(saleTx.Items)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, items, total, cash, transfer, change, kasir, type, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, saleTx.ID, itemsJSON, saleTx.Total, saleTx.Cash, saleTx.Transfer, saleTx.Change, saleTx.Kasir, saleTx.Type, saleTx.Timestamp)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := saleTx
	return &created, nil
}

const transactionColumns = `id, items, total, cash, transfer, change, kasir, type, ts`

func scanTransaction(row interface{ Scan(...any) error }) (domain.Transaction, error) {
	var tx domain.Transaction
	var itemsJSON []byte
	err := row.Scan(&tx.ID, &itemsJSON, &tx.Total, &tx.Cash, &tx.Transfer, &tx.Change, &tx.Kasir, &tx.Type, &tx.Timestamp)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := json.Unmarshal(itemsJSON, &tx.Items); err != nil {
		return domain.Transaction{}, err
	}
	tx.Timestamp = tx.Timestamp.UTC()
	return tx, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *Store) ListSales(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE type = 'sale' AND ts >= $1 AND ts <= $2
		ORDER BY ts DESC
	`, from, to)
}

func (s *Store) ListAllSales(ctx context.Context) ([]domain.Transaction, error) {
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE type = 'sale'
		ORDER BY ts DESC
	`)
}

func (s *Store) ListRecentSales(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 5
	}
	return s.queryTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE type = 'sale'
		ORDER BY ts DESC
		LIMIT $1
	`, limit)
}

func (s *Store) AdjustStock(ctx context.Context, code string, newStock int, entry domain.StockHistory) (*domain.Product, error) {
	if newStock < 0 {
		return nil, store.ErrInsufficientStock
	}
	if entry.ID == "" {
		entry.ID = xid.New("adj")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock = $2, updated_at = now()
		WHERE code = $1
		RETURNING `+productColumns+`
	`, code, newStock)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_history (id, product_code, product_name, old_stock, new_stock, adjustment, type, note, username, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.ProductCode, entry.ProductName, entry.OldStock, entry.NewStock, entry.Adjustment, entry.Type, entry.Note, entry.User, entry.Timestamp)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) ListStockHistory(ctx context.Context, code string, limit int) ([]domain.StockHistory, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_code, product_name, old_stock, new_stock, adjustment, type, note, username, ts
		FROM stock_history
		WHERE $1 = '' OR product_code = $1
		ORDER BY ts DESC
		LIMIT $2
	`, code, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.StockHistory, 0, limit)
	for rows.Next() {
		var entry domain.StockHistory
		if err := rows.Scan(&entry.ID, &entry.ProductCode, &entry.ProductName, &entry.OldStock, &entry.NewStock, &entry.Adjustment, &entry.Type, &entry.Note, &entry.User, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Timestamp = entry.Timestamp.UTC()
		history = append(history, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *Store) CreateDailyClosing(ctx context.Context, closing domain.DailyClosing) (*domain.DailyClosing, error) {
	if closing.ID == "" {
		closing.ID = xid.New("close")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_closings (id, date, total_sales, total_transactions, cash_total, transfer_total, profit, closed_by, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, closing.ID, closing.Date, closing.TotalSales, closing.TotalTransactions, closing.CashTotal, closing.TransferTotal, closing.Profit, closing.ClosedBy, closing.ClosedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := closing
	return &created, nil
}

func (s *Store) ListDailyClosings(ctx context.Context, limit int) ([]domain.DailyClosing, error) {
	if limit < 1 {
		limit = 31
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, total_sales, total_transactions, cash_total, transfer_total, profit, closed_by, closed_at
		FROM daily_closings
		ORDER BY date DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	closings := make([]domain.DailyClosing, 0, limit)
	for rows.Next() {
		var c domain.DailyClosing
		if err := rows.Scan(&c.ID, &c.Date, &c.TotalSales, &c.TotalTransactions, &c.CashTotal, &c.TransferTotal, &c.Profit, &c.ClosedBy, &c.ClosedAt); err != nil {
			return nil, err
		}
		c.ClosedAt = c.ClosedAt.UTC()
		closings = append(closings, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return closings, nil
}

func (s *Store) GetDailyClosing(ctx context.Context, date string) (*domain.DailyClosing, error) {
	var c domain.DailyClosing
	err := s.db.QueryRowContext(ctx, `
		SELECT id, date, total_sales, total_transactions, cash_total, transfer_total, profit, closed_by, closed_at
		FROM daily_closings
		WHERE date = $1
	`, date).Scan(&c.ID, &c.Date, &c.TotalSales, &c.TotalTransactions, &c.CashTotal, &c.TransferTotal, &c.Profit, &c.ClosedBy, &c.ClosedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.ClosedAt = c.ClosedAt.UTC()
	return &c, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password, role, display_name, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.Email, user.Password, user.Role, user.DisplayName, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT email, password, role, display_name, active, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&u.Email, &u.Password, &u.Role, &u.DisplayName, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email, password, role, display_name, active, created_at
		FROM users
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Email, &u.Password, &u.Role, &u.DisplayName, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, email string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE email = $1
	`, email, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
