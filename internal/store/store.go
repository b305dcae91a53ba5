package store

import (
	"context"
	"errors"
	"time"

	"kedeaceh/pos/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// Repository is the persistence port. Sale reads come in two shapes: a
// window query for the period reports and a full scan for all-time
// rankings.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByCode(ctx context.Context, code string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, code string) error

	// CreateSale persists the transaction and decrements stock for every
	// line in one atomic step. If any product lacks stock the whole sale
	// fails with ErrInsufficientStock and nothing is written.
	CreateSale(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error)
	ListSales(ctx context.Context, from, to time.Time) ([]domain.Transaction, error)
	ListAllSales(ctx context.Context) ([]domain.Transaction, error)
	ListRecentSales(ctx context.Context, limit int) ([]domain.Transaction, error)

	AdjustStock(ctx context.Context, code string, newStock int, entry domain.StockHistory) (*domain.Product, error)
	ListStockHistory(ctx context.Context, code string, limit int) ([]domain.StockHistory, error)

	CreateDailyClosing(ctx context.Context, closing domain.DailyClosing) (*domain.DailyClosing, error)
	ListDailyClosings(ctx context.Context, limit int) ([]domain.DailyClosing, error)
	GetDailyClosing(ctx context.Context, date string) (*domain.DailyClosing, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, email string, password string) error
}
