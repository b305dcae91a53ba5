package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kedeaceh/pos/internal/domain"
	"kedeaceh/pos/internal/store"
	"kedeaceh/pos/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	transactions   []domain.Transaction
	stockHistory   []domain.StockHistory
	closingsByDate map[string]domain.DailyClosing
	usersByEmail   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_OWNER_PASSWORD and SEED_KASIR_PASSWORD. If
// unset, hardcoded dev defaults are used with a warning printed to stdout.
// These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	kasirPwd := envOr("SEED_KASIR_PASSWORD", "kasir123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_KASIR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_KASIR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		email       string
		password    string
		role        string
		displayName string
	}{
		{"owner@kedeaceh.id", ownerPwd, domain.RoleOwner, "Pemilik Toko"},
		{"kasir@kedeaceh.id", kasirPwd, domain.RoleKasir, "Kasir Pagi"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users[u.email] = domain.UserAccount{
			Email:       u.email,
			Password:    string(hash),
			Role:        u.role,
			DisplayName: u.displayName,
			Active:      true,
			CreatedAt:   now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{Code: "MAK001", Name: "Mie Goreng Instan", Category: domain.CategoryFood, Price: 3500, PurchasePrice: 2800, Stock: 120, MinStock: 20, Unit: "pcs", Supplier: "PT Indofood"},
		{Code: "MAK002", Name: "Roti Tawar", Category: domain.CategoryFood, Price: 17800, PurchasePrice: 14000, Stock: 15, MinStock: 10, Unit: "pcs", Supplier: "Sari Roti"},
		{Code: "MIN001", Name: "Air Mineral 600ml", Category: domain.CategoryDrink, Price: 3900, PurchasePrice: 3000, Stock: 200, MinStock: 48, Unit: "btl", Supplier: "PT Aqua"},
		{Code: "MIN002", Name: "Teh Botol", Category: domain.CategoryDrink, Price: 5000, PurchasePrice: 4000, Stock: 60, MinStock: 24, Unit: "btl", Supplier: "Sosro"},
		{Code: "ROK001", Name: "Rokok Surya 12", Category: domain.CategoryCigarette, Price: 28000, PurchasePrice: 25500, Stock: 40, MinStock: 10, Unit: "bks", Supplier: "Gudang Garam"},
		{Code: "GAS001", Name: "Gas LPG 3kg", Category: domain.CategoryGas, Price: 23000, PurchasePrice: 19000, Stock: 8, MinStock: 5, Unit: "tabung", Supplier: "Pangkalan Gas"},
		{Code: "MNY001", Name: "Minyak Goreng 1L", Category: domain.CategoryOil, Price: 18500, PurchasePrice: 16000, Stock: 30, MinStock: 12, Unit: "btl", Supplier: "Bimoli"},
		{Code: "SEM001", Name: "Beras 5kg", Category: domain.CategoryStaples, Price: 68000, PurchasePrice: 61000, Stock: 25, MinStock: 8, Unit: "karung", Supplier: "Toko Beras Aceh"},
		{Code: "SEM002", Name: "Gula 1kg", Category: domain.CategoryStaples, Price: 17400, Stock: 0, MinStock: 10, Unit: "kg", Supplier: "Toko Beras Aceh"},
		{Code: "LAIN001", Name: "Sabun Mandi", Category: domain.CategoryOther, Price: 7400, PurchasePrice: 5900, Stock: 45, MinStock: 15, Unit: "pcs", Supplier: "Unilever"},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.Code] = p
	}

	return &Store{
		products:       productMap,
		transactions:   make([]domain.Transaction, 0, 128),
		stockHistory:   make([]domain.StockHistory, 0, 64),
		closingsByDate: make(map[string]domain.DailyClosing),
		usersByEmail:   seedUsers(),
	}
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProductByCode(_ context.Context, code string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.Code]; exists {
		return nil, store.ErrConflict
	}
	s.products[product.Code] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[product.Code]
	if !exists {
		return nil, store.ErrNotFound
	}
	product.Stock = current.Stock
	product.CreatedAt = current.CreatedAt
	s.products[product.Code] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[code]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, code)
	return nil
}

// CreateSale checks every line against current stock before touching
// anything, so a sale either lands completely or not at all.
func (s *Store) CreateSale(_ context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tx.Items) == 0 {
		return nil, store.ErrInvalidTransaction
	}
	for _, item := range tx.Items {
		product, exists := s.products[item.Code]
		if !exists {
			return nil, store.ErrNotFound
		}
		if product.Stock < item.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}
	for _, item := range tx.Items {
		product := s.products[item.Code]
		product.Stock -= item.Quantity
		product.UpdatedAt = tx.Timestamp
		s.products[item.Code] = product
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	s.transactions = append(s.transactions, tx)
	created := tx
	return &created, nil
}

func (s *Store) ListSales(_ context.Context, from, to time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, tx := range s.transactions {
		if tx.Timestamp.Before(from) || tx.Timestamp.After(to) {
			continue
		}
		out = append(out, tx)
	}
	sortByTimestampDesc(out)
	return out, nil
}

func (s *Store) ListAllSales(_ context.Context) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.transactions)
	sortByTimestampDesc(out)
	return out, nil
}

func (s *Store) ListRecentSales(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.transactions)
	sortByTimestampDesc(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AdjustStock(_ context.Context, code string, newStock int, entry domain.StockHistory) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[code]
	if !exists {
		return nil, store.ErrNotFound
	}
	if newStock < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.Stock = newStock
	product.UpdatedAt = entry.Timestamp
	s.products[code] = product

	if entry.ID == "" {
		entry.ID = xid.New("adj")
	}
	s.stockHistory = append(s.stockHistory, entry)
	updated := product
	return &updated, nil
}

func (s *Store) ListStockHistory(_ context.Context, code string, limit int) ([]domain.StockHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.StockHistory, 0)
	for _, entry := range s.stockHistory {
		if code != "" && entry.ProductCode != code {
			continue
		}
		out = append(out, entry)
	}
	slices.SortFunc(out, func(a, b domain.StockHistory) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateDailyClosing(_ context.Context, closing domain.DailyClosing) (*domain.DailyClosing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.closingsByDate[closing.Date]; exists {
		return nil, store.ErrConflict
	}
	if closing.ID == "" {
		closing.ID = xid.New("close")
	}
	s.closingsByDate[closing.Date] = closing
	created := closing
	return &created, nil
}

func (s *Store) ListDailyClosings(_ context.Context, limit int) ([]domain.DailyClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DailyClosing, 0, len(s.closingsByDate))
	for _, c := range s.closingsByDate {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.DailyClosing) int {
		return strings.Compare(b.Date, a.Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetDailyClosing(_ context.Context, date string) (*domain.DailyClosing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	closing, exists := s.closingsByDate[date]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyClosing := closing
	return &copyClosing, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[user.Email]; exists {
		return store.ErrConflict
	}
	s.usersByEmail[user.Email] = user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByEmail[email]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.usersByEmail))
	for _, u := range s.usersByEmail {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Email, b.Email)
	})
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, email string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByEmail[email]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByEmail[email] = user
	return nil
}

func sortByTimestampDesc(txs []domain.Transaction) {
	slices.SortFunc(txs, func(a, b domain.Transaction) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
