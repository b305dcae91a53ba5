package domain

import "time"

type Product struct {
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Price         float64   `json:"price"`
	PurchasePrice float64   `json:"purchase_price"`
	Stock         int       `json:"stock"`
	MinStock      int       `json:"min_stock"`
	Unit          string    `json:"unit"`
	Supplier      string    `json:"supplier"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	Price         float64 `json:"price"`
	PurchasePrice float64 `json:"purchase_price"`
	Stock         int     `json:"stock"`
	MinStock      int     `json:"min_stock"`
	Unit          string  `json:"unit"`
	Supplier      string  `json:"supplier"`
}

type ProductUpdateRequest struct {
	Name          *string  `json:"name,omitempty"`
	Category      *string  `json:"category,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	MinStock      *int     `json:"min_stock,omitempty"`
	Unit          *string  `json:"unit,omitempty"`
	Supplier      *string  `json:"supplier,omitempty"`
}

// LineItem is the immutable snapshot of a product at sale time. Later price
// or name edits on the catalog never rewrite history.
type LineItem struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Unit     string  `json:"unit"`
}

type Transaction struct {
	ID        string     `json:"id"`
	Items     []LineItem `json:"items"`
	Total     float64    `json:"total"`
	Cash      float64    `json:"cash"`
	Transfer  float64    `json:"transfer"`
	Change    float64    `json:"change"`
	Kasir     string     `json:"kasir"`
	Type      string     `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
}

type CartItem struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

type CheckoutRequest struct {
	Items    []CartItem `json:"items"`
	Cash     float64    `json:"cash"`
	Transfer float64    `json:"transfer"`
	Kasir    string     `json:"kasir"`
}

type CheckoutResponse struct {
	Transaction Transaction `json:"transaction"`
}

type StockAdjustRequest struct {
	Code   string `json:"code"`
	Amount int    `json:"amount"`
	Type   string `json:"type"`
	Note   string `json:"note"`
}

type StockHistory struct {
	ID          string    `json:"id"`
	ProductCode string    `json:"product_code"`
	ProductName string    `json:"product_name"`
	OldStock    int       `json:"old_stock"`
	NewStock    int       `json:"new_stock"`
	Adjustment  int       `json:"adjustment"`
	Type        string    `json:"type"`
	Note        string    `json:"note"`
	User        string    `json:"user"`
	Timestamp   time.Time `json:"timestamp"`
}

type DailyClosing struct {
	ID                string    `json:"id"`
	Date              string    `json:"date"`
	TotalSales        float64   `json:"total_sales"`
	TotalTransactions int       `json:"total_transactions"`
	CashTotal         float64   `json:"cash_total"`
	TransferTotal     float64   `json:"transfer_total"`
	Profit            float64   `json:"profit"`
	ClosedBy          string    `json:"closed_by"`
	ClosedAt          time.Time `json:"closed_at"`
}

type DailyClosingRequest struct {
	Date string `json:"date"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Email       string
	Role        string
	DisplayName string
}

type UserCreateRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
}

type UserInfo struct {
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Email       string
	Password    string
	Role        string
	DisplayName string
	Active      bool
	CreatedAt   time.Time
}

const (
	TxTypeSale = "sale"
)

const (
	StockAdjustAdd    = "add"
	StockAdjustRemove = "remove"
)

const (
	RoleOwner = "owner"
	RoleKasir = "kasir"
)

// Categories recognized by the catalog. Anything else normalizes to
// CategoryOther.
const (
	CategoryFood      = "makanan"
	CategoryDrink     = "minuman"
	CategoryCigarette = "rokok"
	CategoryGas       = "gas"
	CategoryOil       = "minyak"
	CategoryStaples   = "sembako"
	CategoryOther     = "lainnya"
)

func ValidCategory(c string) bool {
	switch c {
	case CategoryFood, CategoryDrink, CategoryCigarette, CategoryGas, CategoryOil, CategoryStaples, CategoryOther:
		return true
	}
	return false
}
