package domain

import (
	"time"

	"studiobook/backend/internal/finance"
)

const (
	RoleOwner = "owner"
	RoleStaff = "staff"
)

const (
	BookingScheduled = "scheduled"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

var PaymentMethods = []string{"cash", "card", "transfer", "booksy", "other"}

type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ClientCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

type ClientUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
	Notes *string `json:"notes,omitempty"`
}

type Service struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	BasePrice       float64   `json:"base_price"`
	DurationMinutes int       `json:"duration_minutes"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

type ServiceCreateRequest struct {
	Name            string  `json:"name"`
	BasePrice       float64 `json:"base_price"`
	DurationMinutes int     `json:"duration_minutes"`
}

type ServiceUpdateRequest struct {
	Name            *string  `json:"name,omitempty"`
	BasePrice       *float64 `json:"base_price,omitempty"`
	DurationMinutes *int     `json:"duration_minutes,omitempty"`
	Active          *bool    `json:"active,omitempty"`
}

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	SalePrice float64   `json:"sale_price"`
	Cost      float64   `json:"cost"`
	StockQty  int       `json:"stock_qty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	SalePrice float64 `json:"sale_price"`
	Cost      float64 `json:"cost"`
	StockQty  int     `json:"stock_qty"`
}

type ProductUpdateRequest struct {
	Name      *string  `json:"name,omitempty"`
	Category  *string  `json:"category,omitempty"`
	SalePrice *float64 `json:"sale_price,omitempty"`
	Cost      *float64 `json:"cost,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

type StockAdjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type BookingService struct {
	ID        string   `json:"id"`
	ServiceID string   `json:"service_id"`
	Price     *float64 `json:"price"`
}

type BookingProduct struct {
	ID            string   `json:"id"`
	ProductID     string   `json:"product_id"`
	Qty           int      `json:"qty"`
	PriceOverride *float64 `json:"price_override,omitempty"`
}

type BookingBrokenItem struct {
	ID           string   `json:"id"`
	ProductID    string   `json:"product_id"`
	Qty          int      `json:"qty"`
	CostOverride *float64 `json:"cost_override,omitempty"`
}

// BookingSnapshot caches the derived figures as of the last save.
type BookingSnapshot struct {
	ServicePrice   float64 `json:"service_price"`
	ProductRevenue float64 `json:"product_revenue"`
	TotalCosts     float64 `json:"total_costs"`
	Profit         float64 `json:"profit"`
}

type Booking struct {
	ID                   string              `json:"id"`
	ClientID             string              `json:"client_id"`
	StartsAt             time.Time           `json:"starts_at"`
	DurationMinutes      int                 `json:"duration_minutes"`
	Status               string              `json:"status"`
	Notes                string              `json:"notes,omitempty"`
	IsModel              bool                `json:"is_model"`
	TravelEnabled        bool                `json:"travel_enabled"`
	TravelFee            *float64            `json:"travel_fee,omitempty"`
	TaxEnabled           bool                `json:"tax_enabled"`
	BooksyFeeEnabled     bool                `json:"booksy_fee_enabled"`
	BrokenEarringEnabled bool                `json:"broken_earring_enabled"`
	TotalPaid            *float64            `json:"total_paid,omitempty"`
	PaymentMethod        string              `json:"payment_method,omitempty"`
	Services             []BookingService    `json:"services"`
	Products             []BookingProduct    `json:"products"`
	Broken               []BookingBrokenItem `json:"broken"`
	Snapshot             BookingSnapshot     `json:"snapshot"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

type BookingRequest struct {
	ClientID             string              `json:"client_id"`
	StartsAt             time.Time           `json:"starts_at"`
	Status               string              `json:"status"`
	Notes                string              `json:"notes"`
	IsModel              bool                `json:"is_model"`
	TravelEnabled        bool                `json:"travel_enabled"`
	TravelFee            *float64            `json:"travel_fee"`
	TaxEnabled           bool                `json:"tax_enabled"`
	BooksyFeeEnabled     bool                `json:"booksy_fee_enabled"`
	BrokenEarringEnabled bool                `json:"broken_earring_enabled"`
	TotalPaid            *float64            `json:"total_paid"`
	PaymentMethod        string              `json:"payment_method"`
	Services             []BookingService    `json:"services"`
	Products             []BookingProduct    `json:"products"`
	Broken               []BookingBrokenItem `json:"broken"`
}

type FinancialView struct {
	Summary      finance.Summary `json:"summary"`
	ProfitsMatch bool            `json:"profits_match"`
	Profit       *float64        `json:"profit,omitempty"`
}

type ServiceLineView struct {
	BookingService
	Name            string  `json:"name"`
	BasePrice       float64 `json:"base_price"`
	PriceOverridden bool    `json:"price_overridden"`
}

type ProductLineView struct {
	BookingProduct
	Name            string  `json:"name"`
	SalePrice       float64 `json:"sale_price"`
	Cost            float64 `json:"cost"`
	PriceOverridden bool    `json:"price_overridden"`
}

type BrokenLineView struct {
	BookingBrokenItem
	Name           string  `json:"name"`
	Cost           float64 `json:"cost"`
	CostOverridden bool    `json:"cost_overridden"`
}

type BookingDetail struct {
	Booking    Booking           `json:"booking"`
	Client     Client            `json:"client"`
	Services   []ServiceLineView `json:"services"`
	Products   []ProductLineView `json:"products"`
	Broken     []BrokenLineView  `json:"broken"`
	Financials FinancialView     `json:"financials"`
}

type BookingListItem struct {
	ID            string        `json:"id"`
	ClientID      string        `json:"client_id"`
	ClientName    string        `json:"client_name"`
	StartsAt      time.Time     `json:"starts_at"`
	EndsAt        time.Time     `json:"ends_at"`
	Status        string        `json:"status"`
	IsModel       bool          `json:"is_model"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	Financials    FinancialView `json:"financials"`
}

type BookingListResponse struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Bookings []BookingListItem `json:"bookings"`
}

type ModelPricingRequest struct {
	IsModel  bool             `json:"is_model"`
	Services []BookingService `json:"services"`
}

type ModelPricingResponse struct {
	IsModel  bool             `json:"is_model"`
	Services []BookingService `json:"services"`
}

type AdditionalCost struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	IncurredOn  time.Time `json:"incurred_on"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type AdditionalCostRequest struct {
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	IncurredOn  string  `json:"incurred_on"`
	Notes       string  `json:"notes"`
}

type AdditionalCostUpdateRequest struct {
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	IncurredOn  *string  `json:"incurred_on,omitempty"`
	Notes       *string  `json:"notes,omitempty"`
}

type DashboardPayment struct {
	PaymentMethod string  `json:"payment_method"`
	Bookings      int     `json:"bookings"`
	TotalPaid     float64 `json:"total_paid"`
}

type DashboardService struct {
	ServiceID string  `json:"service_id"`
	Name      string  `json:"name"`
	Count     int     `json:"count"`
	Revenue   float64 `json:"revenue"`
}

type DashboardCostCategory struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

type Dashboard struct {
	From                 string                  `json:"from"`
	To                   string                  `json:"to"`
	Totals               finance.Totals          `json:"totals"`
	ProfitsMatch         bool                    `json:"profits_match"`
	AdditionalCosts      float64                 `json:"additional_costs"`
	NetProfit            float64                 `json:"net_profit"`
	PreviousRevenue      float64                 `json:"previous_revenue"`
	PreviousRealProfit   float64                 `json:"previous_real_profit"`
	RevenueGrowthPercent float64                 `json:"revenue_growth_percent"`
	ProfitGrowthPercent  float64                 `json:"profit_growth_percent"`
	ByPayment            []DashboardPayment      `json:"by_payment"`
	TopServices          []DashboardService      `json:"top_services"`
	CostsByCategory      []DashboardCostCategory `json:"costs_by_category"`
	LowStock             []Product               `json:"low_stock"`
	GeneratedAt          time.Time               `json:"generated_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
