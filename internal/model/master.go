package model

import "github.com/shopspring/decimal"

// Store is a row of the store master table.
type Store struct {
	StoreID     string
	StoreName   string
	StoreCity   string
	StoreRegion string
	OpeningDate string
}

// Product is a row of the product master table.
type Product struct {
	ProductID         string
	ProductName       string
	ProductCategory   string
	UnitPrice         decimal.NullDecimal
	CurrentStockLevel int64
}

// Customer is a row of the customer master table.
type Customer struct {
	CustomerID         string
	FirstName          string
	Email              string
	LoyaltyStatus      string
	TotalLoyaltyPoints int64
	LastPurchaseDate   string
	SegmentID          string
}

// Promotion is a row of the promotion master table.
type Promotion struct {
	PromotionID        string
	PromotionName      string
	StartDate          string
	EndDate            string
	DiscountPercentage decimal.NullDecimal
	ApplicableCategory string
}

// LoyaltyRule is a row of the loyalty rule master table.
type LoyaltyRule struct {
	RuleID             int64
	RuleName           string
	PointsPerUnitSpend decimal.NullDecimal
	MinSpendThreshold  decimal.NullDecimal
	BonusPoints        int64
}

// MasterData is the reference data the validator joins against.
// A nil or empty slice means the corresponding file was absent.
type MasterData struct {
	Stores       []Store
	Products     []Product
	Customers    []Customer
	Promotions   []Promotion
	LoyaltyRules []LoyaltyRule
}

// Reference is the key-set view of MasterData used by validation rules.
type Reference struct {
	Stores    map[string]struct{}
	Products  map[string]struct{}
	Customers map[string]struct{}
}

// Reference builds the lookup sets for the master tables the rules use.
func (m *MasterData) Reference() *Reference {
	ref := &Reference{
		Stores:    make(map[string]struct{}, len(m.Stores)),
		Products:  make(map[string]struct{}, len(m.Products)),
		Customers: make(map[string]struct{}, len(m.Customers)),
	}
	for _, s := range m.Stores {
		ref.Stores[s.StoreID] = struct{}{}
	}
	for _, p := range m.Products {
		ref.Products[p.ProductID] = struct{}{}
	}
	for _, c := range m.Customers {
		ref.Customers[c.CustomerID] = struct{}{}
	}
	return ref
}

// HasStore reports whether id is a known store.
func (r *Reference) HasStore(id string) bool {
	_, ok := r.Stores[id]
	return ok
}

// HasProduct reports whether id is a known product.
func (r *Reference) HasProduct(id string) bool {
	_, ok := r.Products[id]
	return ok
}

// HasCustomer reports whether id is a known customer.
func (r *Reference) HasCustomer(id string) bool {
	_, ok := r.Customers[id]
	return ok
}
