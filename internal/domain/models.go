package domain

import (
	"encoding/json"
	"time"
)

// JSON field names follow the fixture format (camelCase) so seed files and
// API payloads share one shape.

type Store struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	City  string `json:"city"`
	State string `json:"state"`
	SeqNo int    `json:"seqNo"`
}

type SKU struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Class      string  `json:"class"`
	Department string  `json:"department"`
	Price      float64 `json:"price"`
	Cost       float64 `json:"cost"`
}

type Week struct {
	Week       string `json:"week"`
	WeekLabel  string `json:"weekLabel"`
	Month      string `json:"month"`
	MonthLabel string `json:"monthLabel"`
	SeqNo      int    `json:"seqNo"`
}

// Month is derived from the week list, never stored. Every week belongs to
// exactly one month; month order follows first occurrence in the week list.
type Month struct {
	Month      string `json:"month"`
	MonthLabel string `json:"monthLabel"`
	Weeks      []Week `json:"weeks"`
}

// PlanningFact is one sparse planning record. The composite key
// (storeId, skuId, weekId) is unique; absence of a fact means zero sales.
type PlanningFact struct {
	StoreID    string `json:"storeId"`
	SKUID      string `json:"skuId"`
	WeekID     string `json:"weekId"`
	SalesUnits int    `json:"salesUnits"`
}

// GridCell carries the derived metrics for one week of one store/SKU row.
type GridCell struct {
	Week         string  `json:"week"`
	SalesUnits   int     `json:"salesUnits"`
	SalesDollars float64 `json:"salesDollars"`
	GMDollars    float64 `json:"gmDollars"`
	GMPercent    float64 `json:"gmPercent"`
}

type GridRow struct {
	StoreID    string     `json:"storeId"`
	StoreLabel string     `json:"storeLabel"`
	SKUID      string     `json:"skuId"`
	SKULabel   string     `json:"skuLabel"`
	Cells      []GridCell `json:"cells"`
}

// PlanningGrid is the dense store x SKU x week projection. Rows are in
// store-then-SKU order; cells follow calendar (month-grouped) week order.
type PlanningGrid struct {
	Months []Month   `json:"months"`
	Rows   []GridRow `json:"rows"`
}

type SeriesPoint struct {
	Week      string  `json:"week"`
	GMDollars float64 `json:"gmDollars"`
	GMPercent float64 `json:"gmPercent"`
}

// StoreSeries is the charting projection: always exactly 52 week buckets
// labeled W01..W52, zero-filled where no facts match.
type StoreSeries struct {
	StoreID string        `json:"storeId"`
	Points  []SeriesPoint `json:"points"`
}

// RawUnits accepts either a JSON string or a bare number, preserving the raw
// text for lenient parsing. Grid editors submit whatever the cell held.
type RawUnits string

func (v *RawUnits) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = RawUnits(s)
		return nil
	}
	*v = RawUnits(data)
	return nil
}

func (v RawUnits) String() string { return string(v) }

type SalesUpdateRequest struct {
	StoreID    string   `json:"storeId"`
	SKUID      string   `json:"skuId"`
	WeekID     string   `json:"weekId"`
	SalesUnits RawUnits `json:"salesUnits"`
}

type ReorderStoresRequest struct {
	Stores []Store `json:"stores"`
}

type ReorderSKUsRequest struct {
	SKUs []SKU `json:"skus"`
}

type ReorderWeeksRequest struct {
	Weeks []Week `json:"weeks"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
	Role     string
}

type PlannerCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type PlannerUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actorUsername"`
	ActorRole     string    `json:"actorRole"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entityType"`
	EntityID      string    `json:"entityId"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"createdAt"`
}

const (
	RoleAdmin   = "admin"
	RolePlanner = "planner"
)
