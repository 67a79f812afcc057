package store

import (
	"context"
	"errors"
	"time"

	"shelfplan/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidEntity = errors.New("invalid entity")
	ErrDuplicateKey  = errors.New("duplicate key")
)

// Repository owns the four planning collections. Implementations must keep
// collection order stable: store/SKU/week order is display order, and fact
// insertion order feeds the charting projection's overwrite semantics.
type Repository interface {
	ListStores(ctx context.Context) ([]domain.Store, error)
	AddStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	UpdateStore(ctx context.Context, s domain.Store) (*domain.Store, error)
	// DeleteStore removes the store and every planning fact referencing it.
	DeleteStore(ctx context.Context, id string) error
	// ReorderStores replaces the collection, reassigning seqNo = position+1.
	ReorderStores(ctx context.Context, stores []domain.Store) ([]domain.Store, error)

	ListSKUs(ctx context.Context) ([]domain.SKU, error)
	AddSKU(ctx context.Context, sku domain.SKU) (*domain.SKU, error)
	UpdateSKU(ctx context.Context, sku domain.SKU) (*domain.SKU, error)
	// DeleteSKU removes the SKU and every planning fact referencing it.
	DeleteSKU(ctx context.Context, id string) error
	// ReorderSKUs replaces collection order only; SKU carries no seqNo.
	ReorderSKUs(ctx context.Context, skus []domain.SKU) ([]domain.SKU, error)

	ListWeeks(ctx context.Context) ([]domain.Week, error)
	AddWeek(ctx context.Context, week domain.Week) (*domain.Week, error)
	// UpdateWeek matches by the immutable week key.
	UpdateWeek(ctx context.Context, week domain.Week) (*domain.Week, error)
	ReorderWeeks(ctx context.Context, weeks []domain.Week) ([]domain.Week, error)

	ListPlanningFacts(ctx context.Context) ([]domain.PlanningFact, error)
	// UpsertPlanningFact overwrites salesUnits when the composite key exists,
	// appends otherwise. The sole mutation path for sales data.
	UpsertPlanningFact(ctx context.Context, storeID, skuID, weekID string, salesUnits int) (*domain.PlanningFact, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
