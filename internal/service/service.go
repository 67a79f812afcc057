package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"shelfplan/internal/domain"
	"shelfplan/internal/planning"
	"shelfplan/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo   store.Repository
	engine *planning.Engine
}

func New(repo store.Repository, engine *planning.Engine) *Service {
	return &Service{repo: repo, engine: engine}
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func (s *Service) requirePlanner(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || (actor.Role != domain.RoleAdmin && actor.Role != domain.RolePlanner) {
		return fmt.Errorf("planner or admin role required")
	}
	return nil
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) CreateStore(ctx context.Context, entity domain.Store) (domain.Store, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}

	entity.ID = strings.TrimSpace(entity.ID)
	entity.Label = strings.TrimSpace(entity.Label)
	entity.City = strings.TrimSpace(entity.City)
	entity.State = strings.TrimSpace(entity.State)

	created, err := s.repo.AddStore(ctx, entity)
	if err != nil {
		return domain.Store{}, err
	}
	s.logAudit(ctx, "store_create", "store", created.ID, fmt.Sprintf("label=%s,city=%s,state=%s", created.Label, created.City, created.State))
	return *created, nil
}

func (s *Service) UpdateStore(ctx context.Context, entity domain.Store) (domain.Store, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Store{}, err
	}

	updated, err := s.repo.UpdateStore(ctx, entity)
	if err != nil {
		return domain.Store{}, err
	}
	s.logAudit(ctx, "store_update", "store", updated.ID, fmt.Sprintf("label=%s,seqNo=%d", updated.Label, updated.SeqNo))
	return *updated, nil
}

// DeleteStore removes the store and, by referential-integrity rule, every
// planning fact referencing it.
func (s *Service) DeleteStore(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteStore(ctx, id); err != nil {
		return err
	}
	s.engine.InvalidateSeries(ctx, id)
	s.logAudit(ctx, "store_delete", "store", id, "cascade=planning_facts")
	return nil
}

func (s *Service) ReorderStores(ctx context.Context, stores []domain.Store) ([]domain.Store, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	reordered, err := s.repo.ReorderStores(ctx, stores)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "stores_reorder", "store", "", fmt.Sprintf("count=%d", len(reordered)))
	return reordered, nil
}

func (s *Service) ListSKUs(ctx context.Context) ([]domain.SKU, error) {
	return s.repo.ListSKUs(ctx)
}

func (s *Service) CreateSKU(ctx context.Context, sku domain.SKU) (domain.SKU, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.SKU{}, err
	}

	sku.ID = strings.TrimSpace(sku.ID)
	sku.Label = strings.TrimSpace(sku.Label)

	created, err := s.repo.AddSKU(ctx, sku)
	if err != nil {
		return domain.SKU{}, err
	}
	s.logAudit(ctx, "sku_create", "sku", created.ID, fmt.Sprintf("label=%s,price=%.2f,cost=%.2f", created.Label, created.Price, created.Cost))
	return *created, nil
}

func (s *Service) UpdateSKU(ctx context.Context, sku domain.SKU) (domain.SKU, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.SKU{}, err
	}

	updated, err := s.repo.UpdateSKU(ctx, sku)
	if err != nil {
		return domain.SKU{}, err
	}
	// Price and cost feed every store's GM series.
	s.invalidateAllSeries(ctx)
	s.logAudit(ctx, "sku_update", "sku", updated.ID, fmt.Sprintf("price=%.2f,cost=%.2f", updated.Price, updated.Cost))
	return *updated, nil
}

// DeleteSKU cascades to remove every planning fact referencing the SKU.
func (s *Service) DeleteSKU(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteSKU(ctx, id); err != nil {
		return err
	}
	// The cascade removes facts across stores, so no cached series survives.
	s.invalidateAllSeries(ctx)
	s.logAudit(ctx, "sku_delete", "sku", id, "cascade=planning_facts")
	return nil
}

func (s *Service) ReorderSKUs(ctx context.Context, skus []domain.SKU) ([]domain.SKU, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	reordered, err := s.repo.ReorderSKUs(ctx, skus)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "skus_reorder", "sku", "", fmt.Sprintf("count=%d", len(reordered)))
	return reordered, nil
}

func (s *Service) ListWeeks(ctx context.Context) ([]domain.Week, error) {
	return s.repo.ListWeeks(ctx)
}

func (s *Service) CreateWeek(ctx context.Context, week domain.Week) (domain.Week, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Week{}, err
	}

	week.Week = strings.TrimSpace(week.Week)
	created, err := s.repo.AddWeek(ctx, week)
	if err != nil {
		return domain.Week{}, err
	}
	s.logAudit(ctx, "week_create", "week", created.Week, fmt.Sprintf("month=%s", created.Month))
	return *created, nil
}

func (s *Service) UpdateWeek(ctx context.Context, week domain.Week) (domain.Week, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return domain.Week{}, err
	}

	updated, err := s.repo.UpdateWeek(ctx, week)
	if err != nil {
		return domain.Week{}, err
	}
	s.logAudit(ctx, "week_update", "week", updated.Week, fmt.Sprintf("month=%s,seqNo=%d", updated.Month, updated.SeqNo))
	return *updated, nil
}

func (s *Service) ReorderWeeks(ctx context.Context, weeks []domain.Week) ([]domain.Week, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	reordered, err := s.repo.ReorderWeeks(ctx, weeks)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "weeks_reorder", "week", "", fmt.Sprintf("count=%d", len(reordered)))
	return reordered, nil
}

// Calendar derives the month grouping fresh from the current week list.
func (s *Service) Calendar(ctx context.Context) ([]domain.Month, error) {
	weeks, err := s.repo.ListWeeks(ctx)
	if err != nil {
		return nil, err
	}
	return planning.DeriveCalendar(weeks), nil
}

// PlanningGrid returns the dense projection. An empty storeFilter projects
// every store.
func (s *Service) PlanningGrid(ctx context.Context, storeFilter string) (domain.PlanningGrid, error) {
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		return domain.PlanningGrid{}, err
	}
	skus, err := s.repo.ListSKUs(ctx)
	if err != nil {
		return domain.PlanningGrid{}, err
	}
	weeks, err := s.repo.ListWeeks(ctx)
	if err != nil {
		return domain.PlanningGrid{}, err
	}
	facts, err := s.repo.ListPlanningFacts(ctx)
	if err != nil {
		return domain.PlanningGrid{}, err
	}

	return s.engine.ProjectGrid(stores, skus, weeks, facts, strings.TrimSpace(storeFilter)), nil
}

// StoreSeries returns the 52-bucket chart projection for one store. Unknown
// store ids produce a zero-filled series rather than an error; the chart
// treats them the same way.
func (s *Service) StoreSeries(ctx context.Context, storeID string) (domain.StoreSeries, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.StoreSeries{}, store.ErrInvalidEntity
	}

	skus, err := s.repo.ListSKUs(ctx)
	if err != nil {
		return domain.StoreSeries{}, err
	}
	facts, err := s.repo.ListPlanningFacts(ctx)
	if err != nil {
		return domain.StoreSeries{}, err
	}

	return s.engine.StoreSeries(ctx, storeID, skus, facts), nil
}

// RecordSale is the single interactive write path for sales data. The raw
// cell input coerces to a non-negative integer (zero on any parse failure)
// and upserts the matching fact.
func (s *Service) RecordSale(ctx context.Context, req domain.SalesUpdateRequest) (domain.PlanningFact, error) {
	if err := s.requirePlanner(ctx); err != nil {
		return domain.PlanningFact{}, err
	}

	storeID := strings.TrimSpace(req.StoreID)
	skuID := strings.TrimSpace(req.SKUID)
	weekID := strings.TrimSpace(req.WeekID)
	if storeID == "" || skuID == "" || weekID == "" {
		return domain.PlanningFact{}, store.ErrInvalidEntity
	}

	units := planning.ParseSalesUnits(req.SalesUnits.String())
	fact, err := s.repo.UpsertPlanningFact(ctx, storeID, skuID, weekID, units)
	if err != nil {
		return domain.PlanningFact{}, err
	}
	s.engine.InvalidateSeries(ctx, storeID)

	s.logAudit(ctx, "sales_update", "planning_fact", storeID+"/"+skuID+"/"+weekID, fmt.Sprintf("raw=%q,units=%d", req.SalesUnits.String(), units))
	return *fact, nil
}

func (s *Service) AuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

// invalidateAllSeries drops every store's cached chart series after a
// mutation whose effect spans stores.
func (s *Service) invalidateAllSeries(ctx context.Context) {
	stores, err := s.repo.ListStores(ctx)
	if err != nil {
		log.Printf("[service] WARN: failed to list stores for series invalidation: %v", err)
		return
	}
	ids := make([]string, 0, len(stores))
	for _, st := range stores {
		ids = append(ids, st.ID)
	}
	s.engine.InvalidateSeries(ctx, ids...)
}

func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
