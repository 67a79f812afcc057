package planning

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"shelfplan/internal/cache"
	"shelfplan/internal/domain"
)

// seriesWeekCount fixes the charting projection at 52 buckets regardless of
// how many week entities exist.
const seriesWeekCount = 52

// DeriveCalendar groups weeks into months. Grouping is by the month field in
// first-occurrence order; the month label comes from the first week seen for
// that month. Pure and deterministic; callers rebuild it from scratch after
// any week mutation instead of patching incrementally.
func DeriveCalendar(weeks []domain.Week) []domain.Month {
	months := make([]domain.Month, 0, 12)
	index := make(map[string]int, 12)

	for _, week := range weeks {
		i, seen := index[week.Month]
		if !seen {
			index[week.Month] = len(months)
			months = append(months, domain.Month{
				Month:      week.Month,
				MonthLabel: week.MonthLabel,
				Weeks:      []domain.Week{week},
			})
			continue
		}
		months[i].Weeks = append(months[i].Weeks, week)
	}

	return months
}

// CalendarWeeks flattens a derived calendar back into a week sequence in
// month-grouped order, which is the column order of the planning grid.
func CalendarWeeks(months []domain.Month) []domain.Week {
	weeks := make([]domain.Week, 0, seriesWeekCount)
	for _, month := range months {
		weeks = append(weeks, month.Weeks...)
	}
	return weeks
}

// ParseSalesUnits turns free-form cell input into a non-negative unit count.
// It reads an optional sign and leading digits, ignoring any trailing text;
// unparseable or negative input coerces to zero. The edit path is total: this
// never returns an error.
func ParseSalesUnits(raw string) int {
	s := strings.TrimSpace(raw)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	j := i
	for j < len(s) && s[j] >= '0' && s[j] <= '9' {
		j++
	}
	if j == i {
		return 0
	}
	n, err := strconv.Atoi(s[:j])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Engine computes the read projections. The grid is always computed fresh;
// the per-store chart series goes through the projection cache under a short
// TTL since charts poll it repeatedly.
type Engine struct {
	cache cache.ProjectionCache
	ttl   time.Duration
}

func NewEngine(projectionCache cache.ProjectionCache, ttl time.Duration) *Engine {
	if projectionCache == nil {
		projectionCache = cache.NoopProjectionCache{}
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Engine{cache: projectionCache, ttl: ttl}
}

// ProjectGrid builds the dense store x SKU x week grid. Rows iterate stores
// then SKUs in collection order; columns follow calendar week order. Fact
// lookup goes through an index built in one pass, so a full projection is
// O(stores x skus x weeks + facts). A non-empty storeFilter restricts rows
// to that store.
func (e *Engine) ProjectGrid(stores []domain.Store, skus []domain.SKU, weeks []domain.Week, facts []domain.PlanningFact, storeFilter string) domain.PlanningGrid {
	months := DeriveCalendar(weeks)
	columnWeeks := CalendarWeeks(months)

	type key struct{ storeID, skuID, weekID string }
	units := make(map[key]int, len(facts))
	for _, f := range facts {
		units[key{f.StoreID, f.SKUID, f.WeekID}] = f.SalesUnits
	}

	rows := make([]domain.GridRow, 0, len(stores)*len(skus))
	for _, st := range stores {
		if storeFilter != "" && st.ID != storeFilter {
			continue
		}
		for _, sku := range skus {
			row := domain.GridRow{
				StoreID:    st.ID,
				StoreLabel: st.Label,
				SKUID:      sku.ID,
				SKULabel:   sku.Label,
				Cells:      make([]domain.GridCell, 0, len(columnWeeks)),
			}
			for _, week := range columnWeeks {
				// Missing fact means zero sales, distinct only in origin
				// from an explicit zero.
				salesUnits := units[key{st.ID, sku.ID, week.Week}]
				cell := domain.GridCell{
					Week:         week.Week,
					SalesUnits:   salesUnits,
					SalesDollars: float64(salesUnits) * sku.Price,
					GMDollars:    float64(salesUnits) * (sku.Price - sku.Cost),
				}
				if sku.Price > 0 {
					cell.GMPercent = (sku.Price - sku.Cost) / sku.Price * 100
				}
				row.Cells = append(row.Cells, cell)
			}
			rows = append(rows, row)
		}
	}

	return domain.PlanningGrid{Months: months, Rows: rows}
}

// StoreSeries aggregates one store's facts into 52 fixed week buckets.
// GM dollars sum across SKUs. GM percent is computed per fact and the last
// non-zero value seen for a week wins: facts later in the collection replace
// earlier ones instead of combining with them. That replacement rule matches
// the dashboard's historical charting behavior and is pinned by tests.
func (e *Engine) StoreSeries(ctx context.Context, storeID string, skus []domain.SKU, facts []domain.PlanningFact) domain.StoreSeries {
	cacheKey := seriesCacheKey(storeID)
	if cached, ok, err := e.cache.GetSeries(ctx, cacheKey); err == nil && ok {
		return *cached
	}

	skuByID := make(map[string]domain.SKU, len(skus))
	for _, sku := range skus {
		skuByID[sku.ID] = sku
	}

	gmByWeek := make(map[string]float64, seriesWeekCount)
	pctByWeek := make(map[string]float64, seriesWeekCount)

	for _, f := range facts {
		if f.StoreID != storeID {
			continue
		}
		sku := skuByID[f.SKUID]
		gm := float64(f.SalesUnits) * (sku.Price - sku.Cost)
		gmByWeek[f.WeekID] += gm

		salesDollars := float64(f.SalesUnits) * sku.Price
		if salesDollars > 0 {
			pct := gm / salesDollars * 100
			if pct != 0 {
				pctByWeek[f.WeekID] = pct
			} else if _, ok := pctByWeek[f.WeekID]; !ok {
				pctByWeek[f.WeekID] = 0
			}
		}
	}

	points := make([]domain.SeriesPoint, 0, seriesWeekCount)
	for i := 1; i <= seriesWeekCount; i++ {
		week := fmt.Sprintf("W%02d", i)
		points = append(points, domain.SeriesPoint{
			Week:      week,
			GMDollars: gmByWeek[week],
			GMPercent: pctByWeek[week],
		})
	}

	series := domain.StoreSeries{StoreID: storeID, Points: points}
	if err := e.cache.SetSeries(ctx, cacheKey, &series, e.ttl); err != nil {
		log.Printf("[planning] WARN: failed to cache series store=%s: %v", storeID, err)
	}
	return series
}

// InvalidateSeries drops the cached chart series for the given stores so the
// next read recomputes from current facts. Cache failures are logged and do
// not fail the mutation that triggered the invalidation.
func (e *Engine) InvalidateSeries(ctx context.Context, storeIDs ...string) {
	for _, storeID := range storeIDs {
		if err := e.cache.DeleteSeries(ctx, seriesCacheKey(storeID)); err != nil {
			log.Printf("[planning] WARN: failed to invalidate series store=%s: %v", storeID, err)
		}
	}
}

func seriesCacheKey(storeID string) string {
	return "gmseries:" + storeID
}
