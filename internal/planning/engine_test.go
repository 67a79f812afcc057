package planning

import (
	"context"
	"reflect"
	"testing"
	"time"

	"shelfplan/internal/domain"
)

func week(id, month string) domain.Week {
	return domain.Week{Week: id, WeekLabel: "Week " + id[1:], Month: month, MonthLabel: "Month " + month[1:]}
}

func TestDeriveCalendarGroupsByFirstOccurrence(t *testing.T) {
	weeks := []domain.Week{
		week("W01", "M01"),
		week("W02", "M02"),
		week("W03", "M01"),
		week("W04", "M03"),
	}

	months := DeriveCalendar(weeks)

	if len(months) != 3 {
		t.Fatalf("expected 3 months, got %d", len(months))
	}
	if months[0].Month != "M01" || months[1].Month != "M02" || months[2].Month != "M03" {
		t.Fatalf("expected first-occurrence month order, got %v %v %v", months[0].Month, months[1].Month, months[2].Month)
	}
	if len(months[0].Weeks) != 2 {
		t.Fatalf("expected 2 weeks in M01, got %d", len(months[0].Weeks))
	}
	if months[0].Weeks[0].Week != "W01" || months[0].Weeks[1].Week != "W03" {
		t.Fatalf("expected W01,W03 in M01, got %v", months[0].Weeks)
	}
}

func TestDeriveCalendarIsDeterministic(t *testing.T) {
	weeks := []domain.Week{
		week("W01", "M02"),
		week("W02", "M01"),
		week("W03", "M02"),
	}

	first := DeriveCalendar(weeks)
	second := DeriveCalendar(weeks)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical calendars on repeated derivation")
	}
}

func TestCalendarWeeksFlattensInMonthOrder(t *testing.T) {
	weeks := []domain.Week{
		week("W01", "M01"),
		week("W02", "M02"),
		week("W03", "M01"),
	}

	flat := CalendarWeeks(DeriveCalendar(weeks))

	if len(flat) != 3 {
		t.Fatalf("expected 3 weeks, got %d", len(flat))
	}
	// Month grouping pulls W03 ahead of W02.
	if flat[0].Week != "W01" || flat[1].Week != "W03" || flat[2].Week != "W02" {
		t.Fatalf("expected month-grouped order W01,W03,W02, got %v %v %v", flat[0].Week, flat[1].Week, flat[2].Week)
	}
}

func TestParseSalesUnits(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"7", 7},
		{" 42 ", 42},
		{"+8", 8},
		{"12abc", 12},
		{"3.9", 3},
		{"abc", 0},
		{"", 0},
		{"-5", 0},
		{"   ", 0},
	}

	for _, tc := range cases {
		if got := ParseSalesUnits(tc.raw); got != tc.want {
			t.Fatalf("ParseSalesUnits(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestProjectGridComputesCellMetrics(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	stores := []domain.Store{{ID: "ST1", Label: "Store One", SeqNo: 1}}
	skus := []domain.SKU{{ID: "SK1", Label: "Widget", Price: 10, Cost: 6}}
	weeks := []domain.Week{week("W01", "M01"), week("W02", "M01")}
	facts := []domain.PlanningFact{{StoreID: "ST1", SKUID: "SK1", WeekID: "W01", SalesUnits: 5}}

	grid := engine.ProjectGrid(stores, skus, weeks, facts, "")

	if len(grid.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(grid.Rows))
	}
	row := grid.Rows[0]
	if len(row.Cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(row.Cells))
	}

	filled := row.Cells[0]
	if filled.SalesUnits != 5 || filled.SalesDollars != 50 || filled.GMDollars != 20 || filled.GMPercent != 40 {
		t.Fatalf("unexpected cell metrics: %+v", filled)
	}

	empty := row.Cells[1]
	if empty.SalesUnits != 0 || empty.SalesDollars != 0 || empty.GMDollars != 0 {
		t.Fatalf("expected zero metrics for missing fact, got %+v", empty)
	}
	// GM percent derives from price and cost alone, so it holds even at zero units.
	if empty.GMPercent != 40 {
		t.Fatalf("expected gmPercent 40 on empty cell, got %v", empty.GMPercent)
	}
}

func TestProjectGridStoreFilter(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	stores := []domain.Store{
		{ID: "ST1", Label: "One", SeqNo: 1},
		{ID: "ST2", Label: "Two", SeqNo: 2},
	}
	skus := []domain.SKU{{ID: "SK1", Label: "Widget", Price: 10, Cost: 6}}
	weeks := []domain.Week{week("W01", "M01")}

	grid := engine.ProjectGrid(stores, skus, weeks, nil, "ST2")

	if len(grid.Rows) != 1 {
		t.Fatalf("expected 1 row for filtered store, got %d", len(grid.Rows))
	}
	if grid.Rows[0].StoreID != "ST2" {
		t.Fatalf("expected ST2 row, got %s", grid.Rows[0].StoreID)
	}
}

func TestStoreSeriesAlwaysFiftyTwoBuckets(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	series := engine.StoreSeries(context.Background(), "ST1", nil, nil)

	if len(series.Points) != 52 {
		t.Fatalf("expected 52 points, got %d", len(series.Points))
	}
	if series.Points[0].Week != "W01" || series.Points[51].Week != "W52" {
		t.Fatalf("expected buckets W01..W52, got %s..%s", series.Points[0].Week, series.Points[51].Week)
	}
	for _, p := range series.Points {
		if p.GMDollars != 0 || p.GMPercent != 0 {
			t.Fatalf("expected zero-filled series for unknown store, got %+v", p)
		}
	}
}

func TestStoreSeriesSumsGMDollarsAcrossSKUs(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	skus := []domain.SKU{
		{ID: "SK1", Price: 10, Cost: 6},
		{ID: "SK2", Price: 20, Cost: 5},
	}
	facts := []domain.PlanningFact{
		{StoreID: "ST1", SKUID: "SK1", WeekID: "W01", SalesUnits: 5},
		{StoreID: "ST1", SKUID: "SK2", WeekID: "W01", SalesUnits: 2},
		{StoreID: "ST2", SKUID: "SK1", WeekID: "W01", SalesUnits: 100},
	}

	series := engine.StoreSeries(context.Background(), "ST1", skus, facts)

	// 5*(10-6) + 2*(20-5) = 50, facts from other stores excluded.
	if series.Points[0].GMDollars != 50 {
		t.Fatalf("expected gmDollars 50 in W01, got %v", series.Points[0].GMDollars)
	}
}

func TestStoreSeriesLastNonZeroPercentWins(t *testing.T) {
	engine := NewEngine(nil, time.Second)

	skus := []domain.SKU{
		{ID: "SK1", Price: 10, Cost: 6},  // 40%
		{ID: "SK2", Price: 10, Cost: 8},  // 20%
		{ID: "SK3", Price: 10, Cost: 10}, // 0%
	}

	// A later non-zero percent replaces an earlier one instead of combining.
	facts := []domain.PlanningFact{
		{StoreID: "ST1", SKUID: "SK1", WeekID: "W01", SalesUnits: 5},
		{StoreID: "ST1", SKUID: "SK2", WeekID: "W01", SalesUnits: 5},
	}
	series := engine.StoreSeries(context.Background(), "ST1", skus, facts)
	if series.Points[0].GMPercent != 20 {
		t.Fatalf("expected last non-zero percent 20, got %v", series.Points[0].GMPercent)
	}

	// A zero-margin fact after a non-zero one does not clobber it.
	facts = []domain.PlanningFact{
		{StoreID: "ST1", SKUID: "SK1", WeekID: "W02", SalesUnits: 5},
		{StoreID: "ST1", SKUID: "SK3", WeekID: "W02", SalesUnits: 5},
	}
	series = engine.StoreSeries(context.Background(), "ST1", skus, facts)
	if series.Points[1].GMPercent != 40 {
		t.Fatalf("expected zero-margin fact to be ignored, got %v", series.Points[1].GMPercent)
	}

	// Order matters: the same facts reversed end at the non-zero value.
	facts = []domain.PlanningFact{
		{StoreID: "ST1", SKUID: "SK3", WeekID: "W03", SalesUnits: 5},
		{StoreID: "ST1", SKUID: "SK1", WeekID: "W03", SalesUnits: 5},
	}
	series = engine.StoreSeries(context.Background(), "ST1", skus, facts)
	if series.Points[2].GMPercent != 40 {
		t.Fatalf("expected 40 after zero-then-nonzero order, got %v", series.Points[2].GMPercent)
	}
}

type stubCache struct {
	series     *domain.StoreSeries
	setKey     string
	deletedKey string
}

func (c *stubCache) GetSeries(_ context.Context, _ string) (*domain.StoreSeries, bool, error) {
	if c.series == nil {
		return nil, false, nil
	}
	return c.series, true, nil
}

func (c *stubCache) SetSeries(_ context.Context, key string, value *domain.StoreSeries, _ time.Duration) error {
	c.setKey = key
	c.series = value
	return nil
}

func (c *stubCache) DeleteSeries(_ context.Context, key string) error {
	c.deletedKey = key
	c.series = nil
	return nil
}

func TestStoreSeriesUsesProjectionCache(t *testing.T) {
	stub := &stubCache{}
	engine := NewEngine(stub, time.Second)

	skus := []domain.SKU{{ID: "SK1", Price: 10, Cost: 6}}
	facts := []domain.PlanningFact{{StoreID: "ST1", SKUID: "SK1", WeekID: "W01", SalesUnits: 5}}

	first := engine.StoreSeries(context.Background(), "ST1", skus, facts)
	if stub.setKey != "gmseries:ST1" {
		t.Fatalf("expected series cached under gmseries:ST1, got %q", stub.setKey)
	}

	// A second call returns the cached projection even when facts change.
	second := engine.StoreSeries(context.Background(), "ST1", skus, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected cached series to be served")
	}
}

func TestInvalidateSeriesForcesRecompute(t *testing.T) {
	stub := &stubCache{}
	engine := NewEngine(stub, time.Second)

	skus := []domain.SKU{{ID: "SK1", Price: 10, Cost: 6}}
	facts := []domain.PlanningFact{{StoreID: "ST1", SKUID: "SK1", WeekID: "W01", SalesUnits: 5}}

	engine.StoreSeries(context.Background(), "ST1", skus, facts)
	engine.InvalidateSeries(context.Background(), "ST1")
	if stub.deletedKey != "gmseries:ST1" {
		t.Fatalf("expected gmseries:ST1 to be dropped, got %q", stub.deletedKey)
	}

	facts = append(facts, domain.PlanningFact{StoreID: "ST1", SKUID: "SK1", WeekID: "W02", SalesUnits: 3})
	series := engine.StoreSeries(context.Background(), "ST1", skus, facts)
	if series.Points[1].GMDollars != 12 {
		t.Fatalf("expected recomputed W02 gm 12, got %v", series.Points[1].GMDollars)
	}
}
