package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shelfplan/internal/domain"
	"shelfplan/internal/store"
	"shelfplan/internal/xid"
)

type factKey struct {
	storeID string
	skuID   string
	weekID  string
}

// Store keeps every collection as an ordered slice. Order is meaningful:
// store/SKU/week order drives the grid layout and fact insertion order
// drives the charting projection.
type Store struct {
	mu        sync.RWMutex
	stores    []domain.Store
	skus      []domain.SKU
	weeks     []domain.Week
	facts     []domain.PlanningFact
	factIdx   map[factKey]int
	auditLogs []domain.AuditLog
	users     map[string]domain.UserAccount
}

// New returns an empty store with no seed data or users.
func New() *Store {
	return &Store{
		factIdx:   make(map[factKey]int),
		auditLogs: make([]domain.AuditLog, 0, 64),
		users:     make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_PLANNER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "password123")
	plannerPwd := envOr("SEED_PLANNER_PASSWORD", "planner123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_PLANNER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_PLANNER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"planner", plannerPwd, domain.RolePlanner},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
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

// seedWeeks builds the fiscal calendar: 52 weeks over 12 months in a 4-4-5
// pattern, W01..W52.
func seedWeeks() []domain.Week {
	monthLabels := []string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	}
	pattern := []int{4, 4, 5}

	weeks := make([]domain.Week, 0, 52)
	seq := 0
	for m := 0; m < 12; m++ {
		for i := 0; i < pattern[m%3]; i++ {
			seq++
			weeks = append(weeks, domain.Week{
				Week:       fmt.Sprintf("W%02d", seq),
				WeekLabel:  fmt.Sprintf("Week %02d", seq),
				Month:      fmt.Sprintf("M%02d", m+1),
				MonthLabel: monthLabels[m],
				SeqNo:      seq,
			})
		}
	}
	return weeks
}

// NewSeeded returns a store preloaded with the bundled fixture collections.
func NewSeeded() *Store {
	s := New()
	s.users = seedUsers()

	s.stores = []domain.Store{
		{ID: "ST035", Label: "San Francisco Bay Trends", City: "San Francisco", State: "CA", SeqNo: 1},
		{ID: "ST046", Label: "Phoenix Sunwear", City: "Phoenix", State: "AZ", SeqNo: 2},
		{ID: "ST064", Label: "Dallas Ranch Supply", City: "Dallas", State: "TX", SeqNo: 3},
		{ID: "ST066", Label: "Atlanta Outfitters", City: "Atlanta", State: "GA", SeqNo: 4},
		{ID: "ST073", Label: "Nashville Melody Music Store", City: "Nashville", State: "TN", SeqNo: 5},
	}

	s.skus = []domain.SKU{
		{ID: "SK00158", Label: "Crew Neck Merino Wool Sweater", Class: "Tops", Department: "Men's Apparel", Price: 114.99, Cost: 18.28},
		{ID: "SK00269", Label: "Faux Leather Ankle Boots", Class: "Footwear", Department: "Footwear", Price: 9.99, Cost: 8.45},
		{ID: "SK00300", Label: "Fleece-Lined Parka", Class: "Outerwear", Department: "Unisex Accessories", Price: 199.99, Cost: 17.80},
		{ID: "SK00304", Label: "Cotton Polo Shirt", Class: "Tops", Department: "Men's Apparel", Price: 139.99, Cost: 10.78},
		{ID: "SK00766", Label: "Foldable Travel Hat", Class: "Accessories", Department: "Unisex Accessories", Price: 44.99, Cost: 27.08},
		{ID: "SK00786", Label: "Chunky Knit Beanie", Class: "Accessories", Department: "Unisex Accessories", Price: 19.99, Cost: 8.19},
		{ID: "SK00960", Label: "High-Waisted Yoga Leggings", Class: "Bottoms", Department: "Women's Apparel", Price: 54.99, Cost: 20.67},
		{ID: "SK01183", Label: "Turtleneck Sweater", Class: "Tops", Department: "Women's Apparel", Price: 79.99, Cost: 22.60},
	}

	s.weeks = seedWeeks()

	seedFacts := []domain.PlanningFact{
		{StoreID: "ST035", SKUID: "SK00158", WeekID: "W01", SalesUnits: 58},
		{StoreID: "ST035", SKUID: "SK00158", WeekID: "W02", SalesUnits: 116},
		{StoreID: "ST035", SKUID: "SK00269", WeekID: "W01", SalesUnits: 20},
		{StoreID: "ST035", SKUID: "SK00300", WeekID: "W03", SalesUnits: 13},
		{StoreID: "ST046", SKUID: "SK00304", WeekID: "W01", SalesUnits: 44},
		{StoreID: "ST046", SKUID: "SK00766", WeekID: "W02", SalesUnits: 67},
		{StoreID: "ST046", SKUID: "SK00786", WeekID: "W05", SalesUnits: 38},
		{StoreID: "ST064", SKUID: "SK00960", WeekID: "W01", SalesUnits: 104},
		{StoreID: "ST064", SKUID: "SK00960", WeekID: "W04", SalesUnits: 82},
		{StoreID: "ST064", SKUID: "SK01183", WeekID: "W02", SalesUnits: 37},
		{StoreID: "ST066", SKUID: "SK00158", WeekID: "W06", SalesUnits: 24},
		{StoreID: "ST066", SKUID: "SK00786", WeekID: "W09", SalesUnits: 91},
		{StoreID: "ST073", SKUID: "SK00300", WeekID: "W10", SalesUnits: 15},
		{StoreID: "ST073", SKUID: "SK01183", WeekID: "W13", SalesUnits: 50},
	}
	for _, f := range seedFacts {
		s.factIdx[factKey{f.StoreID, f.SKUID, f.WeekID}] = len(s.facts)
		s.facts = append(s.facts, f)
	}

	return s
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Store, len(s.stores))
	copy(out, s.stores)
	return out, nil
}

func (s *Store) AddStore(_ context.Context, entity domain.Store) (*domain.Store, error) {
	if err := validateStore(entity); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.stores {
		if existing.ID == entity.ID {
			return nil, store.ErrDuplicateKey
		}
	}
	if entity.SeqNo == 0 {
		entity.SeqNo = len(s.stores) + 1
	}
	s.stores = append(s.stores, entity)
	created := entity
	return &created, nil
}

func (s *Store) UpdateStore(_ context.Context, entity domain.Store) (*domain.Store, error) {
	if err := validateStore(entity); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.stores {
		if existing.ID == entity.ID {
			s.stores[i] = entity
			updated := entity
			return &updated, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteStore(_ context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.stores[:0]
	found := false
	for _, existing := range s.stores {
		if existing.ID == id {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return store.ErrNotFound
	}
	s.stores = kept

	s.dropFacts(func(f domain.PlanningFact) bool { return f.StoreID == id })
	return nil
}

func (s *Store) ReorderStores(_ context.Context, stores []domain.Store) ([]domain.Store, error) {
	next := make([]domain.Store, 0, len(stores))
	for i, entity := range stores {
		entity.SeqNo = i + 1
		if err := validateStore(entity); err != nil {
			return nil, err
		}
		next = append(next, entity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stores = next
	out := make([]domain.Store, len(next))
	copy(out, next)
	return out, nil
}

func (s *Store) ListSKUs(_ context.Context) ([]domain.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SKU, len(s.skus))
	copy(out, s.skus)
	return out, nil
}

func (s *Store) AddSKU(_ context.Context, sku domain.SKU) (*domain.SKU, error) {
	if err := validateSKU(sku); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.skus {
		if existing.ID == sku.ID {
			return nil, store.ErrDuplicateKey
		}
	}
	s.skus = append(s.skus, sku)
	created := sku
	return &created, nil
}

func (s *Store) UpdateSKU(_ context.Context, sku domain.SKU) (*domain.SKU, error) {
	if err := validateSKU(sku); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.skus {
		if existing.ID == sku.ID {
			s.skus[i] = sku
			updated := sku
			return &updated, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) DeleteSKU(_ context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return store.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.skus[:0]
	found := false
	for _, existing := range s.skus {
		if existing.ID == id {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return store.ErrNotFound
	}
	s.skus = kept

	s.dropFacts(func(f domain.PlanningFact) bool { return f.SKUID == id })
	return nil
}

func (s *Store) ReorderSKUs(_ context.Context, skus []domain.SKU) ([]domain.SKU, error) {
	next := make([]domain.SKU, 0, len(skus))
	for _, sku := range skus {
		if err := validateSKU(sku); err != nil {
			return nil, err
		}
		next = append(next, sku)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.skus = next
	out := make([]domain.SKU, len(next))
	copy(out, next)
	return out, nil
}

func (s *Store) ListWeeks(_ context.Context) ([]domain.Week, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Week, len(s.weeks))
	copy(out, s.weeks)
	return out, nil
}

func (s *Store) AddWeek(_ context.Context, week domain.Week) (*domain.Week, error) {
	if err := validateWeek(week); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.weeks {
		if existing.Week == week.Week {
			return nil, store.ErrDuplicateKey
		}
	}
	if week.SeqNo == 0 {
		week.SeqNo = len(s.weeks) + 1
	}
	s.weeks = append(s.weeks, week)
	created := week
	return &created, nil
}

func (s *Store) UpdateWeek(_ context.Context, week domain.Week) (*domain.Week, error) {
	if err := validateWeek(week); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.weeks {
		if existing.Week == week.Week {
			s.weeks[i] = week
			updated := week
			return &updated, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ReorderWeeks(_ context.Context, weeks []domain.Week) ([]domain.Week, error) {
	next := make([]domain.Week, 0, len(weeks))
	for i, week := range weeks {
		week.SeqNo = i + 1
		if err := validateWeek(week); err != nil {
			return nil, err
		}
		next = append(next, week)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.weeks = next
	out := make([]domain.Week, len(next))
	copy(out, next)
	return out, nil
}

func (s *Store) ListPlanningFacts(_ context.Context) ([]domain.PlanningFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PlanningFact, len(s.facts))
	copy(out, s.facts)
	return out, nil
}

func (s *Store) UpsertPlanningFact(_ context.Context, storeID, skuID, weekID string, salesUnits int) (*domain.PlanningFact, error) {
	if storeID == "" || skuID == "" || weekID == "" || salesUnits < 0 {
		return nil, store.ErrInvalidEntity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := factKey{storeID, skuID, weekID}
	if i, ok := s.factIdx[key]; ok {
		s.facts[i].SalesUnits = salesUnits
		saved := s.facts[i]
		return &saved, nil
	}

	fact := domain.PlanningFact{StoreID: storeID, SKUID: skuID, WeekID: weekID, SalesUnits: salesUnits}
	s.factIdx[key] = len(s.facts)
	s.facts = append(s.facts, fact)
	saved := fact
	return &saved, nil
}

// dropFacts removes matching facts and rebuilds the index, preserving the
// order of survivors. Caller must hold the write lock.
func (s *Store) dropFacts(match func(domain.PlanningFact) bool) {
	kept := make([]domain.PlanningFact, 0, len(s.facts))
	for _, f := range s.facts {
		if match(f) {
			continue
		}
		kept = append(kept, f)
	}
	s.facts = kept
	s.factIdx = make(map[factKey]int, len(kept))
	for i, f := range kept {
		s.factIdx[factKey{f.StoreID, f.SKUID, f.WeekID}] = i
	}
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidEntity
	}
	if _, exists := s.users[username]; exists {
		return store.ErrDuplicateKey
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RolePlanner
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidEntity
	}
	user, exists := s.users[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
}

func validateStore(entity domain.Store) error {
	if strings.TrimSpace(entity.ID) == "" || strings.TrimSpace(entity.Label) == "" {
		return store.ErrInvalidEntity
	}
	if strings.TrimSpace(entity.City) == "" || strings.TrimSpace(entity.State) == "" {
		return store.ErrInvalidEntity
	}
	if entity.SeqNo < 0 {
		return store.ErrInvalidEntity
	}
	return nil
}

func validateSKU(sku domain.SKU) error {
	if strings.TrimSpace(sku.ID) == "" || strings.TrimSpace(sku.Label) == "" {
		return store.ErrInvalidEntity
	}
	if sku.Price <= 0 || sku.Cost < 0 {
		return store.ErrInvalidEntity
	}
	return nil
}

func validateWeek(week domain.Week) error {
	if strings.TrimSpace(week.Week) == "" || strings.TrimSpace(week.Month) == "" {
		return store.ErrInvalidEntity
	}
	return nil
}
