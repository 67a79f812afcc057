package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"shelfplan/internal/domain"
	"shelfplan/internal/store"
	"shelfplan/internal/xid"
)

// Store persists the planning collections in Postgres. Collection order lives
// in an explicit position column; facts keep insertion order through a bigserial
// primary key.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, city, state, seq_no
		FROM stores
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 16)
	for rows.Next() {
		var entity domain.Store
		if err := rows.Scan(&entity.ID, &entity.Label, &entity.City, &entity.State, &entity.SeqNo); err != nil {
			return nil, err
		}
		stores = append(stores, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (s *Store) AddStore(ctx context.Context, entity domain.Store) (*domain.Store, error) {
	entity.ID = strings.TrimSpace(entity.ID)
	if entity.ID == "" || strings.TrimSpace(entity.Label) == "" {
		return nil, store.ErrInvalidEntity
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO stores (id, label, city, state, seq_no, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(seq_no), 0) + 1 FROM stores),
			(SELECT COALESCE(MAX(position), 0) + 1 FROM stores),
			now(), now())
		RETURNING seq_no
	`, entity.ID, entity.Label, entity.City, entity.State).Scan(&entity.SeqNo)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	created := entity
	return &created, nil
}

func (s *Store) UpdateStore(ctx context.Context, entity domain.Store) (*domain.Store, error) {
	entity.ID = strings.TrimSpace(entity.ID)
	if entity.ID == "" || strings.TrimSpace(entity.Label) == "" {
		return nil, store.ErrInvalidEntity
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE stores
		SET label = $2, city = $3, state = $4, updated_at = now()
		WHERE id = $1
		RETURNING seq_no
	`, entity.ID, entity.Label, entity.City, entity.State).Scan(&entity.SeqNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	updated := entity
	return &updated, nil
}

func (s *Store) DeleteStore(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidEntity
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM planning_facts WHERE store_id = $1`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) ReorderStores(ctx context.Context, stores []domain.Store) ([]domain.Store, error) {
	if len(stores) == 0 {
		return nil, store.ErrInvalidEntity
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result := make([]domain.Store, 0, len(stores))
	for i, entity := range stores {
		entity.SeqNo = i + 1
		res, err := tx.ExecContext(ctx, `
			UPDATE stores
			SET seq_no = $2, position = $3, updated_at = now()
			WHERE id = $1
		`, entity.ID, entity.SeqNo, i+1)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
		result = append(result, entity)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListSKUs(ctx context.Context) ([]domain.SKU, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, class, department, price, cost
		FROM skus
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	skus := make([]domain.SKU, 0, 32)
	for rows.Next() {
		var sku domain.SKU
		if err := rows.Scan(&sku.ID, &sku.Label, &sku.Class, &sku.Department, &sku.Price, &sku.Cost); err != nil {
			return nil, err
		}
		skus = append(skus, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return skus, nil
}

func (s *Store) AddSKU(ctx context.Context, sku domain.SKU) (*domain.SKU, error) {
	sku.ID = strings.TrimSpace(sku.ID)
	if sku.ID == "" || strings.TrimSpace(sku.Label) == "" || sku.Price <= 0 || sku.Cost < 0 {
		return nil, store.ErrInvalidEntity
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skus (id, label, class, department, price, cost, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM skus),
			now(), now())
	`, sku.ID, sku.Label, sku.Class, sku.Department, sku.Price, sku.Cost)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	created := sku
	return &created, nil
}

func (s *Store) UpdateSKU(ctx context.Context, sku domain.SKU) (*domain.SKU, error) {
	sku.ID = strings.TrimSpace(sku.ID)
	if sku.ID == "" || strings.TrimSpace(sku.Label) == "" || sku.Price <= 0 || sku.Cost < 0 {
		return nil, store.ErrInvalidEntity
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE skus
		SET label = $2, class = $3, department = $4, price = $5, cost = $6, updated_at = now()
		WHERE id = $1
	`, sku.ID, sku.Label, sku.Class, sku.Department, sku.Price, sku.Cost)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := sku
	return &updated, nil
}

func (s *Store) DeleteSKU(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidEntity
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM planning_facts WHERE sku_id = $1`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM skus WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) ReorderSKUs(ctx context.Context, skus []domain.SKU) ([]domain.SKU, error) {
	if len(skus) == 0 {
		return nil, store.ErrInvalidEntity
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result := make([]domain.SKU, 0, len(skus))
	for i, sku := range skus {
		res, err := tx.ExecContext(ctx, `
			UPDATE skus
			SET position = $2, updated_at = now()
			WHERE id = $1
		`, sku.ID, i+1)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
		result = append(result, sku)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListWeeks(ctx context.Context) ([]domain.Week, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT week, week_label, month, month_label, seq_no
		FROM weeks
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weeks := make([]domain.Week, 0, 52)
	for rows.Next() {
		var week domain.Week
		if err := rows.Scan(&week.Week, &week.WeekLabel, &week.Month, &week.MonthLabel, &week.SeqNo); err != nil {
			return nil, err
		}
		weeks = append(weeks, week)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return weeks, nil
}

func (s *Store) AddWeek(ctx context.Context, week domain.Week) (*domain.Week, error) {
	week.Week = strings.TrimSpace(week.Week)
	if week.Week == "" || strings.TrimSpace(week.Month) == "" {
		return nil, store.ErrInvalidEntity
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO weeks (week, week_label, month, month_label, seq_no, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(seq_no), 0) + 1 FROM weeks),
			(SELECT COALESCE(MAX(position), 0) + 1 FROM weeks),
			now(), now())
		RETURNING seq_no
	`, week.Week, week.WeekLabel, week.Month, week.MonthLabel).Scan(&week.SeqNo)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateKey
		}
		return nil, err
	}

	created := week
	return &created, nil
}

func (s *Store) UpdateWeek(ctx context.Context, week domain.Week) (*domain.Week, error) {
	week.Week = strings.TrimSpace(week.Week)
	if week.Week == "" || strings.TrimSpace(week.Month) == "" {
		return nil, store.ErrInvalidEntity
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE weeks
		SET week_label = $2, month = $3, month_label = $4, updated_at = now()
		WHERE week = $1
		RETURNING seq_no
	`, week.Week, week.WeekLabel, week.Month, week.MonthLabel).Scan(&week.SeqNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	updated := week
	return &updated, nil
}

func (s *Store) ReorderWeeks(ctx context.Context, weeks []domain.Week) ([]domain.Week, error) {
	if len(weeks) == 0 {
		return nil, store.ErrInvalidEntity
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result := make([]domain.Week, 0, len(weeks))
	for i, week := range weeks {
		week.SeqNo = i + 1
		res, err := tx.ExecContext(ctx, `
			UPDATE weeks
			SET seq_no = $2, position = $3, updated_at = now()
			WHERE week = $1
		`, week.Week, week.SeqNo, i+1)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrNotFound
		}
		result = append(result, week)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListPlanningFacts(ctx context.Context) ([]domain.PlanningFact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, sku_id, week_id, sales_units
		FROM planning_facts
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facts := make([]domain.PlanningFact, 0, 128)
	for rows.Next() {
		var fact domain.PlanningFact
		if err := rows.Scan(&fact.StoreID, &fact.SKUID, &fact.WeekID, &fact.SalesUnits); err != nil {
			return nil, err
		}
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return facts, nil
}

func (s *Store) UpsertPlanningFact(ctx context.Context, storeID, skuID, weekID string, salesUnits int) (*domain.PlanningFact, error) {
	storeID = strings.TrimSpace(storeID)
	skuID = strings.TrimSpace(skuID)
	weekID = strings.TrimSpace(weekID)
	if storeID == "" || skuID == "" || weekID == "" || salesUnits < 0 {
		return nil, store.ErrInvalidEntity
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO planning_facts (store_id, sku_id, week_id, sales_units, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (store_id, sku_id, week_id)
		DO UPDATE SET sales_units = EXCLUDED.sales_units, updated_at = now()
	`, storeID, skuID, weekID, salesUnits)
	if err != nil {
		return nil, err
	}

	fact := domain.PlanningFact{StoreID: storeID, SKUID: skuID, WeekID: weekID, SalesUnits: salesUnits}
	return &fact, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidEntity
	}
	if user.Role == "" {
		user.Role = domain.RolePlanner
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateKey
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidEntity
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
