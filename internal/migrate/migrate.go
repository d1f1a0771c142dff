package migrate

import (
	"context"

	"stock-ledger-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto, btree_gist, pg_trgm
	CreateChecks           bool // CHECK-constraint'ы (инварианты склада)
	CreateIndexes          bool // индексы и UNIQUE
	CreateExclusions       bool // EXCLUDE: одна единица — одно активное удержание на дату
	CreateFKsViaSQL        bool // FK через Exec после AutoMigrate
	CreateUpdatedAtTrigger bool // триггеры updated_at
	CreateSearchIndexes    bool // GIN trgm для поиска по name/sku
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateExclusions:       true,
		CreateFKsViaSQL:        true,
		CreateUpdatedAtTrigger: true,
		CreateSearchIndexes:    true,
	}
}

type statement struct {
	name string
	sql  string
}

func run(db *gorm.DB, log *zap.Logger, stmts []statement) error {
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			log.Error(s.name, zap.Error(err))
			return err
		}
	}
	return nil
}

var extensions = []statement{
	{"pgcrypto error", `CREATE EXTENSION IF NOT EXISTS pgcrypto`},
	{"btree_gist error", `CREATE EXTENSION IF NOT EXISTS btree_gist`},
	{"pg_trgm error", `CREATE EXTENSION IF NOT EXISTS pg_trgm`},
}

var triggers = []statement{
	{"triggers error", `
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_products_updated ON products;
CREATE TRIGGER trg_products_updated BEFORE UPDATE ON products
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_master_stocks_updated ON master_stocks;
CREATE TRIGGER trg_master_stocks_updated BEFORE UPDATE ON master_stocks
FOR EACH ROW EXECUTE FUNCTION set_updated_at();

DROP TRIGGER IF EXISTS trg_tracked_items_updated ON tracked_items;
CREATE TRIGGER trg_tracked_items_updated BEFORE UPDATE ON tracked_items
FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`},
	// Журнал корректировок только на добавление
	{"adjustments append-only trigger", `
CREATE OR REPLACE FUNCTION forbid_adjustment_change() RETURNS trigger AS $$
BEGIN RAISE EXCEPTION 'stock_adjustments is append-only' USING ERRCODE = 'check_violation'; END; $$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trg_stock_adjustments_append_only ON stock_adjustments;
CREATE TRIGGER trg_stock_adjustments_append_only BEFORE UPDATE OR DELETE ON stock_adjustments
FOR EACH ROW EXECUTE FUNCTION forbid_adjustment_change();
`},
}

var checks = []statement{
	{"chk products.unit_cost", `
ALTER TABLE products
	DROP CONSTRAINT IF EXISTS chk_products_unit_cost_non_negative,
	ADD CONSTRAINT chk_products_unit_cost_non_negative
	CHECK (unit_cost >= 0);
`},
	// Счётчики склада не уходят в минус
	{"chk master_stocks", `
ALTER TABLE master_stocks
	DROP CONSTRAINT IF EXISTS chk_master_stocks_non_negative,
	ADD CONSTRAINT chk_master_stocks_non_negative
	CHECK (bulk_pool_count >= 0 AND tracked_item_count >= 0);
`},
	{"chk tracked_items.status", `
ALTER TABLE tracked_items
	DROP CONSTRAINT IF EXISTS chk_tracked_items_status_allowed,
	ADD CONSTRAINT chk_tracked_items_status_allowed
	CHECK (status IN ('AVAILABLE','RESERVED','DELIVERED','RETURNED','MAINTENANCE','RETIRED'));
`},
	// BULK несёт количество, TRACKED — только единицы
	{"chk assignments.kind", `
ALTER TABLE assignments
	DROP CONSTRAINT IF EXISTS chk_assignments_kind_quantity,
	ADD CONSTRAINT chk_assignments_kind_quantity
	CHECK ((kind = 'BULK' AND quantity > 0) OR (kind = 'TRACKED' AND quantity = 0));
`},
	{"chk assignments.dates", `
ALTER TABLE assignments
	DROP CONSTRAINT IF EXISTS chk_assignments_dates,
	ADD CONSTRAINT chk_assignments_dates
	CHECK (end_date >= start_date);
`},
	{"chk assignment_items.dates", `
ALTER TABLE assignment_items
	DROP CONSTRAINT IF EXISTS chk_assignment_items_dates,
	ADD CONSTRAINT chk_assignment_items_dates
	CHECK (end_date >= start_date);
`},
	{"chk stock_adjustments.operation", `
ALTER TABLE stock_adjustments
	DROP CONSTRAINT IF EXISTS chk_stock_adjustments_operation,
	ADD CONSTRAINT chk_stock_adjustments_operation
	CHECK (operation_type IN ('CONVERT','ADD_TRACKED','ADD_BULK','REMOVE_BULK','RETIRE_TRACKED'));
`},
	{"chk stock_adjustments.split", `
ALTER TABLE stock_adjustments
	DROP CONSTRAINT IF EXISTS chk_stock_adjustments_split,
	ADD CONSTRAINT chk_stock_adjustments_split
	CHECK (delta = bulk_delta + tracked_delta AND bulk_after >= 0 AND tracked_after >= 0);
`},
}

var indexes = []statement{
	{"ux products sku", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_products_sku
ON products (lower(sku));
`},
	{"ix products active_created", `
CREATE INDEX IF NOT EXISTS ix_products_active_created
ON products (is_active, created_at DESC);
`},
	{"ix tracked_items product_status", `
CREATE INDEX IF NOT EXISTS ix_tracked_items_product_status
ON tracked_items (product_id, status);
`},
	// Активные назначения — основной путь чтения доступности
	{"ix assignments active", `
CREATE INDEX IF NOT EXISTS ix_assignments_active
ON assignments (product_id, start_date, end_date)
WHERE released_at IS NULL;
`},
}

var exclusions = []statement{
	{"exclude assignment_items overlap", `
ALTER TABLE assignment_items
	DROP CONSTRAINT IF EXISTS ex_assignment_items_no_overlap,
	ADD CONSTRAINT ex_assignment_items_no_overlap
	EXCLUDE USING gist (
		item_id WITH =,
		daterange(start_date, end_date, '[]') WITH &&
	) WHERE (released_at IS NULL);
`},
}

var searchIndexes = []statement{
	{"gin name", `
CREATE INDEX IF NOT EXISTS gin_products_name_trgm
ON products USING gin (name gin_trgm_ops);
`},
	{"gin sku", `
CREATE INDEX IF NOT EXISTS gin_products_sku_trgm
ON products USING gin (sku gin_trgm_ops);
`},
}

var foreignKeys = []statement{
	{"fk master_stocks.product_id", `
ALTER TABLE master_stocks
  DROP CONSTRAINT IF EXISTS fk_master_stocks_product,
  ADD CONSTRAINT fk_master_stocks_product
    FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE;
`},
	{"fk tracked_items.product_id", `
ALTER TABLE tracked_items
  DROP CONSTRAINT IF EXISTS fk_tracked_items_product,
  ADD CONSTRAINT fk_tracked_items_product
    FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE RESTRICT;
`},
	{"fk assignments.product_id", `
ALTER TABLE assignments
  DROP CONSTRAINT IF EXISTS fk_assignments_product,
  ADD CONSTRAINT fk_assignments_product
    FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE RESTRICT;
`},
	{"fk assignment_items.item_id", `
ALTER TABLE assignment_items
  DROP CONSTRAINT IF EXISTS fk_assignment_items_item,
  ADD CONSTRAINT fk_assignment_items_item
    FOREIGN KEY (item_id) REFERENCES tracked_items(id) ON DELETE RESTRICT;
`},
	{"fk stock_adjustments.product_id", `
ALTER TABLE stock_adjustments
  DROP CONSTRAINT IF EXISTS fk_stock_adjustments_product,
  ADD CONSTRAINT fk_stock_adjustments_product
    FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE RESTRICT;
`},
}

func MigrateLedgerDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы складского учёта")
	db = db.WithContext(ctx)

	if opt.CreateExtensions {
		log.Info("Создание расширений PostgreSQL")
		if err := run(db, log, extensions); err != nil {
			return err
		}
		log.Info("Расширения созданы")
	}

	log.Info("Создание таблиц: products, master_stocks, tracked_items, assignments, assignment_items, stock_adjustments")
	if err := db.AutoMigrate(
		&models.Product{},
		&models.MasterStock{},
		&models.TrackedItem{},
		&models.Assignment{},
		&models.AssignmentItem{},
		&models.StockAdjustment{},
	); err != nil {
		log.Error("AutoMigrate error", zap.Error(err))
		return err
	}
	log.Info("Таблицы созданы")

	if opt.CreateUpdatedAtTrigger {
		log.Info("Создание триггеров")
		if err := run(db, log, triggers); err != nil {
			return err
		}
		log.Info("Триггеры созданы")
	}

	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")
		if err := run(db, log, checks); err != nil {
			return err
		}
		log.Info("CHECK-и созданы")
	}

	if opt.CreateIndexes {
		log.Info("Создание индексов и уникальностей")
		if err := run(db, log, indexes); err != nil {
			return err
		}
		log.Info("Индексы созданы")
	}

	if opt.CreateExclusions {
		if !opt.CreateExtensions {
			log.Warn("EXCLUDE требует btree_gist; расширение должно быть создано заранее")
		}
		log.Info("Создание EXCLUDE-ограничений")
		if err := run(db, log, exclusions); err != nil {
			return err
		}
		log.Info("EXCLUDE-ограничения созданы")
	}

	if opt.CreateSearchIndexes {
		log.Info("Создание GIN(trgm) индексов для поиска")
		if err := run(db, log, searchIndexes); err != nil {
			return err
		}
		log.Info("GIN индексы созданы")
	}

	if opt.CreateFKsViaSQL {
		log.Info("Создание внешних ключей")
		if err := run(db, log, foreignKeys); err != nil {
			return err
		}
		log.Info("Внешние ключи созданы")
	}

	log.Info("Миграция базы складского учёта успешно завершена")
	return nil
}
