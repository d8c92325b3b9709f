package database

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"blango/internal/middleware"

	"gorm.io/gorm"
)

// MigrationLog records one applied migration.
type MigrationLog struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64"`
	AppliedAt time.Time `gorm:"autoCreateTime;index"`
}

func (MigrationLog) TableName() string {
	return "migration_logs"
}

// Migrator applies and reverts a fixed set of migrations against db,
// bookkeeping them in migration_logs.
type Migrator struct {
	db     *gorm.DB
	set    []Migration
	logger *slog.Logger
}

// NewMigrator binds set to db. A nil logger uses the global one.
func NewMigrator(db *gorm.DB, set []Migration, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = middleware.Logger
	}
	return &Migrator{db: db, set: set, logger: logger}
}

func (m *Migrator) ensureLogTable(ctx context.Context) error {
	mig := m.db.WithContext(ctx).Migrator()
	if mig.HasTable(&MigrationLog{}) {
		return nil
	}
	if err := mig.CreateTable(&MigrationLog{}); err != nil {
		return fmt.Errorf("create migration_logs: %w", err)
	}
	return nil
}

// Applied lists the recorded migrations in version order. A database that was
// never migrated has none.
func (m *Migrator) Applied(ctx context.Context) ([]MigrationLog, error) {
	if !m.db.WithContext(ctx).Migrator().HasTable(&MigrationLog{}) {
		return nil, nil
	}
	var logs []MigrationLog
	if err := m.db.WithContext(ctx).Order("version").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return logs, nil
}

// Pending returns the migrations not yet recorded, after checking that every
// recorded version still exists in the set.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, []MigrationLog, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := m.checkApplied(applied); err != nil {
		return nil, applied, err
	}

	done := make(map[int]bool, len(applied))
	for _, l := range applied {
		done[l.Version] = true
	}
	var pending []Migration
	for _, mg := range m.set {
		if !done[mg.Version] {
			pending = append(pending, mg)
		}
	}
	return pending, applied, nil
}

// checkApplied rejects logs for versions the binary does not know and warns
// when an applied script has been edited since.
func (m *Migrator) checkApplied(applied []MigrationLog) error {
	byVersion := make(map[int]Migration, len(m.set))
	for _, mg := range m.set {
		byVersion[mg.Version] = mg
	}

	var unknown []string
	for _, l := range applied {
		mg, ok := byVersion[l.Version]
		if !ok {
			unknown = append(unknown, fmt.Sprintf("%06d", l.Version))
			continue
		}
		if l.Checksum != "" && l.Checksum != mg.Checksum {
			m.logger.Warn("applied migration changed on disk",
				slog.String("migration", mg.String()),
				slog.String("recorded", l.Checksum),
				slog.String("current", mg.Checksum),
			)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("migration_logs has versions this build does not know: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Up applies every pending migration, each in its own transaction, and
// reports how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureLogTable(ctx); err != nil {
		return 0, err
	}
	pending, _, err := m.Pending(ctx)
	if err != nil {
		return 0, err
	}

	for i, mg := range pending {
		m.logger.Info("applying migration", slog.String("migration", mg.String()))
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(mg.UpScript).Error; err != nil {
				return err
			}
			return tx.Create(&MigrationLog{Version: mg.Version, Name: mg.Name, Checksum: mg.Checksum}).Error
		})
		if err != nil {
			return i, fmt.Errorf("apply migration %s: %w", mg, err)
		}
	}
	return len(pending), nil
}

// Down reverts the applied migration with version.
func (m *Migrator) Down(ctx context.Context, version int) error {
	idx := slices.IndexFunc(m.set, func(mg Migration) bool { return mg.Version == version })
	if idx < 0 {
		return fmt.Errorf("migration version %d not found", version)
	}
	mg := m.set[idx]

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(applied, func(l MigrationLog) bool { return l.Version == version }) {
		return fmt.Errorf("migration %s has not been applied", mg)
	}

	m.logger.Info("rolling back migration", slog.String("migration", mg.String()))
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(mg.DownScript).Error; err != nil {
			return fmt.Errorf("roll back %s: %w", mg, err)
		}
		return tx.Where("version = ?", version).Delete(&MigrationLog{}).Error
	})
}

// RunMigrations applies the embedded migrations.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	n, err := NewMigrator(db, GetMigrations(), nil).Up(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		middleware.Logger.Info("sql migrations applied", slog.Int("count", n))
	}
	return nil
}

// RollbackMigration reverts one embedded migration by version.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	return NewMigrator(db, GetMigrations(), nil).Down(ctx, version)
}
