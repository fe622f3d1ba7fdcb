package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/liamashdown/tokenradar/internal/config"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const upsertBatchSize = 200

// ContractRow is the SQL shape of ContractRecord
type ContractRow struct {
	ContractID  string               `gorm:"primaryKey;size:64"`
	Sources     []string             `gorm:"serializer:json;type:text;not null"`
	SourceTimes map[string]time.Time `gorm:"serializer:json;type:text;not null"`
	SourceCount int                  `gorm:"not null"`
	FirstSeen   time.Time            `gorm:"type:datetime(6);not null;index"`
	QuorumAt    *time.Time           `gorm:"type:datetime(6)"`
	Alerted     bool                 `gorm:"not null;default:false"`
	Escalated   bool                 `gorm:"not null;default:false"`

	EscalationDue bool  `gorm:"not null;default:false"`
	WindowSignals int   `gorm:"not null;default:0"`
	UpdatedTS     int64 `gorm:"not null"`
}

func (ContractRow) TableName() string {
	return "contract_records"
}

// TrackedRow is the SQL shape of TrackedToken
type TrackedRow struct {
	ContractID          string              `gorm:"primaryKey;size:64"`
	InitialMarketCap    decimal.NullDecimal `gorm:"type:decimal(38,8)"`
	AllTimeHigh         decimal.Decimal     `gorm:"type:decimal(38,8);not null"`
	AllTimeHighAt       *time.Time          `gorm:"type:datetime(6)"`
	LastAlertMultiplier int                 `gorm:"not null;default:1"`
	LastMarketCap       decimal.NullDecimal `gorm:"type:decimal(38,8)"`
	LastCheckedAt       *time.Time          `gorm:"type:datetime(6)"`
	AddedAt             time.Time           `gorm:"type:datetime(6);not null;index"`
	UpdatedTS           int64               `gorm:"not null"`
}

func (TrackedRow) TableName() string {
	return "tracked_tokens"
}

// BeforeSave hooks for timestamps
func (r *ContractRow) BeforeSave(tx *gorm.DB) error {
	r.UpdatedTS = time.Now().Unix()
	return nil
}

func (r *TrackedRow) BeforeSave(tx *gorm.DB) error {
	r.UpdatedTS = time.Now().Unix()
	return nil
}

// DB is the MySQL Backend
type DB struct {
	conn *gorm.DB
	log  *logrus.Logger
}

// New opens the MySQL backend with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return &DB{conn: conn, log: log}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate creates or updates both tables
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(&ContractRow{}, &TrackedRow{})
}

func (db *DB) LoadSightings(ctx context.Context) (map[string]*ContractRecord, error) {
	var rows []ContractRow
	if err := db.conn.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load contract records: %w", err)
	}

	records := make(map[string]*ContractRecord, len(rows))
	for i := range rows {
		rec := rows[i].toRecord()
		records[rec.ContractID] = rec
	}
	if err := validateSightings(ContractRow{}.TableName(), records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveSightings replaces the table contents with the snapshot in one transaction
func (db *DB) SaveSightings(ctx context.Context, records map[string]*ContractRecord) error {
	rows := make([]ContractRow, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, id := range SortedIDs(records) {
		rows = append(rows, contractRowFrom(records[id]))
		ids = append(ids, id)
	}
	return db.replaceAll(ctx, &ContractRow{}, &rows, ids)
}

func (db *DB) LoadTracked(ctx context.Context) (map[string]*TrackedToken, error) {
	var rows []TrackedRow
	if err := db.conn.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load tracked tokens: %w", err)
	}

	records := make(map[string]*TrackedToken, len(rows))
	for i := range rows {
		rec := rows[i].toRecord()
		records[rec.ContractID] = rec
	}
	if err := validateTracked(TrackedRow{}.TableName(), records); err != nil {
		return nil, err
	}
	return records, nil
}

// SaveTracked replaces the table contents with the snapshot in one transaction
func (db *DB) SaveTracked(ctx context.Context, records map[string]*TrackedToken) error {
	rows := make([]TrackedRow, 0, len(records))
	ids := make([]string, 0, len(records))
	for _, id := range SortedIDs(records) {
		rows = append(rows, trackedRowFrom(records[id]))
		ids = append(ids, id)
	}
	return db.replaceAll(ctx, &TrackedRow{}, &rows, ids)
}

// replaceAll upserts rows and deletes every row of model not listed in ids
func (db *DB) replaceAll(ctx context.Context, model any, rows any, ids []string) error {
	return db.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(ids) == 0 {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return fmt.Errorf("clear table: %w", err)
			}
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, upsertBatchSize).Error; err != nil {
			return fmt.Errorf("upsert rows: %w", err)
		}
		if err := tx.Where("contract_id NOT IN ?", ids).Delete(model).Error; err != nil {
			return fmt.Errorf("delete stale rows: %w", err)
		}
		return nil
	})
}

func contractRowFrom(r *ContractRecord) ContractRow {
	return ContractRow{
		ContractID:  r.ContractID,
		Sources:     r.Sources,
		SourceTimes: r.SourceTimes,
		SourceCount: r.SourceCount,
		FirstSeen:   r.FirstSeen,
		QuorumAt:    r.QuorumAt,
		Alerted:     r.Alerted,
		Escalated:   r.Escalated,

		EscalationDue: r.EscalationDue,
		WindowSignals: r.WindowSignals,
	}
}

func (row *ContractRow) toRecord() *ContractRecord {
	rec := &ContractRecord{
		ContractID:  row.ContractID,
		Sources:     row.Sources,
		SourceTimes: row.SourceTimes,
		SourceCount: row.SourceCount,
		FirstSeen:   row.FirstSeen.UTC(),
		Alerted:     row.Alerted,
		Escalated:   row.Escalated,

		EscalationDue: row.EscalationDue,
		WindowSignals: row.WindowSignals,
	}
	if row.QuorumAt != nil {
		q := row.QuorumAt.UTC()
		rec.QuorumAt = &q
	}
	return rec
}

func trackedRowFrom(t *TrackedToken) TrackedRow {
	return TrackedRow{
		ContractID:          t.ContractID,
		InitialMarketCap:    t.InitialMarketCap,
		AllTimeHigh:         t.AllTimeHigh,
		AllTimeHighAt:       t.AllTimeHighAt,
		LastAlertMultiplier: t.LastAlertMultiplier,
		LastMarketCap:       t.LastMarketCap,
		LastCheckedAt:       t.LastCheckedAt,
		AddedAt:             t.AddedAt,
	}
}

func (row *TrackedRow) toRecord() *TrackedToken {
	rec := &TrackedToken{
		ContractID:          row.ContractID,
		InitialMarketCap:    row.InitialMarketCap,
		AllTimeHigh:         row.AllTimeHigh,
		LastAlertMultiplier: row.LastAlertMultiplier,
		LastMarketCap:       row.LastMarketCap,
		AddedAt:             row.AddedAt.UTC(),
	}
	if row.AllTimeHighAt != nil {
		v := row.AllTimeHighAt.UTC()
		rec.AllTimeHighAt = &v
	}
	if row.LastCheckedAt != nil {
		v := row.LastCheckedAt.UTC()
		rec.LastCheckedAt = &v
	}
	return rec
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
