// Package legacydb is the optional relational mirror named but not
// specified by §1/§6.4 ("the optional relational schema (legacy)... the
// spec names these and fixes their contracts but does not re-derive their
// internals"): a read-oriented SQLite copy of usage.Record for operators
// migrating off the append-only JSONL usage log who still want SQL
// aggregation. Grounded on the teacher's model/main.go (openSQLite,
// gorm.Open with PrepareStmt) and model/log.go's request-log row shape,
// trimmed to the fields usage.Record already tracks.
package legacydb

import (
	"fmt"
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/songquanpeng/smart-router-gateway/internal/usage"
)

// Row mirrors usage.Record as a queryable SQL table (§3.8).
type Row struct {
	ID             uint      `gorm:"primarykey"`
	RequestID      string    `gorm:"index;column:request_id"`
	Timestamp      time.Time `gorm:"index"`
	Model          string    `gorm:"index"`
	ChannelID      string    `gorm:"index;column:channel_id"`
	ChannelName    string    `gorm:"column:channel_name"`
	Provider       string    `gorm:"index"`
	InputTokens    int       `gorm:"column:input_tokens"`
	OutputTokens   int       `gorm:"column:output_tokens"`
	InputCost      float64   `gorm:"column:input_cost"`
	OutputCost     float64   `gorm:"column:output_cost"`
	TotalCost      float64   `gorm:"column:total_cost;index"`
	Status         string    `gorm:"index"`
	ResponseTimeMS int64     `gorm:"column:response_time_ms"`
}

func (Row) TableName() string { return "usage_records" }

func fromRecord(r usage.Record) Row {
	return Row{
		RequestID:      r.RequestID,
		Timestamp:      r.Timestamp,
		Model:          r.Model,
		ChannelID:      r.ChannelID,
		ChannelName:    r.ChannelName,
		Provider:       r.Provider,
		InputTokens:    r.InputTokens,
		OutputTokens:   r.OutputTokens,
		InputCost:      r.InputCost,
		OutputCost:     r.OutputCost,
		TotalCost:      r.TotalCost,
		Status:         r.Status,
		ResponseTimeMS: r.ResponseTimeMS,
	}
}

// Store wraps the SQLite mirror. The zero value is not usable; use Open.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) the SQLite file at path and migrates the
// usage_records table, mirroring the teacher's openSQLite (model/main.go).
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=5000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{PrepareStmt: true})
	if err != nil {
		return nil, errors.Wrap(err, "open legacy sqlite database")
	}
	if err := db.AutoMigrate(&Row{}); err != nil {
		return nil, errors.Wrap(err, "migrate legacy usage_records table")
	}
	return &Store{db: db}, nil
}

// Append mirrors one usage record into the relational store. Callers treat
// this as best-effort: a legacy-mirror write failure must never fail the
// request the record describes (§6.4 names this store as a convenience, not
// the usage system of record).
func (s *Store) Append(r usage.Record) error {
	if err := s.db.Create(fromRecord(r)).Error; err != nil {
		return errors.Wrap(err, "insert legacy usage record")
	}
	return nil
}

// Recent returns the most recent n rows, newest first, for the admin read
// surface (§6.1's admin endpoints, generalized to also serve from this
// store when present).
func (s *Store) Recent(n int) ([]Row, error) {
	var rows []Row
	if err := s.db.Order("timestamp desc").Limit(n).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query recent legacy usage records")
	}
	return rows, nil
}

// TotalCostByChannel sums total_cost for a channel across every mirrored
// record, a query the append-only JSONL log cannot answer without a full
// scan (§6.4's rationale for keeping this store around at all).
func (s *Store) TotalCostByChannel(channelID string) (float64, error) {
	var total float64
	err := s.db.Model(&Row{}).
		Where("channel_id = ?", channelID).
		Select("COALESCE(SUM(total_cost), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, errors.Wrap(err, "sum legacy usage cost by channel")
	}
	return total, nil
}

// Close releases the underlying SQL connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "get underlying sql.DB")
	}
	return sqlDB.Close()
}
