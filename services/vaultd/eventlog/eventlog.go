// Package eventlog archives engine events in a sqlite database so operators
// can page through recent activity after the fact.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stablevault/core/events"
	"stablevault/core/types"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Record is one archived event.
type Record struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement" json:"seq"`
	ID         uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"id"`
	Type       string    `gorm:"index" json:"type"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
}

// Event decodes the stored attributes back into the generic event form.
func (r Record) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Archive persists events through gorm.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the sqlite file at path and migrates the schema.
// ":memory:" yields a private in-memory archive.
func Open(path string) (*Archive, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" || dsn == ":memory:" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open event archive: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Archive, error) {
	if db == nil {
		return nil, errors.New("event archive: nil database")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate event archive: %w", err)
	}
	return &Archive{db: db, logger: slog.Default(), now: time.Now}, nil
}

// SetLogger overrides the logger used to report write failures.
func (a *Archive) SetLogger(l *slog.Logger) {
	if l != nil {
		a.logger = l
	}
}

// Append stores evt and returns the persisted record.
func (a *Archive) Append(ctx context.Context, evt events.Event) (*Record, error) {
	rendered := events.Render(evt)
	if rendered == nil {
		return nil, errors.New("event archive: nil event")
	}
	attrs, err := json.Marshal(rendered.Attributes)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}
	record := &Record{
		ID:         uuid.New(),
		Type:       rendered.Type,
		Attributes: string(attrs),
		CreatedAt:  a.now().UTC(),
	}
	if err := a.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	return record, nil
}

// Emit implements events.Emitter. Failures are logged; the engine has
// already committed by the time events are delivered.
func (a *Archive) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	if _, err := a.Append(context.Background(), evt); err != nil {
		a.logger.Error("event archive write failed", slog.String("type", evt.EventType()), slog.Any("error", err))
	}
}

// Recent returns up to limit events, newest first, optionally filtered by
// type.
func (a *Archive) Recent(ctx context.Context, limit int, eventType string) ([]Record, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := a.db.WithContext(ctx).Order("seq DESC").Limit(limit)
	if eventType = strings.TrimSpace(eventType); eventType != "" {
		query = query.Where("type = ?", eventType)
	}
	var records []Record
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return records, nil
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
