package setstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps sets and the audit log in a relational database (sqlite or postgres). Uniqueness of set
// membership is enforced by the database, so several processes may share one store.
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

type SetMember struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"not null"`
	SetName   string    `gorm:"uniqueIndex:idx_set_member;not null"`
	Member    string    `gorm:"uniqueIndex:idx_set_member;not null"`
}

type AuditRecord struct {
	ID        uint      `gorm:"primarykey"`
	Timestamp time.Time `gorm:"index;not null"`
	Action    string    `gorm:"index;not null"`
	Subject   string    `gorm:"index;not null"`
	Handle    string
	// JSON-encoded [Details], or empty
	Details string
}

var _ SetStore = (*SQLStore)(nil)

func NewSQLStore(db *gorm.DB, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&SetMember{}, &AuditRecord{}); err != nil {
		return nil, fmt.Errorf("migrating set store tables: %w", err)
	}
	return &SQLStore{
		db:     db,
		logger: logger.With("store", "sql"),
	}, nil
}

func (s *SQLStore) AddIfAbsent(ctx context.Context, name SetName, e Entry) (Outcome, error) {
	if !name.Valid() {
		return 0, fmt.Errorf("unknown set: %q", name)
	}
	if e.ID == "" {
		return 0, fmt.Errorf("empty id for set %s", name)
	}

	outcome := AlreadyPresent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&SetMember{
			CreatedAt: now(),
			SetName:   string(name),
			Member:    e.ID,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		outcome = Added
		if !name.Audited() {
			return nil
		}
		rec, err := auditRecord(AuditEntry{Action: name.AddAction(), User: e.ID, Handle: e.Handle, Details: e.Details})
		if err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return 0, &PersistError{Target: "set " + string(name), Err: err}
	}
	return outcome, nil
}

func (s *SQLStore) Contains(ctx context.Context, name SetName, id string) (bool, error) {
	var m SetMember
	err := s.db.WithContext(ctx).Where("set_name = ? AND member = ?", string(name), id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) Members(ctx context.Context, name SetName) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Model(&SetMember{}).Where("set_name = ?", string(name)).Order("id").Pluck("member", &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func auditRecord(entry AuditEntry) (*AuditRecord, error) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now()
	}
	rec := &AuditRecord{
		Timestamp: entry.Timestamp,
		Action:    entry.Action,
		Subject:   entry.User,
		Handle:    entry.Handle,
	}
	if entry.Details != nil {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return nil, err
		}
		rec.Details = string(b)
	}
	return rec, nil
}

func (s *SQLStore) Log(ctx context.Context, entry AuditEntry) error {
	rec, err := auditRecord(entry)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return &PersistError{Target: "audit log", Err: err}
	}
	return nil
}

func (s *SQLStore) AuditLog(ctx context.Context) ([]AuditEntry, error) {
	var recs []AuditRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]AuditEntry, 0, len(recs))
	for _, rec := range recs {
		ae := AuditEntry{
			Timestamp: rec.Timestamp,
			Action:    rec.Action,
			User:      rec.Subject,
			Handle:    rec.Handle,
		}
		if rec.Details != "" {
			ae.Details = &Details{}
			if err := json.Unmarshal([]byte(rec.Details), ae.Details); err != nil {
				return nil, fmt.Errorf("audit record %d: %w", rec.ID, err)
			}
		}
		out = append(out, ae)
	}
	return out, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
