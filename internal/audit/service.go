package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"depot-backend/internal/cache"
	"depot-backend/internal/database"
	"depot-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAlreadyUndone = errors.New("this change has already been undone")
	ErrNotUndoable   = errors.New("this change cannot be undone")
)

type LogOptions struct {
	DB          *gorm.DB // defaults to database.DB; pass the tx when logging inside one
	TenantID    *uint
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

func snapshot(v any) string {
	if v == nil {
		return "null"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func WriteLog(opts LogOptions) error {
	db := opts.DB
	if db == nil {
		db = database.DB
	}

	entry := models.AuditLog{
		TenantID:    opts.TenantID,
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  snapshot(opts.Before),
		AfterData:   snapshot(opts.After),
	}

	if err := db.Create(&entry).Error; err != nil {
		return fmt.Errorf("audit: write log: %w", err)
	}
	return nil
}

// Undoer reverts one kind of entity. Snapshots are the JSON stored in the log.
type Undoer interface {
	// UndoCreate removes an entity that a create log recorded.
	UndoCreate(tx *gorm.DB, entityID uint) error
	// UndoUpdate puts back the before snapshot of an update log.
	UndoUpdate(tx *gorm.DB, entityID uint, before, after []byte) error
	// UndoDelete recreates the before snapshot of a delete log.
	UndoDelete(tx *gorm.DB, before []byte) error
}

var (
	undoersMu sync.RWMutex
	undoers   = map[string]Undoer{}
)

// Register installs the undoer for an entity type, replacing any previous one.
func Register(entityType string, u Undoer) {
	undoersMu.Lock()
	defer undoersMu.Unlock()
	undoers[entityType] = u
}

func lookup(entityType string) (Undoer, bool) {
	undoersMu.RLock()
	defer undoersMu.RUnlock()
	u, ok := undoers[entityType]
	return u, ok
}

// UndoLog reverts the change behind a log entry and records an undo entry.
// The tenant's cached reports are invalidated once the undo commits.
func UndoLog(logID uint, userID uint, userName string) error {
	var tenantID *uint
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var entry models.AuditLog
		if err := tx.First(&entry, logID).Error; err != nil {
			return fmt.Errorf("audit: load log: %w", err)
		}
		tenantID = entry.TenantID
		if entry.IsUndone {
			return ErrAlreadyUndone
		}

		u, ok := lookup(entry.EntityType)
		if !ok {
			return ErrNotUndoable
		}

		var err error
		switch entry.Action {
		case models.AuditActionCreate:
			err = u.UndoCreate(tx, entry.EntityID)
		case models.AuditActionUpdate:
			err = u.UndoUpdate(tx, entry.EntityID, []byte(entry.BeforeData), []byte(entry.AfterData))
		case models.AuditActionDelete:
			err = u.UndoDelete(tx, []byte(entry.BeforeData))
		default:
			return ErrNotUndoable
		}
		if err != nil {
			return err
		}

		now := time.Now()
		entry.IsUndone = true
		entry.UndoneBy = &userID
		entry.UndoneAt = &now
		if err := tx.Save(&entry).Error; err != nil {
			return fmt.Errorf("audit: mark undone: %w", err)
		}

		undo := models.AuditLog{
			TenantID:    entry.TenantID,
			UserID:      userID,
			UserName:    userName,
			EntityType:  entry.EntityType,
			EntityID:    entry.EntityID,
			Action:      models.AuditActionUndo,
			Description: truncate("Undone: "+entry.Description, 255),
			BeforeData:  entry.AfterData,
			AfterData:   entry.BeforeData,
		}
		if err := tx.Create(&undo).Error; err != nil {
			return fmt.Errorf("audit: write undo log: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if tenantID != nil {
		cache.Invalidate(*tenantID)
	}
	zap.L().Info("change undone", zap.Uint("log_id", logID), zap.Uint("user_id", userID))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ModelUndoer reverts plain rows of T with no side effects on other tables.
type ModelUndoer[T any] struct{}

func (ModelUndoer[T]) UndoCreate(tx *gorm.DB, entityID uint) error {
	res := tx.Delete(new(T), entityID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("audit: entity %d no longer exists", entityID)
	}
	return nil
}

func (ModelUndoer[T]) UndoUpdate(tx *gorm.DB, entityID uint, before, _ []byte) error {
	var row T
	if err := json.Unmarshal(before, &row); err != nil {
		return fmt.Errorf("audit: decode snapshot: %w", err)
	}
	var count int64
	if err := tx.Model(new(T)).Where("id = ?", entityID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("audit: entity %d no longer exists", entityID)
	}
	return tx.Save(&row).Error
}

func (ModelUndoer[T]) UndoDelete(tx *gorm.DB, before []byte) error {
	var row T
	if err := json.Unmarshal(before, &row); err != nil {
		return fmt.Errorf("audit: decode snapshot: %w", err)
	}
	// Select("*") keeps zero values such as Active=false instead of column defaults
	return tx.Select("*").Create(&row).Error
}
