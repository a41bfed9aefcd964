// Package sqlite implements kv.Store on an embedded SQLite database through gorm.
package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/xenking/kart/internal/kv"
)

var _ kv.Store = (*Store)(nil)

// Entry is one stored key. Version increases on every write and guards
// optimistic updates.
type Entry struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte `gorm:"not null"`
	Version   int64  `gorm:"not null;default:1"`
	UpdatedAt time.Time
}

// TableName overrides the gorm default.
func (Entry) TableName() string { return "kv_entries" }

// Store is a kv.Store on a single SQLite database.
type Store struct {
	db        *gorm.DB
	namespace string
}

// Open opens (creating if needed) the database at dsn and migrates the schema.
// Use "file:name?mode=memory&cache=shared" for a throwaway in-memory database.
func Open(dsn, namespace string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "sqlite handle")
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Entry{}); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	return &Store{db: db, namespace: namespace}, nil
}

func (s *Store) key(k string) string { return kv.Namespaced(s.namespace, k) }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("key = ?", s.key(key)).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %q", key)
	}
	return e.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	e := Entry{Key: s.key(key), Value: value, Version: 1, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      value,
			"version":    gorm.Expr("version + 1"),
			"updated_at": e.UpdatedAt,
		}),
	}).Create(&e).Error
	if err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", s.key(key)).Delete(&Entry{}).Error; err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where(`key LIKE ? ESCAPE '\'`, escapeLike(s.key(prefix))+"%").
		Find(&entries).Error
	if err != nil {
		return nil, errors.Wrapf(err, "scan %q", prefix)
	}

	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		out[kv.StripNamespace(s.namespace, e.Key)] = e.Value
	}
	return out, nil
}

// Update reads the row with its version and writes back only if the version
// is unchanged, retrying otherwise.
func (s *Store) Update(ctx context.Context, key string, fn kv.UpdateFunc) error {
	k := s.key(key)
	db := s.db.WithContext(ctx)

	for range kv.MaxRetries {
		var e Entry
		exists := true
		err := db.Where("key = ?", k).Take(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			exists = false
		} else if err != nil {
			return errors.Wrapf(err, "get %q", key)
		}

		var cur []byte
		if exists {
			cur = e.Value
		}
		next, err := fn(cur, exists)
		if err != nil {
			return err
		}

		var res *gorm.DB
		if exists {
			res = db.Model(&Entry{}).
				Where("key = ? AND version = ?", k, e.Version).
				Updates(map[string]any{"value": next, "version": e.Version + 1, "updated_at": time.Now()})
		} else {
			res = db.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&Entry{Key: k, Value: next, Version: 1, UpdatedAt: time.Now()})
		}
		if res.Error != nil {
			return errors.Wrapf(res.Error, "write %q", key)
		}
		if res.RowsAffected == 1 {
			return nil
		}
	}
	return errors.Wrapf(kv.ErrConflict, "update %q", key)
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func escapeLike(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(p)
}
