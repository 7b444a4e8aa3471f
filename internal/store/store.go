package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/careoclock/server/internal/config"
	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides unified access to SQLite and the BadgerDB work queue
type Store struct {
	db     *gorm.DB
	badger *badger.DB
	config *config.StorageConfig
}

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "careoclock.db")
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{
		db:     db,
		badger: badgerDB,
		config: &cfg.Storage,
	}, nil
}

// NewWithDB wraps an existing gorm handle; the evaluation queue is
// unavailable. Intended for tests.
func NewWithDB(db *gorm.DB) (*Store, error) {
	return NewWithDBAndQueue(db, nil)
}

// NewWithDBAndQueue wraps existing gorm and badger handles. Intended for
// tests that exercise the evaluation queue.
func NewWithDBAndQueue(db *gorm.DB, queue *badger.DB) (*Store, error) {
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db, badger: queue}, nil
}

// Migrate applies the schema
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&User{},
		&Medicine{},
		&IntakeRecord{},
		&HealthRecord{},
		&Alert{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// Close closes all database connections
func (s *Store) Close() error {
	if s.badger != nil {
		return s.badger.Close()
	}
	return nil
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

func generateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func marshalStrings(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	b, _ := json.Marshal(vals)
	return string(b)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var vals []string
	json.Unmarshal([]byte(raw), &vals)
	return vals
}

// ==================== Evaluation Queue (BadgerDB) ====================

const evalQueuePrefix = "evalqueue:"

// EnqueueEvaluation queues a user for asynchronous alert evaluation.
// Timestamp keys keep the queue FIFO.
func (s *Store) EnqueueEvaluation(userID string) error {
	if s.badger == nil {
		return fmt.Errorf("evaluation queue not available")
	}
	return s.badger.Update(func(txn *badger.Txn) error {
		key := fmt.Sprintf("%s%d:%s", evalQueuePrefix, time.Now().UnixNano(), userID)
		return txn.Set([]byte(key), []byte(userID))
	})
}

// ErrQueueEmpty is returned by DequeueEvaluation when no work is pending
var ErrQueueEmpty = fmt.Errorf("queue empty")

// DequeueEvaluation pops the oldest queued user ID
func (s *Store) DequeueEvaluation() (string, error) {
	if s.badger == nil {
		return "", fmt.Errorf("evaluation queue not available")
	}

	var userID string
	prefix := []byte(evalQueuePrefix)

	err := s.badger.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return ErrQueueEmpty
		}

		item := it.Item()
		key := item.KeyCopy(nil)

		if err := item.Value(func(v []byte) error {
			userID = string(v)
			return nil
		}); err != nil {
			return err
		}

		return txn.Delete(key)
	})

	return userID, err
}
