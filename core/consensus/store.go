package consensus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/fatih/color"
	_ "github.com/mattn/go-sqlite3"

	"github.com/MiguelVN7/Mini-Blockchain/core"
)

// StateStore persists the engine state. Save replaces the stored snapshot and
// appends commits in one atomic write. Load returns an empty snapshot when
// nothing has been saved yet.
type StateStore interface {
	Load() (*Snapshot, error)
	Save(snap *Snapshot, commits ...Commit) error
	// Commits returns up to limit commits, newest first. limit <= 0 returns all.
	Commits(limit int) ([]Commit, error)
	Close() error
}

// The snapshot is stored under this key in every backend.
const stateKey = "state"

// SQLiteStore keeps the snapshot in the datastores table and the commit
// history in its own table.
type SQLiteStore struct {
	db  *sql.DB
	log *log.Logger
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, log: core.NewLogger("store", "sqlite")}, nil
}

func (s *SQLiteStore) Load() (*Snapshot, error) {
	return LoadDataStore[Snapshot](s.db, stateKey)
}

func (s *SQLiteStore) Save(snap *Snapshot, commits ...Commit) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	if err := putDataStore(tx, stateKey, *snap); err != nil {
		tx.Rollback()
		return err
	}
	for _, c := range commits {
		_, err := tx.Exec(
			`insert into commits (turn, seed, leader_id, block_index, block_hash, agreement, timestamp) values (?, ?, ?, ?, ?, ?, ?)`,
			c.Turn, c.Seed, c.LeaderID, c.BlockIndex, c.BlockHash, c.Agreement, c.Timestamp,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting commit: %s", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	if len(commits) > 0 {
		s.log.Printf("saved state with %d commit(s)\n", len(commits))
	}
	return nil
}

func (s *SQLiteStore) Commits(limit int) ([]Commit, error) {
	if limit <= 0 {
		// sqlite treats a negative limit as no limit.
		limit = -1
	}
	rows, err := s.db.Query(
		`select turn, seed, leader_id, block_index, block_hash, agreement, timestamp from commits order by id desc limit ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commits := []Commit{}
	for rows.Next() {
		var c Commit
		if err := rows.Scan(&c.Turn, &c.Seed, &c.LeaderID, &c.BlockIndex, &c.BlockHash, &c.Agreement, &c.Timestamp); err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the CLI's key storage.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func dbGetVersion(db *sql.DB) (int, error) {
	databaseVersion := -1
	err := db.QueryRow("SELECT version FROM consensus_version ORDER BY version DESC LIMIT 1").Scan(&databaseVersion)
	if err != nil && err != sql.ErrNoRows {
		return -1, fmt.Errorf("error checking database version: %s", err)
	}
	return databaseVersion, nil
}

func dbMigrate(db *sql.DB, migrationIndex int, migrateFn func(tx *sql.Tx) error) error {
	logger := core.NewLogger("db", "")

	version, err := dbGetVersion(db)
	if err != nil {
		return err
	}

	// Skip migration if the database is already at the target version.
	if migrationIndex <= version {
		return nil
	}

	logger.Printf("Running migration: %d\n", migrationIndex)
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := migrateFn(tx); err != nil {
		tx.Rollback()
		return err
	}

	_, err = tx.Exec("insert into consensus_version (version) values (?)", migrationIndex)
	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// OpenDB opens (or creates) a sqlite database and brings its schema up to date.
func OpenDB(dbPath string) (*sql.DB, error) {
	logger := core.NewLogger("db", "")

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("create table if not exists consensus_version (version int)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error checking database version: %s", err)
	}
	databaseVersion, err := dbGetVersion(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Printf("Database version: %d\n", databaseVersion)

	migrations := []func(tx *sql.Tx) error{
		func(tx *sql.Tx) error {
			_, err := tx.Exec(`create table datastores (
				-- use k,v instead of key,value to avoid reserved word conflicts
				k TEXT PRIMARY KEY,
				v blob
			)`)
			if err != nil {
				return fmt.Errorf("error creating 'datastores' table: %s", err)
			}
			return nil
		},
		func(tx *sql.Tx) error {
			_, err := tx.Exec(`create table commits (
				id integer primary key autoincrement,
				turn integer,
				seed integer,
				leader_id text,
				block_index integer,
				block_hash text,
				agreement real,
				timestamp integer
			)`)
			if err != nil {
				return fmt.Errorf("error creating 'commits' table: %s", err)
			}
			return nil
		},
	}
	for i, migrate := range migrations {
		if err := dbMigrate(db, i, migrate); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// DataStore is a value stored as JSON in the datastores table under a unique key.
type DataStore interface {
	Snapshot | KeysStore
}

// KeysStore holds node signing keys created by the keygen command.
type KeysStore struct {
	Keys []NodeKey `json:"keys"`
}

type NodeKey struct {
	// Key label, usually the node id.
	Label string `json:"label"`
	// Signature scheme, see NewCryptoProvider.
	Scheme string `json:"scheme"`
	// Private key as a hex string, or the armored key for pgp.
	PrivateKeyString string `json:"privateKeyString"`
}

// LoadDataStore reads a data store by key. A missing key yields the zero value.
func LoadDataStore[T DataStore](db *sql.DB, key string) (*T, error) {
	logger := core.NewLogger("db", "")

	buf := []byte("{}")
	err := db.QueryRow("SELECT v FROM datastores WHERE k = ?", key).Scan(&buf)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	var store T
	if err := json.Unmarshal(buf, &store); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStateFile, err)
	}

	logger.Printf("store name=%s loaded\n", color.HiYellowString(key))
	return &store, nil
}

// SaveDataStore upserts a data store under key.
func SaveDataStore[T DataStore](db *sql.DB, key string, value T) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := putDataStore(tx, key, value); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func putDataStore[T DataStore](tx *sql.Tx, key string, value T) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO datastores (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", key, buf)
	return err
}
