package poledb

import (
	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
	"os"
	"path/filepath"
	"time"
)

const (
	dbName           = "poled.db"
	dbFilePermission = 0600
)

var (
	axlesBucket    = []byte("axles")
	bindingsBucket = []byte("bindings")
	metaBucket     = []byte("meta")

	bindingsKey = []byte("sensors")
	startedKey  = []byte("started")
)

// DB persists controller state between runs.
type DB struct {
	*bbolt.DB
	dbPath string
}

// Open opens or creates poled.db in dbPath.
func Open(dbPath string) (*DB, error) {
	path := filepath.Join(dbPath, dbName)

	if err := os.MkdirAll(dbPath, 0700); err != nil {
		return nil, errors.Errorf("Could not create data dir %v: %v", dbPath, err)
	}

	bdb, err := bbolt.Open(path, dbFilePermission, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Errorf("Could not open %v: %v", path, err)
	}

	db := &DB{
		DB:     bdb,
		dbPath: dbPath,
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{axlesBucket, bindingsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, errors.Errorf("Could not create buckets: %v", err)
	}

	return db, nil
}
