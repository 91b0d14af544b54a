package poledb

import (
	"encoding/json"
	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
	"time"
)

// AxleRecord is the last state the actuation service acknowledged for an
// axle.
type AxleRecord struct {
	Axle    uint8     `json:"axle"`
	State   uint8     `json:"state"`
	Updated time.Time `json:"updated"`
}

func axleKey(axle uint8) []byte {
	return []byte{axle}
}

func (db *DB) SetAxleRecord(record *AxleRecord) error {
	err := db.setJSON(axlesBucket, axleKey(record.Axle), record)
	if err != nil {
		return errors.Errorf("Could not save axle %d: %v", record.Axle, err)
	}

	return nil
}

// GetAxleRecord returns nil when nothing was stored for axle yet.
func (db *DB) GetAxleRecord(axle uint8) (*AxleRecord, error) {
	record := &AxleRecord{}

	found, err := db.getJSON(axlesBucket, axleKey(axle), record)
	if err != nil {
		return nil, errors.Errorf("Could not read axle %d: %v", axle, err)
	}

	if !found {
		return nil, nil
	}

	return record, nil
}

// GetAxleRecords returns all stored records ordered by axle.
func (db *DB) GetAxleRecords() ([]*AxleRecord, error) {
	var records []*AxleRecord

	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(axlesBucket)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			record := &AxleRecord{}
			if err := json.Unmarshal(v, record); err != nil {
				return errors.Errorf("Could not unmarshal axle %v: %v", k, err)
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}
