package poledb

import (
	"github.com/go-errors/errors"
	"time"
)

// SensorBinding is the select line and bus address a sensor was brought up
// on.
type SensorBinding struct {
	Sensor     string `json:"sensor"`
	SelectLine string `json:"select_line"`
	Address    uint16 `json:"address"`
}

// SetBindings replaces the stored bindings and records the start time.
func (db *DB) SetBindings(bindings []SensorBinding, started time.Time) error {
	if err := db.setJSON(bindingsBucket, bindingsKey, bindings); err != nil {
		return errors.Errorf("Could not save sensor bindings: %v", err)
	}

	if err := db.setJSON(metaBucket, startedKey, started); err != nil {
		return errors.Errorf("Could not save start time: %v", err)
	}

	return nil
}

func (db *DB) GetBindings() ([]SensorBinding, error) {
	var bindings []SensorBinding

	if _, err := db.getJSON(bindingsBucket, bindingsKey, &bindings); err != nil {
		return nil, errors.Errorf("Could not read sensor bindings: %v", err)
	}

	return bindings, nil
}

// GetStarted returns when the sensors were last brought up, the zero time
// if never.
func (db *DB) GetStarted() (time.Time, error) {
	var started time.Time

	if _, err := db.getJSON(metaBucket, startedKey, &started); err != nil {
		return time.Time{}, errors.Errorf("Could not read start time: %v", err)
	}

	return started, nil
}
