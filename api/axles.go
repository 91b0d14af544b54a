package api

import (
	"fmt"
	"github.com/drobo-robotics/poled/actuation"
	"github.com/drobo-robotics/poled/machine"
	"net/http"
	"time"
)

type axleResponse struct {
	Axle    uint8     `json:"axle"`
	State   string    `json:"state"`
	Updated time.Time `json:"updated"`
}

type bindingResponse struct {
	Sensor     machine.Position `json:"sensor"`
	SelectLine string           `json:"select_line"`
	Address    string           `json:"address"`
}

// handleGetAxles lists the axle states stored across runs.
func (a *Api) handleGetAxles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.db == nil {
			a.jsonError(w, "No database configured", http.StatusServiceUnavailable)
			return
		}

		records, err := a.db.GetAxleRecords()
		if err != nil {
			a.log.Errorf("Could not read axle records: %v", err)
			a.jsonError(w, "Could not read axle records", http.StatusInternalServerError)
			return
		}

		res := make([]*axleResponse, 0, len(records))
		for _, record := range records {
			res = append(res, &axleResponse{
				Axle:    record.Axle,
				State:   actuation.AxleState(record.State).String(),
				Updated: record.Updated,
			})
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}

func (a *Api) handleGetBindings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.detector == nil {
			a.jsonError(w, "Detection not started", http.StatusServiceUnavailable)
			return
		}

		bindings := a.detector.Bindings()

		res := make([]*bindingResponse, 0, len(bindings))
		for _, b := range bindings {
			res = append(res, &bindingResponse{
				Sensor:     b.Sensor,
				SelectLine: b.SelectLine,
				Address:    hexAddress(b.Address),
			})
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}

func hexAddress(addr uint16) string {
	return fmt.Sprintf("%#02x", addr)
}
