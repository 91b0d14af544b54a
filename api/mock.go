package api

import (
	"encoding/json"
	"github.com/drobo-robotics/poled/machine"
	"github.com/go-errors/errors"
	"net/http"
)

type putMockDistancesRequest struct {
	Front *machine.Distance `json:"front"`
	Mid   *machine.Distance `json:"mid"`
	Rear  *machine.Distance `json:"rear"`
}

// handlePutMockDistances sets what the mock sensors read next. Omitted
// sensors keep their value.
func (a *Api) handlePutMockDistances() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := putMockDistancesRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		d, err := a.mock.ReadDistances()
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusConflict)
			return
		}

		if req.Front != nil {
			d.Front = *req.Front
		}
		if req.Mid != nil {
			d.Mid = *req.Mid
		}
		if req.Rear != nil {
			d.Rear = *req.Rear
		}

		a.mock.SetDistances(d)

		a.jsonResponse(w, &d, http.StatusOK)
	}
}

type putMockFaultRequest struct {
	// ReadError fails every following sensor read with this message,
	// empty clears the fault.
	ReadError string `json:"read_error"`
}

// handlePutMockFault injects a sensor read failure, which ends the detection
// loop the way a dead sensor would.
func (a *Api) handlePutMockFault() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := putMockFaultRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.ReadError != "" {
			a.log.Warnf("Injecting sensor read failure: %v", req.ReadError)
			a.mock.FailReads(errors.New(req.ReadError))
		} else {
			a.mock.FailReads(nil)
		}

		a.jsonResponse(w, &req, http.StatusOK)
	}
}
