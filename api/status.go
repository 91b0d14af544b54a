package api

import (
	"github.com/drobo-robotics/poled/connectivity"
	"github.com/drobo-robotics/poled/detector"
	"net/http"
	"time"
)

type getStatusResponse struct {
	detector.Status
	Link connectivity.State `json:"link"`
	// Started is when the sensors were last brought up.
	Started *time.Time `json:"started,omitempty"`
}

func (a *Api) handleGetStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.detector == nil {
			a.jsonError(w, "Detection not started", http.StatusServiceUnavailable)
			return
		}

		res := &getStatusResponse{
			Status: a.detector.Status(),
			Link:   connectivity.Offline,
		}

		if a.link != nil {
			res.Link = a.link.CurrentState()
		}

		if a.db != nil {
			started, err := a.db.GetStarted()
			if err != nil {
				a.log.Warnf("Could not read start time: %v", err)
			} else if !started.IsZero() {
				res.Started = &started
			}
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}
