package api

import (
	"github.com/gorilla/websocket"
	"net/http"
	"time"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type getEventsEvent struct {
	Axle      uint8     `json:"axle"`
	State     string    `json:"state"`
	Outcome   string    `json:"outcome"`
	Attempts  int       `json:"attempts"`
	ElapsedMs int64     `json:"elapsed_ms"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// handleGetEvents streams every dispatch outcome over a websocket until the
// peer goes away.
func (a *Api) handleGetEvents() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		if a.detector == nil {
			a.jsonError(w, "Detection not started", http.StatusServiceUnavailable)
			return
		}

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Warnf("Could not upgrade events connection: %v", err)
			return
		}

		client := a.detector.SubscribeEvents()
		defer client.Cancel()

		closed := make(chan struct{})

		// read pump
		go func() {
			defer close(closed)

			c.SetReadLimit(512)
			c.SetReadDeadline(time.Now().Add(pongWait))
			c.SetPongHandler(func(string) error {
				c.SetReadDeadline(time.Now().Add(pongWait))
				return nil
			})

			for {
				_, _, err := c.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						a.log.Errorf("unexpected websocket closure: %v", err)
					}
					break
				}
			}
		}()

		// write pump
		defer c.Close()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case event, ok := <-client.Events:
				c.SetWriteDeadline(time.Now().Add(writeWait))

				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}

				err := c.WriteJSON(&getEventsEvent{
					Axle:      uint8(event.Command.Axle),
					State:     event.Command.State.String(),
					Outcome:   event.Outcome.String(),
					Attempts:  event.Attempts,
					ElapsedMs: event.Elapsed.Milliseconds(),
					Error:     event.Error,
					Time:      event.Time,
				})
				if err != nil {
					return
				}
			case <-ticker.C:
				c.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-closed:
				return
			}
		}
	}
}
