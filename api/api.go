package api

import (
	"github.com/drobo-robotics/poled/connectivity"
	"github.com/drobo-robotics/poled/detector"
	"github.com/drobo-robotics/poled/machine"
	"github.com/drobo-robotics/poled/metrics"
	"github.com/drobo-robotics/poled/poledb"
	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"net"
	"net/http"
)

type Config struct {
	DB      *poledb.DB
	Metrics *metrics.Collector
	Link    connectivity.Reporter
	// Mock enables the endpoint that feeds distances into the mock sensors.
	Mock *machine.MockMachine
	Log  Logger
}

type Api struct {
	detector *detector.Detector
	db       *poledb.DB
	metrics  *metrics.Collector
	link     connectivity.Reporter
	mock     *machine.MockMachine
	router   *mux.Router
	log      Logger
}

func New(config *Config) *Api {
	api := &Api{
		db:      config.DB,
		metrics: config.Metrics,
		link:    config.Link,
		mock:    config.Mock,
		router:  mux.NewRouter(),
	}

	if config.Log != nil {
		api.log = config.Log
	} else {
		api.log = noopLogger{}
	}

	api.router.Handle("/api/v1/status", api.handleGetStatus()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/axles", api.handleGetAxles()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/bindings", api.handleGetBindings()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/events", api.handleGetEvents()).Methods(http.MethodGet)

	if api.mock != nil {
		api.router.Handle("/api/v1/mock/distances", api.handlePutMockDistances()).Methods(http.MethodPut)
		api.router.Handle("/api/v1/mock/fault", api.handlePutMockFault()).Methods(http.MethodPut)
	}

	api.router.Handle("/metrics", api.metrics.Handler()).Methods(http.MethodGet)

	return api
}

func (a *Api) SetDetector(detector *detector.Detector) {
	a.detector = detector
}

func (a *Api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *Api) Serve(l net.Listener) error {
	err := http.Serve(l, a.router)
	if err != nil {
		return errors.Errorf("Unable to serve api: %v", err)
	}

	return nil
}
