package main

import (
	"context"
	"github.com/drobo-robotics/poled/actuation"
	"github.com/drobo-robotics/poled/api"
	"github.com/drobo-robotics/poled/connectivity"
	"github.com/drobo-robotics/poled/detector"
	"github.com/drobo-robotics/poled/machine"
	"github.com/drobo-robotics/poled/metrics"
	"github.com/drobo-robotics/poled/poledb"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
)

var (
	// commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	Commit string
	// version stores the version string of this build. This should be set using -ldflags during compilation.
	Version string
	// date stores the date of this build. This should be set using -ldflags during compilation.
	Date string
)

// poledMain is the true entry point for poled. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func poledMain() error {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	// Load CLI configuration and defaults
	cfg, err := loadConfig()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	} else if err != nil {
		return errors.Errorf("Failed parsing arguments: %v", err)
	}

	// Set logger into debug mode if called with --debug
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		log.Info("Setting debug mode.")
	}

	log.Debug("Loaded config.")

	// Print version of the daemon
	log.Infof("Version %s (commit %s)", Version, Commit)
	log.Infof("Built on %s", Date)

	// Stop here if only version was requested
	if cfg.ShowVersion {
		return nil
	}

	if cfg.Profiling.Listen != "" {
		go func() {
			log.Infof("Starting profiling server on %v", cfg.Profiling.Listen)
			// Redirect the root path
			http.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
			// All other handlers are registered on DefaultServeMux through the import of pprof
			err := http.ListenAndServe(cfg.Profiling.Listen, nil)
			if err != nil {
				log.Errorf("Could not run profiler: %v", err)
			}
		}()
	}

	// poled.db keeps sensor bindings and acknowledged axle states across runs
	poleDB, err := poledb.Open(cfg.DataDir)
	if err != nil {
		return errors.Errorf("Could not open poled.db: %v", err)
	}

	log.Infof("Opened poled.db")

	defer func() {
		err := poleDB.Close()
		if err != nil {
			log.Errorf("Could not close poled.db: %v", err)
		} else {
			log.Info("Closed poled.db.")
		}
	}()

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return errors.Errorf("Could not create metrics: %v", err)
	}

	// The sensor bank
	var m machine.Machine
	var mock *machine.MockMachine

	switch cfg.Machine {
	case "periph":
		machineConfig, err := cfg.periphMachineConfig(log.New().WithField("system", "machine"))
		if err != nil {
			return errors.Errorf("Invalid sensor configuration: %v", err)
		}

		m = machine.NewPeriphMachine(machineConfig)

		log.Infof("Created sensor bank on bus %v with select pins front %v, mid %v and rear %v.",
			cfg.Periph.Bus, cfg.Periph.FrontPin, cfg.Periph.MidPin, cfg.Periph.RearPin)
	case "mock":
		mock = machine.NewMockMachine(log.New().WithField("system", "machine"))
		m = mock

		log.Info("Created mock sensors.")
	default:
		return errors.Errorf("Unknown machine type %v", cfg.Machine)
	}

	// bring-up failures are fatal, the loop cannot run on a partial bank
	if err := m.Start(); err != nil {
		return errors.Errorf("Could not start machine: %v", err)
	}

	defer func() {
		err := m.Stop()
		if err != nil {
			log.Errorf("Could not properly stop machine: %v", err)
		} else {
			log.Infof("Stopped machine.")
		}
	}()

	for _, b := range m.Bindings() {
		log.Infof("Sensor %v on %v at %#02x", b.Sensor, b.SelectLine, b.Address)
	}

	// The actuation service client
	var client actuation.Client
	var link connectivity.Reporter

	switch cfg.Actuator {
	case "grpc":
		grpcClient, err := actuation.NewGrpcClient(&actuation.GrpcClientConfig{
			Target:   cfg.Grpc.Target,
			CertFile: cfg.Grpc.CertFile,
			Logger:   log.New().WithField("system", "actuation"),
		})
		if err != nil {
			return errors.Errorf("Could not create actuation client: %v", err)
		}

		if err := grpcClient.Start(); err != nil {
			return errors.Errorf("Could not start actuation client: %v", err)
		}

		defer func() {
			err := grpcClient.Stop()
			if err != nil {
				log.Errorf("Could not properly stop actuation client: %v", err)
			} else {
				log.Infof("Stopped actuation client.")
			}
		}()

		client = grpcClient
		link = connectivity.NewGrpcReporter(grpcClient.Conn())

		log.Infof("Created gRPC actuation client for %v.", cfg.Grpc.Target)
	case "mock":
		client = actuation.NewMockClient(log.New().WithField("system", "actuation"))
		link = connectivity.NewStaticReporter(connectivity.Online)

		log.Info("Created mock actuation client.")
	default:
		return errors.Errorf("Unknown actuator type %v", cfg.Actuator)
	}

	watchCtx, stopWatching := context.WithCancel(context.Background())
	defer stopWatching()

	linkLog := log.New().WithField("system", "connectivity")

	go connectivity.Watch(watchCtx, link, func(state connectivity.State) {
		linkLog.Infof("Actuation service is %v", state)
		collector.SetLinkOnline(state == connectivity.Online)
	})

	dispatcher := actuation.NewDispatcher(&actuation.DispatcherConfig{
		Client:        client,
		Timeout:       cfg.Dispatch.Timeout,
		Retries:       cfg.Dispatch.Retries,
		RetryInterval: cfg.Dispatch.RetryInterval,
		FatalOnError:  cfg.Dispatch.FatalOnError,
		Logger:        log.New().WithField("system", "dispatch"),
	})

	// central controller turning distances into axle commands
	d := detector.NewDetector(&detector.Config{
		Machine:      m,
		Dispatcher:   dispatcher,
		Threshold:    machine.Distance(cfg.Detector.Threshold),
		Interval:     cfg.Detector.Interval,
		SafeShutdown: cfg.SafeShutdown,
		DB:           poleDB,
		Metrics:      collector,
		Logger:       log.New().WithField("system", "detector"),
	})

	log.Infof("Created detector.")

	if cfg.Api.Listen != "" {
		a := api.New(&api.Config{
			DB:      poleDB,
			Metrics: collector,
			Link:    link,
			Mock:    mock,
			Log:     log.New().WithField("system", "api"),
		})
		a.SetDetector(d)

		lis, err := net.Listen("tcp", cfg.Api.Listen)
		if err != nil {
			return errors.Errorf("API server unable to listen on %v: %v", cfg.Api.Listen, err)
		}

		defer func() {
			err := lis.Close()
			if err != nil {
				log.Errorf("Could not close API listener: %v", err)
			}
		}()

		go func() {
			log.Infof("Serving API on %v", lis.Addr())

			err := a.Serve(lis)
			if err != nil {
				log.Debugf("API server stopped: %v", err)
			}
		}()
	}

	// Handle interrupt signals correctly
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		log.Info(sig)
		log.Info("Received an interrupt, stopping detector...")
		d.Shutdown()
	}()

	// blocks until the detector is shut down
	err = d.Run()
	if err != nil {
		return errors.Errorf("Failed running detector: %v", err)
	}

	// finish with no error
	return nil
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := poledMain(); err != nil {
		log.WithError(err).Println("Failed running poled.")
		os.Exit(1)
	}
}
