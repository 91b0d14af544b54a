// Command solenoidd serves the solenoid actuation service from an in-memory
// axle bank. It stands in for the vehicle's actuation node on the bench.
package main

import (
	"github.com/drobo-robotics/poled/actuation"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type config struct {
	Listen   string        `long:"listen" description:"Address to serve the actuation service on"`
	Delay    time.Duration `long:"delay" description:"Delay applied before every reply"`
	Silent   bool          `long:"silent" description:"Never reply, to exercise client timeouts"`
	CertFile string        `long:"cert" description:"TLS certificate, plaintext if empty"`
	KeyFile  string        `long:"key" description:"TLS key"`
	Debug    bool          `long:"debug" description:"Start in debug mode"`
}

func solenoiddMain() error {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	cfg := config{
		Listen: "localhost:50051",
	}

	if _, err := flags.Parse(&cfg); err != nil {
		return err
	}

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	var opts []grpc.ServerOption

	if cfg.CertFile != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return errors.Errorf("Could not load tls key pair: %v", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	sim := actuation.NewSimulator(&actuation.SimulatorConfig{
		Delay:  cfg.Delay,
		Logger: log.New().WithField("system", "simulator"),
	})
	sim.SetSilent(cfg.Silent)

	srv := sim.NewServer(opts...)

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Errorf("Unable to listen on %v: %v", cfg.Listen, err)
	}

	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		<-signals
		log.Info("Received an interrupt, stopping...")
		srv.Stop()
	}()

	log.Infof("Serving actuation service on %v", lis.Addr())

	if err := srv.Serve(lis); err != nil {
		return errors.Errorf("Could not serve: %v", err)
	}

	log.Infof("Final axle states %v", sim.States())

	return nil
}

func main() {
	if err := solenoiddMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.WithError(err).Println("Failed running solenoidd.")
		os.Exit(1)
	}
}
