package main

import (
	"github.com/drobo-robotics/poled/actuation"
	"github.com/drobo-robotics/poled/detector"
	"github.com/drobo-robotics/poled/machine"
	"github.com/drobo-robotics/poled/vl53l1x"
	"github.com/go-errors/errors"
	"github.com/jessevdk/go-flags"
	"os"
	"strings"
	"time"
)

const (
	defaultDataDir       = "/var/lib/poled"
	defaultApiListen     = "localhost:9000"
	defaultGrpcTarget    = "localhost:50051"
	defaultI2CBus        = "1"
	defaultFrontPin      = "GPIO105"
	defaultMidPin        = "GPIO106"
	defaultRearPin       = "GPIO43"
	defaultRearAddress   = 0x31
	defaultMidAddress    = 0x30
	defaultOrder         = "rear,mid,front"
	defaultSelectMode    = "exclusive"
	defaultDistanceMode  = "mid"
	defaultRetryInterval = 50 * time.Millisecond
)

type periphConfig struct {
	Bus          string `long:"bus" description:"I2C bus the sensors share"`
	FrontPin     string `long:"front-pin" description:"Select line of the front sensor"`
	MidPin       string `long:"mid-pin" description:"Select line of the mid sensor"`
	RearPin      string `long:"rear-pin" description:"Select line of the rear sensor"`
	FrontAddress uint16 `long:"front-address" base:"0" description:"Bus address for the front sensor, 0 keeps the factory default"`
	MidAddress   uint16 `long:"mid-address" base:"0" description:"Bus address for the mid sensor, 0 keeps the factory default"`
	RearAddress  uint16 `long:"rear-address" base:"0" description:"Bus address for the rear sensor, 0 keeps the factory default"`
	Order        string `long:"order" description:"Comma separated bring-up order of the sensors"`
	SelectMode   string `long:"select-mode" description:"How select lines behave during bring-up; use cumulative when the lines drive the sensors' XSHUT pins" choice:"exclusive" choice:"cumulative"`
	DistanceMode string `long:"distance-mode" description:"Ranging distance mode" choice:"short" choice:"mid" choice:"long"`
}

type grpcConfig struct {
	Target   string `long:"target" description:"Address of the solenoid actuation service"`
	CertFile string `long:"cert" description:"PEM certificate to reach the actuation service over TLS, plaintext if empty"`
}

type detectorConfig struct {
	Threshold uint16        `long:"threshold" description:"Distance in millimetres below which a sensor triggers"`
	Interval  time.Duration `long:"interval" description:"Pause between polling cycles"`
}

type dispatchConfig struct {
	Timeout       time.Duration `long:"timeout" description:"How long to wait for the actuation service to reply"`
	Retries       int           `long:"retries" description:"How often a command without reply is sent again"`
	RetryInterval time.Duration `long:"retry-interval" description:"First pause between redeliveries"`
	FatalOnError  bool          `long:"fatal-on-error" description:"Stop when the actuation service rejects a command"`
}

type apiConfig struct {
	Listen string `long:"listen" description:"Address the status API listens on, empty to disable"`
}

type profilingConfig struct {
	Listen string `long:"listen" description:"Address the profiling server listens on"`
}

type config struct {
	ShowVersion  bool             `short:"v" long:"version" description:"Display version information and exit"`
	Debug        bool             `long:"debug" description:"Start in debug mode"`
	DataDir      string           `long:"datadir" description:"The directory to store poled's data within"`
	Machine      string           `long:"machine" description:"The sensor bank to use" choice:"periph" choice:"mock"`
	Actuator     string           `long:"actuator" description:"The actuation service client to use" choice:"grpc" choice:"mock"`
	SafeShutdown bool             `long:"safe-shutdown" description:"Retract every axle before exiting"`
	Periph       *periphConfig    `group:"Periph" namespace:"periph"`
	Grpc         *grpcConfig      `group:"gRPC" namespace:"grpc"`
	Detector     *detectorConfig  `group:"Detector" namespace:"detector"`
	Dispatch     *dispatchConfig  `group:"Dispatch" namespace:"dispatch"`
	Api          *apiConfig       `group:"API" namespace:"api"`
	Profiling    *profilingConfig `group:"Profiling" namespace:"profiling"`
}

// loadConfig parses the command line on top of the defaults.
func loadConfig() (*config, error) {
	return parseConfig(os.Args[1:])
}

func parseConfig(args []string) (*config, error) {
	cfg := config{
		DataDir:  defaultDataDir,
		Machine:  "periph",
		Actuator: "grpc",
		Periph: &periphConfig{
			Bus:          defaultI2CBus,
			FrontPin:     defaultFrontPin,
			MidPin:       defaultMidPin,
			RearPin:      defaultRearPin,
			MidAddress:   defaultMidAddress,
			RearAddress:  defaultRearAddress,
			Order:        defaultOrder,
			SelectMode:   defaultSelectMode,
			DistanceMode: defaultDistanceMode,
		},
		Grpc: &grpcConfig{
			Target: defaultGrpcTarget,
		},
		Detector: &detectorConfig{
			Threshold: uint16(detector.DefaultThreshold),
			Interval:  detector.DefaultInterval,
		},
		Dispatch: &dispatchConfig{
			Timeout:       actuation.DefaultTimeout,
			RetryInterval: defaultRetryInterval,
		},
		Api: &apiConfig{
			Listen: defaultApiListen,
		},
		Profiling: &profilingConfig{},
	}

	if _, err := flags.NewParser(&cfg, flags.Default).ParseArgs(args); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *config) validate() error {
	if c.Detector.Threshold == 0 {
		return errors.New("detector threshold must be positive")
	}

	if c.Detector.Interval <= 0 {
		return errors.New("detector interval must be positive")
	}

	if c.Dispatch.Timeout <= 0 {
		return errors.New("dispatch timeout must be positive")
	}

	if c.Dispatch.Retries < 0 {
		return errors.New("dispatch retries cannot be negative")
	}

	if _, err := c.order(); err != nil {
		return err
	}

	if _, err := machine.ParseSelectMode(c.Periph.SelectMode); err != nil {
		return err
	}

	if _, err := vl53l1x.ParseDistanceMode(c.Periph.DistanceMode); err != nil {
		return err
	}

	return nil
}

// order parses the configured bring-up order.
func (c *config) order() ([]machine.Position, error) {
	var order []machine.Position

	for _, name := range strings.Split(c.Periph.Order, ",") {
		p, err := machine.ParsePosition(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		order = append(order, p)
	}

	if err := machine.ValidateOrder(order); err != nil {
		return nil, err
	}

	return order, nil
}

func (c *config) periphMachineConfig(logger machine.Logger) (*machine.PeriphMachineConfig, error) {
	order, err := c.order()
	if err != nil {
		return nil, err
	}

	selectMode, err := machine.ParseSelectMode(c.Periph.SelectMode)
	if err != nil {
		return nil, err
	}

	distanceMode, err := vl53l1x.ParseDistanceMode(c.Periph.DistanceMode)
	if err != nil {
		return nil, err
	}

	return &machine.PeriphMachineConfig{
		Bus:          c.Periph.Bus,
		Front:        machine.SensorConfig{Pin: c.Periph.FrontPin, Address: c.Periph.FrontAddress},
		Mid:          machine.SensorConfig{Pin: c.Periph.MidPin, Address: c.Periph.MidAddress},
		Rear:         machine.SensorConfig{Pin: c.Periph.RearPin, Address: c.Periph.RearAddress},
		Order:        order,
		SelectMode:   selectMode,
		DistanceMode: distanceMode,
		Logger:       logger,
	}, nil
}
