package machine

import (
	"github.com/drobo-robotics/poled/vl53l1x"
	"github.com/go-errors/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// SensorConfig names the select line of one sensor and the address it is
// moved to. A zero Address keeps the factory default.
type SensorConfig struct {
	Pin     string
	Address uint16
}

type PeriphMachineConfig struct {
	// Bus is the I2C bus name as known to i2creg, empty for the first bus.
	Bus          string
	Front        SensorConfig
	Mid          SensorConfig
	Rear         SensorConfig
	Order        []Position
	SelectMode   SelectMode
	DistanceMode vl53l1x.DistanceMode
	Logger       Logger
}

// PeriphMachine is the sensor bank on real hardware: three VL53L1X devices
// on one I2C bus, each behind a GPIO select line.
type PeriphMachine struct {
	config   PeriphMachineConfig
	log      Logger
	bus      i2c.BusCloser
	lines    map[Position]gpio.PinIO
	sensors  map[Position]Sensor
	devs     map[Position]*vl53l1x.Dev
	bindings []Binding
}

// Compile time check for protocol compatibility
var _ Machine = (*PeriphMachine)(nil)

func NewPeriphMachine(config *PeriphMachineConfig) *PeriphMachine {
	m := &PeriphMachine{
		config:  *config,
		lines:   make(map[Position]gpio.PinIO),
		sensors: make(map[Position]Sensor),
		devs:    make(map[Position]*vl53l1x.Dev),
	}

	if config.Logger != nil {
		m.log = config.Logger
	} else {
		m.log = noopLogger{}
	}

	if len(m.config.Order) == 0 {
		m.config.Order = []Position{Rear, Mid, Front}
	}

	return m
}

func (m *PeriphMachine) sensorConfig(p Position) SensorConfig {
	switch p {
	case Front:
		return m.config.Front
	case Mid:
		return m.config.Mid
	default:
		return m.config.Rear
	}
}

func (m *PeriphMachine) Start() error {
	if err := ValidateOrder(m.config.Order); err != nil {
		return err
	}

	if _, err := host.Init(); err != nil {
		return errors.Errorf("Could not initialize periph host: %v", err)
	}

	bus, err := i2creg.Open(m.config.Bus)
	if err != nil {
		return errors.Errorf("Could not open I2C bus %q: %v", m.config.Bus, err)
	}

	m.bus = bus

	m.log.Infof("Opened I2C bus %v", bus)

	slots := make([]Slot, 0, len(m.config.Order))

	for _, p := range m.config.Order {
		sc := m.sensorConfig(p)

		pin := gpioreg.ByName(sc.Pin)
		if pin == nil {
			_ = m.bus.Close()
			return errors.Errorf("Could not find select pin %q for %v sensor", sc.Pin, p)
		}

		dev := vl53l1x.New(bus, nil)

		m.lines[p] = pin
		m.sensors[p] = dev
		m.devs[p] = dev

		slots = append(slots, Slot{
			Position: p,
			Line:     pin,
			Sensor:   dev,
			Address:  sc.Address,
		})
	}

	bindings, err := BringUp(&BringUpConfig{
		Slots:        slots,
		SelectMode:   m.config.SelectMode,
		DistanceMode: m.config.DistanceMode,
		Logger:       m.log,
	})
	if err != nil {
		_ = m.Stop()
		return errors.Errorf("Could not bring up sensors: %v", err)
	}

	m.bindings = bindings

	return nil
}

func (m *PeriphMachine) Stop() error {
	var firstErr error

	for p, dev := range m.devs {
		if err := dev.StopRanging(); err != nil {
			m.log.Warnf("Could not stop ranging on %v sensor: %v", p, err)
		}
	}

	for p, line := range m.lines {
		if err := line.Out(gpio.Low); err != nil && firstErr == nil {
			firstErr = errors.Errorf("Could not deassert %v sensor line: %v", p, err)
		}
	}

	if m.bus != nil {
		if err := m.bus.Close(); err != nil && firstErr == nil {
			firstErr = errors.Errorf("Could not close I2C bus: %v", err)
		}
		m.bus = nil
	}

	return firstErr
}

// ReadDistances reads front, mid and rear in that order. The first failure
// aborts the read, partial results are never returned.
func (m *PeriphMachine) ReadDistances() (Distances, error) {
	return readDistances(m.sensors)
}

func (m *PeriphMachine) Bindings() []Binding {
	return m.bindings
}

func readDistances(sensors map[Position]Sensor) (Distances, error) {
	var d Distances

	for _, p := range []Position{Front, Mid, Rear} {
		dev, ok := sensors[p]
		if !ok {
			return Distances{}, errors.Errorf("No %v sensor", p)
		}

		v, err := dev.ReadDistance()
		if err != nil {
			return Distances{}, errors.Errorf("Could not read %v sensor: %v", p, err)
		}

		switch p {
		case Front:
			d.Front = Distance(v)
		case Mid:
			d.Mid = Distance(v)
		case Rear:
			d.Rear = Distance(v)
		}
	}

	return d, nil
}
