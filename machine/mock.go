package machine

import (
	"github.com/go-errors/errors"
	"sync"
)

// farAway is reported by the mock until distances are set.
const farAway Distance = 4000

// MockMachine reports distances set through SetDistances. It is used to run
// the daemon without sensors attached.
type MockMachine struct {
	mu        sync.Mutex
	log       Logger
	distances Distances
	readErr   error
	started   bool
}

var _ Machine = (*MockMachine)(nil)

func NewMockMachine(logger Logger) *MockMachine {
	m := &MockMachine{
		distances: Distances{Front: farAway, Mid: farAway, Rear: farAway},
	}

	if logger != nil {
		m.log = logger
	} else {
		m.log = noopLogger{}
	}

	return m
}

func (m *MockMachine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = true
	m.log.Infof("Started mock sensors")

	return nil
}

func (m *MockMachine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = false
	m.log.Infof("Stopped mock sensors")

	return nil
}

func (m *MockMachine) ReadDistances() (Distances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return Distances{}, errors.New("mock sensors not started")
	}

	if m.readErr != nil {
		return Distances{}, m.readErr
	}

	return m.distances, nil
}

// SetDistances replaces the values returned by the next reads.
func (m *MockMachine) SetDistances(d Distances) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.log.Debugf("Mock distances set to %+v", d)
	m.distances = d
}

// FailReads makes every following read return err, nil clears it.
func (m *MockMachine) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readErr = err
}

func (m *MockMachine) Bindings() []Binding {
	return []Binding{
		{Sensor: Rear, SelectLine: "mock", Address: 0x31},
		{Sensor: Mid, SelectLine: "mock", Address: 0x30},
		{Sensor: Front, SelectLine: "mock", Address: 0x29},
	}
}
