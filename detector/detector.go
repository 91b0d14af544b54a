package detector

import (
	"context"
	"github.com/drobo-robotics/poled/actuation"
	"github.com/drobo-robotics/poled/machine"
	"github.com/drobo-robotics/poled/metrics"
	"github.com/drobo-robotics/poled/poledb"
	"github.com/go-errors/errors"
	"sync"
	"time"
)

const (
	// DefaultInterval is the pause between the end of one cycle and the
	// start of the next.
	DefaultInterval = 10 * time.Millisecond

	eventBuffer = 64
)

type Config struct {
	Machine    machine.Machine
	Dispatcher *actuation.Dispatcher
	Threshold  machine.Distance
	Interval   time.Duration
	// SafeShutdown retracts every axle once the loop has stopped.
	SafeShutdown bool
	DB           *poledb.DB
	Metrics      *metrics.Collector
	Logger       Logger
}

// AxleStatus is the last state the actuation service acknowledged for an
// axle. Known is false until the first acknowledgement.
type AxleStatus struct {
	Axle    actuation.AxlePosition `json:"axle"`
	State   string                 `json:"state"`
	Known   bool                   `json:"known"`
	Updated time.Time              `json:"updated"`
}

// Status is a snapshot of the loop.
type Status struct {
	Running   bool               `json:"running"`
	Threshold machine.Distance   `json:"threshold"`
	Cycles    uint64             `json:"cycles"`
	LastCycle time.Time          `json:"last_cycle"`
	Distances machine.Distances  `json:"distances"`
	Triggered []machine.Position `json:"triggered"`
	Axles     []AxleStatus       `json:"axles"`
	Acked     uint64             `json:"acked"`
	TimedOut  uint64             `json:"timed_out"`
	Rejected  uint64             `json:"rejected"`
}

// Event is published for every finished dispatch.
type Event struct {
	Time     time.Time             `json:"time"`
	Command  actuation.AxleCommand `json:"command"`
	Outcome  actuation.Outcome     `json:"outcome"`
	Attempts int                   `json:"attempts"`
	Elapsed  time.Duration         `json:"elapsed"`
	Error    string                `json:"error,omitempty"`
}

type EventClient struct {
	Events   chan *Event
	Id       uint32
	detector *Detector
}

// Detector runs the sense, evaluate, dispatch cycle.
type Detector struct {
	machine      machine.Machine
	dispatcher   *actuation.Dispatcher
	threshold    machine.Distance
	interval     time.Duration
	safeShutdown bool
	db           *poledb.DB
	metrics      *metrics.Collector
	log          Logger

	done         chan struct{}
	shutdownOnce sync.Once

	statusMtx sync.Mutex
	status    Status

	eventClients      map[uint32]*EventClient
	eventClientMtx    sync.Mutex
	nextEventClientID uint32
}

func NewDetector(config *Config) *Detector {
	d := &Detector{
		machine:      config.Machine,
		dispatcher:   config.Dispatcher,
		threshold:    config.Threshold,
		interval:     config.Interval,
		safeShutdown: config.SafeShutdown,
		db:           config.DB,
		metrics:      config.Metrics,
		log:          config.Logger,
		done:         make(chan struct{}),
		eventClients: make(map[uint32]*EventClient),
	}

	if d.threshold == 0 {
		d.threshold = DefaultThreshold
	}

	if d.interval <= 0 {
		d.interval = DefaultInterval
	}

	if d.log == nil {
		d.log = noopLogger{}
	}

	d.status.Threshold = d.threshold
	d.status.Axles = make([]AxleStatus, actuation.NumAxles)
	for i := range d.status.Axles {
		d.status.Axles[i].Axle = actuation.AxlePosition(i)
	}

	return d
}

// Run loops until Shutdown is called or a sensor read fails. The machine
// must already be started.
func (d *Detector) Run() error {
	d.log.Infof("Starting detection with threshold %v mm every %v", d.threshold, d.interval)

	d.restore()

	d.setRunning(true)
	err := d.loop()
	d.setRunning(false)

	if d.safeShutdown {
		d.retractAll()
	}

	if err != nil {
		return err
	}

	d.log.Infof("Detection stopped")

	return nil
}

func (d *Detector) loop() error {
	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for {
		select {
		case <-d.done:
			return nil
		default:
		}

		if err := d.cycle(); err != nil {
			return err
		}

		timer.Reset(d.interval)

		select {
		case <-timer.C:
		case <-d.done:
			return nil
		}
	}
}

// cycle reads all sensors once and dispatches what they call for, one
// command at a time. An in-flight command is never interrupted by
// Shutdown; it finishes or times out first.
func (d *Detector) cycle() error {
	distances, err := d.machine.ReadDistances()
	if err != nil {
		return errors.Errorf("Could not read distances: %v", err)
	}

	triggered := Triggered(distances, d.threshold)

	d.metrics.ObserveCycle()
	d.metrics.ObserveDistance(machine.Front.String(), float64(distances.Front))
	d.metrics.ObserveDistance(machine.Mid.String(), float64(distances.Mid))
	d.metrics.ObserveDistance(machine.Rear.String(), float64(distances.Rear))
	for _, p := range triggered {
		d.metrics.ObserveTrigger(p.String())
	}

	d.statusMtx.Lock()
	d.status.Cycles++
	d.status.LastCycle = time.Now()
	d.status.Distances = distances
	d.status.Triggered = triggered
	d.statusMtx.Unlock()

	for _, cmd := range Evaluate(distances, d.threshold) {
		res, err := d.dispatcher.Dispatch(context.Background(), cmd)
		if res != nil {
			d.record(res)
		}
		if err != nil {
			return err
		}
	}

	return nil
}

func (d *Detector) record(res *actuation.Result) {
	now := time.Now()

	d.metrics.ObserveDispatch(uint8(res.Command.Axle), res.Command.State.String(), res.Outcome.String(), res.Elapsed)

	changed := false

	d.statusMtx.Lock()
	switch res.Outcome {
	case actuation.Acked:
		d.status.Acked++

		axle := &d.status.Axles[res.Command.Axle]
		state := res.Command.State.String()
		changed = !axle.Known || axle.State != state
		axle.State = state
		axle.Known = true
		axle.Updated = now
	case actuation.TimedOut:
		d.status.TimedOut++
	case actuation.Rejected:
		d.status.Rejected++
	}
	d.statusMtx.Unlock()

	if changed {
		d.log.Infof("Axle %d is now %v", res.Command.Axle, res.Command.State)
		d.persist(res.Command, now)
	}

	event := &Event{
		Time:     now,
		Command:  res.Command,
		Outcome:  res.Outcome,
		Attempts: res.Attempts,
		Elapsed:  res.Elapsed,
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
	}

	d.publish(event)
}

func (d *Detector) persist(cmd actuation.AxleCommand, updated time.Time) {
	if d.db == nil {
		return
	}

	err := d.db.SetAxleRecord(&poledb.AxleRecord{
		Axle:    uint8(cmd.Axle),
		State:   uint8(cmd.State),
		Updated: updated,
	})
	if err != nil {
		d.log.Warnf("Could not persist axle state: %v", err)
	}
}

// restore stores the sensor bindings of this run and loads the axle states
// acknowledged during earlier ones.
func (d *Detector) restore() {
	if d.db == nil {
		return
	}

	bindings := d.machine.Bindings()
	stored := make([]poledb.SensorBinding, 0, len(bindings))
	for _, b := range bindings {
		stored = append(stored, poledb.SensorBinding{
			Sensor:     b.Sensor.String(),
			SelectLine: b.SelectLine,
			Address:    b.Address,
		})
	}

	if err := d.db.SetBindings(stored, time.Now()); err != nil {
		d.log.Warnf("Could not save sensor bindings: %v", err)
	}

	records, err := d.db.GetAxleRecords()
	if err != nil {
		d.log.Warnf("Could not load axle states: %v", err)
		return
	}

	d.statusMtx.Lock()
	defer d.statusMtx.Unlock()

	for _, r := range records {
		if int(r.Axle) >= len(d.status.Axles) {
			continue
		}

		d.status.Axles[r.Axle] = AxleStatus{
			Axle:    actuation.AxlePosition(r.Axle),
			State:   actuation.AxleState(r.State).String(),
			Known:   true,
			Updated: r.Updated,
		}
	}
}

// retractAll puts every axle into the retracted state. Failures are logged
// and the remaining axles are still tried.
func (d *Detector) retractAll() {
	d.log.Infof("Retracting all axles")

	for axle := 0; axle < actuation.NumAxles; axle++ {
		cmd := actuation.AxleCommand{
			Axle:  actuation.AxlePosition(axle),
			State: actuation.Retracted,
		}

		res, err := d.dispatcher.Dispatch(context.Background(), cmd)
		if res != nil {
			d.record(res)
		}
		if err != nil {
			d.log.Errorf("Could not retract axle %d: %v", axle, err)
			continue
		}
		if res.Outcome != actuation.Acked {
			d.log.Warnf("Retracting axle %d ended %v", axle, res.Outcome)
		}
	}
}

func (d *Detector) setRunning(running bool) {
	d.statusMtx.Lock()
	d.status.Running = running
	d.statusMtx.Unlock()
}

// Status returns a copy of the current loop state.
func (d *Detector) Status() Status {
	d.statusMtx.Lock()
	defer d.statusMtx.Unlock()

	s := d.status
	s.Axles = append([]AxleStatus(nil), d.status.Axles...)
	s.Triggered = append([]machine.Position(nil), d.status.Triggered...)

	return s
}

// Bindings returns the sensor bindings established at bring-up.
func (d *Detector) Bindings() []machine.Binding {
	return d.machine.Bindings()
}

// Shutdown stops the loop after the current cycle. It is safe to call more
// than once.
func (d *Detector) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.log.Infof("Shutting down detection")
		close(d.done)
	})
}

func (d *Detector) publish(event *Event) {
	d.eventClientMtx.Lock()
	defer d.eventClientMtx.Unlock()

	for _, client := range d.eventClients {
		select {
		case client.Events <- event:
		default:
			d.log.Debugf("Event client %d is lagging, dropping event", client.Id)
		}
	}
}

// SubscribeEvents returns a client receiving every dispatch outcome. Slow
// clients miss events rather than stalling the loop.
func (d *Detector) SubscribeEvents() *EventClient {
	client := &EventClient{
		Events:   make(chan *Event, eventBuffer),
		detector: d,
	}

	d.eventClientMtx.Lock()
	client.Id = d.nextEventClientID
	d.nextEventClientID++
	d.eventClients[client.Id] = client
	d.eventClientMtx.Unlock()

	return client
}

func (c *EventClient) Cancel() {
	c.detector.eventClientMtx.Lock()
	defer c.detector.eventClientMtx.Unlock()

	if _, ok := c.detector.eventClients[c.Id]; !ok {
		return
	}

	delete(c.detector.eventClients, c.Id)
	close(c.Events)
}
