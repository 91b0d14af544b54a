package detector

import (
	"context"
	"fmt"
	"github.com/drobo-robotics/poled/actuation"
	"github.com/drobo-robotics/poled/machine"
	"github.com/drobo-robotics/poled/metrics"
	"github.com/drobo-robotics/poled/poledb"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

var errExhausted = fmt.Errorf("script exhausted")

// scriptedMachine returns one scripted sample per read. Once the script runs
// out it either fails the read or calls onExhausted and reports all sensors
// clear.
type scriptedMachine struct {
	mu          sync.Mutex
	script      []machine.Distances
	reads       int
	onExhausted func()
}

func (m *scriptedMachine) Start() error { return nil }
func (m *scriptedMachine) Stop() error  { return nil }

func (m *scriptedMachine) ReadDistances() (machine.Distances, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++

	if len(m.script) == 0 {
		if m.onExhausted != nil {
			m.onExhausted()
			return machine.Distances{Front: 4000, Mid: 4000, Rear: 4000}, nil
		}
		return machine.Distances{}, errExhausted
	}

	d := m.script[0]
	m.script = m.script[1:]

	return d, nil
}

func (m *scriptedMachine) Bindings() []machine.Binding {
	return []machine.Binding{
		{Sensor: machine.Rear, SelectLine: "GPIO43", Address: 0x31},
		{Sensor: machine.Mid, SelectLine: "GPIO106", Address: 0x30},
		{Sensor: machine.Front, SelectLine: "GPIO105", Address: 0x29},
	}
}

func newTestDetector(m machine.Machine, client actuation.Client, config *Config) *Detector {
	if config == nil {
		config = &Config{}
	}

	config.Machine = m
	config.Interval = time.Millisecond

	if config.Dispatcher == nil {
		config.Dispatcher = actuation.NewDispatcher(&actuation.DispatcherConfig{
			Client:  client,
			Timeout: 20 * time.Millisecond,
		})
	}

	return NewDetector(config)
}

func TestRunScenarios(t *testing.T) {
	tests := []struct {
		name string
		d    machine.Distances
		want []actuation.AxleCommand
	}{
		{"front", machine.Distances{Front: 900, Mid: 1500, Rear: 1500}, []actuation.AxleCommand{deployFront}},
		{"mid", machine.Distances{Front: 1500, Mid: 800, Rear: 1500}, []actuation.AxleCommand{retractFront, deployMid}},
		{"all", machine.Distances{Front: 900, Mid: 800, Rear: 700}, []actuation.AxleCommand{deployFront, retractFront, deployMid, retractMid, deployRear}},
		{"none", machine.Distances{Front: 1500, Mid: 1500, Rear: 1500}, nil},
	}

	for _, tt := range tests {
		client := actuation.NewMockClient(nil)
		m := &scriptedMachine{script: []machine.Distances{tt.d}}

		err := newTestDetector(m, client, nil).Run()
		if err == nil {
			t.Fatalf("%v: Run returned nil after a failed read", tt.name)
		}

		if got := client.Sent(); !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%v: sent %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRunIsLevelTriggered(t *testing.T) {
	client := actuation.NewMockClient(nil)
	held := machine.Distances{Front: 900, Mid: 1500, Rear: 1500}
	m := &scriptedMachine{script: []machine.Distances{held, held, held}}

	_ = newTestDetector(m, client, nil).Run()

	want := []actuation.AxleCommand{deployFront, deployFront, deployFront}
	if got := client.Sent(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
}

func TestRunStopsOnReadFailure(t *testing.T) {
	m := &scriptedMachine{}

	err := newTestDetector(m, actuation.NewMockClient(nil), nil).Run()
	if err == nil {
		t.Fatalf("Run succeeded with failing sensors")
	}
	if m.reads != 1 {
		t.Fatalf("read %d times after failure, want 1", m.reads)
	}
}

func TestRunContinuesAfterTimeout(t *testing.T) {
	client := actuation.NewMockClient(nil)
	client.Reply = func(ctx context.Context, cmd actuation.AxleCommand) (*actuation.Ack, error) {
		if cmd == deployFront {
			return actuation.NeverReply(ctx, cmd)
		}
		return &actuation.Ack{Accepted: true}, nil
	}

	m := &scriptedMachine{script: []machine.Distances{{Front: 900, Mid: 800, Rear: 700}}}
	d := newTestDetector(m, client, nil)

	_ = d.Run()

	if got := len(client.Sent()); got != 5 {
		t.Fatalf("sent %d commands, want 5", got)
	}

	s := d.Status()
	if s.TimedOut != 1 || s.Acked != 4 || s.Rejected != 0 {
		t.Fatalf("status counters = %d/%d/%d, want 4 acked 1 timed out", s.Acked, s.TimedOut, s.Rejected)
	}

	// the retract of axle 0 was acked after the deploy was dropped
	if ax := s.Axles[actuation.FrontAxle]; !ax.Known || ax.State != "retracted" {
		t.Fatalf("axle 0 = %+v, want retracted", ax)
	}
}

func TestRunSkipsRejectedCommands(t *testing.T) {
	client := actuation.NewMockClient(nil)
	client.Reply = func(ctx context.Context, cmd actuation.AxleCommand) (*actuation.Ack, error) {
		if cmd.Axle == actuation.MidAxle {
			return nil, &actuation.RemoteError{Command: cmd, Code: "Unavailable", Message: "coil open"}
		}
		return &actuation.Ack{Accepted: true}, nil
	}

	m := &scriptedMachine{script: []machine.Distances{{Front: 900, Mid: 800, Rear: 700}}}
	d := newTestDetector(m, client, nil)

	// only the read failure that ends the script may stop the loop
	if err := d.Run(); err == nil || !strings.Contains(err.Error(), errExhausted.Error()) {
		t.Fatalf("Run = %v, want the read failure", err)
	}

	if got := len(client.Sent()); got != 5 {
		t.Fatalf("sent %d commands, want 5", got)
	}
	if s := d.Status(); s.Rejected != 2 || s.Axles[actuation.MidAxle].Known {
		t.Fatalf("status = %+v, want two rejections and unknown axle 1", s)
	}
}

func TestRunFatalOnError(t *testing.T) {
	client := actuation.NewMockClient(nil)
	client.Reply = func(ctx context.Context, cmd actuation.AxleCommand) (*actuation.Ack, error) {
		return &actuation.Ack{Accepted: false}, nil
	}

	dispatcher := actuation.NewDispatcher(&actuation.DispatcherConfig{
		Client:       client,
		FatalOnError: true,
	})

	held := machine.Distances{Front: 900, Mid: 800, Rear: 700}
	m := &scriptedMachine{script: []machine.Distances{held, held}}

	err := newTestDetector(m, client, &Config{Dispatcher: dispatcher}).Run()
	if err == nil {
		t.Fatalf("Run succeeded with a fatal rejection")
	}
	if got := len(client.Sent()); got != 1 {
		t.Fatalf("sent %d commands after a fatal rejection, want 1", got)
	}
	if m.reads != 1 {
		t.Fatalf("read %d times, want 1", m.reads)
	}
}

func TestShutdownStopsLoop(t *testing.T) {
	client := actuation.NewMockClient(nil)

	var d *Detector
	m := &scriptedMachine{onExhausted: func() { d.Shutdown() }}
	d = newTestDetector(m, client, nil)

	done := make(chan error, 1)
	go func() {
		done <- d.Run()
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after Shutdown")
	}

	if got := client.Sent(); len(got) != 0 {
		t.Fatalf("sent %v without safe shutdown", got)
	}

	// a second call must not panic
	d.Shutdown()
}

func TestSafeShutdownRetractsAllAxles(t *testing.T) {
	client := actuation.NewMockClient(nil)

	var d *Detector
	m := &scriptedMachine{
		script:      []machine.Distances{{Front: 900, Mid: 1500, Rear: 1500}},
		onExhausted: func() { d.Shutdown() },
	}
	d = newTestDetector(m, client, &Config{SafeShutdown: true})

	if err := d.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []actuation.AxleCommand{
		deployFront,
		{Axle: actuation.FrontAxle, State: actuation.Retracted},
		{Axle: actuation.MidAxle, State: actuation.Retracted},
		{Axle: actuation.RearAxle, State: actuation.Retracted},
	}
	if got := client.Sent(); !reflect.DeepEqual(got, want) {
		t.Fatalf("sent %v, want %v", got, want)
	}

	for _, ax := range d.Status().Axles {
		if ax.State != "retracted" {
			t.Fatalf("axle %d = %v after safe shutdown", ax.Axle, ax.State)
		}
	}
}

func TestSafeShutdownAfterReadFailure(t *testing.T) {
	client := actuation.NewMockClient(nil)
	m := &scriptedMachine{}

	if err := newTestDetector(m, client, &Config{SafeShutdown: true}).Run(); err == nil {
		t.Fatalf("Run succeeded with failing sensors")
	}

	if got := len(client.Sent()); got != actuation.NumAxles {
		t.Fatalf("sent %d retract commands, want %d", got, actuation.NumAxles)
	}
}

func TestEventsArePublished(t *testing.T) {
	client := actuation.NewMockClient(nil)
	m := &scriptedMachine{script: []machine.Distances{{Front: 1500, Mid: 800, Rear: 1500}}}
	d := newTestDetector(m, client, nil)

	events := d.SubscribeEvents()
	defer events.Cancel()

	_ = d.Run()

	var got []actuation.AxleCommand
	for len(got) < 2 {
		select {
		case e := <-events.Events:
			if e.Outcome != actuation.Acked {
				t.Fatalf("event outcome = %v", e.Outcome)
			}
			got = append(got, e.Command)
		case <-time.After(time.Second):
			t.Fatalf("only %d events received", len(got))
		}
	}

	if want := []actuation.AxleCommand{retractFront, deployMid}; !reflect.DeepEqual(got, want) {
		t.Fatalf("events %v, want %v", got, want)
	}
}

func TestEventClientCancel(t *testing.T) {
	d := newTestDetector(&scriptedMachine{}, actuation.NewMockClient(nil), nil)

	client := d.SubscribeEvents()
	client.Cancel()
	client.Cancel()

	if _, ok := <-client.Events; ok {
		t.Fatalf("events channel still open after Cancel")
	}

	// publishing without subscribers is a no-op
	d.publish(&Event{})
}

func TestStatusTracksCycles(t *testing.T) {
	held := machine.Distances{Front: 900, Mid: 1500, Rear: 1500}
	m := &scriptedMachine{script: []machine.Distances{held, held}}
	d := newTestDetector(m, actuation.NewMockClient(nil), nil)

	_ = d.Run()

	s := d.Status()
	if s.Cycles != 2 || s.Running {
		t.Fatalf("status = %+v, want 2 cycles and stopped", s)
	}
	if s.Distances != held {
		t.Fatalf("distances = %+v", s.Distances)
	}
	if !reflect.DeepEqual(s.Triggered, []machine.Position{machine.Front}) {
		t.Fatalf("triggered = %v", s.Triggered)
	}
	if s.Threshold != DefaultThreshold {
		t.Fatalf("threshold = %v", s.Threshold)
	}
}

func TestAxleStatesArePersisted(t *testing.T) {
	db, err := poledb.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	m := &scriptedMachine{script: []machine.Distances{{Front: 1500, Mid: 1500, Rear: 700}}}
	_ = newTestDetector(m, actuation.NewMockClient(nil), &Config{DB: db}).Run()

	rear, err := db.GetAxleRecord(uint8(actuation.RearAxle))
	if err != nil || rear == nil {
		t.Fatalf("GetAxleRecord: %v %v", rear, err)
	}
	if actuation.AxleState(rear.State) != actuation.Deployed {
		t.Fatalf("rear axle stored as %v", actuation.AxleState(rear.State))
	}

	bindings, err := db.GetBindings()
	if err != nil {
		t.Fatalf("GetBindings: %v", err)
	}
	if len(bindings) != 3 || bindings[0].Sensor != "rear" || bindings[0].Address != 0x31 {
		t.Fatalf("bindings = %+v", bindings)
	}

	// a new run starts from the stored states
	d := newTestDetector(&scriptedMachine{}, actuation.NewMockClient(nil), &Config{DB: db})
	_ = d.Run()

	if ax := d.Status().Axles[actuation.RearAxle]; !ax.Known || ax.State != "deployed" {
		t.Fatalf("restored rear axle = %+v", ax)
	}
	if ax := d.Status().Axles[actuation.FrontAxle]; ax.Known {
		t.Fatalf("front axle known without record: %+v", ax)
	}
}

func TestMetricsAreUpdated(t *testing.T) {
	col, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	held := machine.Distances{Front: 900, Mid: 1500, Rear: 1500}
	m := &scriptedMachine{script: []machine.Distances{held, held}}
	_ = newTestDetector(m, actuation.NewMockClient(nil), &Config{Metrics: col}).Run()

	if got := testutil.ToFloat64(col.Cycles); got != 2 {
		t.Fatalf("cycles = %v, want 2", got)
	}
	if got := testutil.ToFloat64(col.Triggers.WithLabelValues("front")); got != 2 {
		t.Fatalf("front triggers = %v, want 2", got)
	}
	if got := testutil.ToFloat64(col.Distance.WithLabelValues("mid")); got != 1500 {
		t.Fatalf("mid distance = %v, want 1500", got)
	}
	if got := testutil.ToFloat64(col.Dispatches.WithLabelValues("0", "deployed", "acked")); got != 2 {
		t.Fatalf("acked deploys of axle 0 = %v, want 2", got)
	}
}
