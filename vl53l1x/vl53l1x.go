// Package vl53l1x drives ST VL53L1X time-of-flight ranging sensors over a
// periph.io I2C bus.
package vl53l1x

import (
	"encoding/binary"
	"fmt"
	"github.com/go-errors/errors"
	"periph.io/x/conn/v3/i2c"
	"strings"
	"time"
)

type DistanceMode int

const (
	Short DistanceMode = iota
	Mid
	Long
)

func (m DistanceMode) String() string {
	switch m {
	case Short:
		return "short"
	case Mid:
		return "mid"
	case Long:
		return "long"
	default:
		return "invalid"
	}
}

// ParseDistanceMode accepts the names printed by DistanceMode.String.
func ParseDistanceMode(s string) (DistanceMode, error) {
	switch strings.ToLower(s) {
	case "short":
		return Short, nil
	case "mid", "medium":
		return Mid, nil
	case "long":
		return Long, nil
	default:
		return 0, errors.Errorf("unknown distance mode %q", s)
	}
}

// Sample is one ranging result.
type Sample struct {
	Distance uint16
	Status   byte
}

type Config struct {
	// BootTimeout bounds the wait for the firmware to report booted.
	BootTimeout time.Duration
	// ReadTimeout bounds the wait for a new sample.
	ReadTimeout time.Duration
	// PollInterval is the pause between status polls.
	PollInterval time.Duration
}

var defaultConfig = Config{
	BootTimeout:  time.Second,
	ReadTimeout:  500 * time.Millisecond,
	PollInterval: time.Millisecond,
}

// Dev is a single sensor. It is not safe for concurrent use.
type Dev struct {
	dev          i2c.Dev
	cfg          Config
	polarity     byte
	polarityRead bool
}

// New returns a device handle at the factory default address. Nothing is
// sent on the bus until the first operation.
func New(bus i2c.Bus, config *Config) *Dev {
	cfg := defaultConfig
	if config != nil {
		if config.BootTimeout > 0 {
			cfg.BootTimeout = config.BootTimeout
		}
		if config.ReadTimeout > 0 {
			cfg.ReadTimeout = config.ReadTimeout
		}
		if config.PollInterval > 0 {
			cfg.PollInterval = config.PollInterval
		}
	}

	return &Dev{
		dev: i2c.Dev{Bus: bus, Addr: DefaultAddress},
		cfg: cfg,
	}
}

func (d *Dev) String() string {
	return "VL53L1X@" + hexAddr(d.dev.Addr)
}

// Address returns the address the handle currently talks to.
func (d *Dev) Address() uint16 {
	return d.dev.Addr
}

// SoftReset pulses the reset register. The device comes back at the
// factory default address, so the handle follows it there.
func (d *Dev) SoftReset() error {
	if err := d.writeByte(regSoftReset, 0x00); err != nil {
		return errors.Errorf("Could not enter reset: %v", err)
	}

	time.Sleep(100 * time.Microsecond)

	d.dev.Addr = DefaultAddress
	d.polarityRead = false

	if err := d.writeByte(regSoftReset, 0x01); err != nil {
		return errors.Errorf("Could not leave reset: %v", err)
	}

	return nil
}

// Init waits for boot, checks the model id and loads the default
// configuration, running one throwaway measurement to settle the VHV loop.
func (d *Dev) Init() error {
	if err := d.waitBooted(); err != nil {
		return err
	}

	id, err := d.readWord(regIdentificationModelID)
	if err != nil {
		return errors.Errorf("Could not read model id: %v", err)
	}

	if id != modelID {
		return errors.Errorf("Unexpected model id %#04x at %v", id, d)
	}

	if err := d.write(defaultConfigStart, defaultConfiguration[:]...); err != nil {
		return errors.Errorf("Could not write default configuration: %v", err)
	}

	d.polarityRead = false

	if err := d.writeByte(regSystemModeStart, modeStartContinuous); err != nil {
		return errors.Errorf("Could not start calibration ranging: %v", err)
	}

	if err := d.waitDataReady(); err != nil {
		return err
	}

	if err := d.writeByte(regSystemInterruptClear, 0x01); err != nil {
		return errors.Errorf("Could not clear interrupt: %v", err)
	}

	if err := d.writeByte(regSystemModeStart, modeStop); err != nil {
		return errors.Errorf("Could not stop calibration ranging: %v", err)
	}

	if err := d.writeByte(regVhvConfigTimeoutLoopBound, 0x09); err != nil {
		return errors.Errorf("Could not set VHV loop bound: %v", err)
	}

	if err := d.writeByte(regVhvConfigInit, 0x00); err != nil {
		return errors.Errorf("Could not set VHV init: %v", err)
	}

	return nil
}

// SetAddress moves the device to a new 7-bit address.
func (d *Dev) SetAddress(addr uint16) error {
	if addr == 0 || addr > 0x7F {
		return errors.Errorf("Invalid 7-bit address %#02x", addr)
	}

	if err := d.writeByte(regI2CSlaveDeviceAddress, byte(addr)); err != nil {
		return errors.Errorf("Could not set address %v: %v", hexAddr(addr), err)
	}

	d.dev.Addr = addr

	return nil
}

// SetDistanceMode programs the VCSEL and phase registers for mode. The range
// timeouts from the default configuration are left as they are, so the
// effective timing budget is shorter in short and mid mode than in long mode.
func (d *Dev) SetDistanceMode(mode DistanceMode) error {
	t, ok := modeTimings[mode]
	if !ok {
		return errors.Errorf("Unsupported distance mode %v", mode)
	}

	writes := []struct {
		reg uint16
		val []byte
	}{
		{regPhasecalTimeoutMacrop, []byte{t.phasecalTimeout}},
		{regRangeVcselPeriodA, []byte{t.vcselPeriodA}},
		{regRangeVcselPeriodB, []byte{t.vcselPeriodB}},
		{regRangeValidPhaseHigh, []byte{t.validPhaseHigh}},
		{regSdConfigWoiSd0, word(t.woiSd)},
		{regSdConfigInitialPhaseSd0, word(t.initialPhaseSd)},
	}

	for _, w := range writes {
		if err := d.write(w.reg, w.val...); err != nil {
			return errors.Errorf("Could not set distance mode %v: %v", mode, err)
		}
	}

	return nil
}

// StartRanging selects mode and starts continuous ranging.
func (d *Dev) StartRanging(mode DistanceMode) error {
	if err := d.SetDistanceMode(mode); err != nil {
		return err
	}

	if err := d.writeByte(regSystemModeStart, modeStartContinuous); err != nil {
		return errors.Errorf("Could not start ranging: %v", err)
	}

	return nil
}

func (d *Dev) StopRanging() error {
	if err := d.writeByte(regSystemModeStart, modeStop); err != nil {
		return errors.Errorf("Could not stop ranging: %v", err)
	}

	return nil
}

// ReadSample waits for the next measurement, reads it and re-arms the
// interrupt.
func (d *Dev) ReadSample() (Sample, error) {
	if err := d.waitDataReady(); err != nil {
		return Sample{}, err
	}

	status, err := d.readByte(regResultRangeStatus)
	if err != nil {
		return Sample{}, errors.Errorf("Could not read range status: %v", err)
	}

	distance, err := d.readWord(regResultDistance)
	if err != nil {
		return Sample{}, errors.Errorf("Could not read distance: %v", err)
	}

	if err := d.writeByte(regSystemInterruptClear, 0x01); err != nil {
		return Sample{}, errors.Errorf("Could not clear interrupt: %v", err)
	}

	return Sample{Distance: distance, Status: status & 0x1F}, nil
}

// ReadDistance returns the distance in millimetres of the next sample.
func (d *Dev) ReadDistance() (uint16, error) {
	s, err := d.ReadSample()
	if err != nil {
		return 0, err
	}

	return s.Distance, nil
}

func (d *Dev) waitBooted() error {
	deadline := time.Now().Add(d.cfg.BootTimeout)

	for {
		state, err := d.readByte(regFirmwareSystemStatus)
		// The device NACKs while it is still booting.
		if err == nil && state&0x01 == 0x01 {
			return nil
		}

		if time.Now().After(deadline) {
			if err != nil {
				return errors.Errorf("%v did not boot: %v", d, err)
			}
			return errors.Errorf("%v did not boot", d)
		}

		time.Sleep(d.cfg.PollInterval)
	}
}

func (d *Dev) waitDataReady() error {
	if !d.polarityRead {
		mux, err := d.readByte(regGpioHvMuxCtrl)
		if err != nil {
			return errors.Errorf("Could not read interrupt polarity: %v", err)
		}

		// active high unless bit 4 is set
		d.polarity = (^(mux >> 4)) & 0x01
		d.polarityRead = true
	}

	deadline := time.Now().Add(d.cfg.ReadTimeout)

	for {
		status, err := d.readByte(regGpioTioHvStatus)
		if err != nil {
			return errors.Errorf("Could not read data ready: %v", err)
		}

		if status&0x01 == d.polarity {
			return nil
		}

		if time.Now().After(deadline) {
			return errors.Errorf("%v: timed out waiting for data", d)
		}

		time.Sleep(d.cfg.PollInterval)
	}
}

func (d *Dev) write(reg uint16, data ...byte) error {
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf, reg)
	copy(buf[2:], data)

	return d.dev.Tx(buf, nil)
}

func (d *Dev) writeByte(reg uint16, v byte) error {
	return d.write(reg, v)
}

func (d *Dev) read(reg uint16, n int) ([]byte, error) {
	idx := word(reg)
	r := make([]byte, n)

	if err := d.dev.Tx(idx, r); err != nil {
		return nil, err
	}

	return r, nil
}

func (d *Dev) readByte(reg uint16) (byte, error) {
	r, err := d.read(reg, 1)
	if err != nil {
		return 0, err
	}

	return r[0], nil
}

func (d *Dev) readWord(reg uint16) (uint16, error) {
	r, err := d.read(reg, 2)
	if err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint16(r), nil
}

func word(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func hexAddr(addr uint16) string {
	return fmt.Sprintf("0x%02x", addr)
}
