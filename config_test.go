package main

import (
	"github.com/drobo-robotics/poled/machine"
	"github.com/drobo-robotics/poled/vl53l1x"
	"reflect"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil)
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}

	if cfg.Detector.Threshold != 1100 || cfg.Detector.Interval != 10*time.Millisecond {
		t.Fatalf("detector defaults = %+v", cfg.Detector)
	}
	if cfg.Dispatch.Timeout != time.Second || cfg.Dispatch.Retries != 0 || cfg.Dispatch.FatalOnError {
		t.Fatalf("dispatch defaults = %+v", cfg.Dispatch)
	}
	if cfg.SafeShutdown {
		t.Fatalf("safe shutdown enabled by default")
	}

	mc, err := cfg.periphMachineConfig(nil)
	if err != nil {
		t.Fatalf("periphMachineConfig: %v", err)
	}

	if want := []machine.Position{machine.Rear, machine.Mid, machine.Front}; !reflect.DeepEqual(mc.Order, want) {
		t.Fatalf("order = %v, want %v", mc.Order, want)
	}
	if mc.Rear.Address != 0x31 || mc.Mid.Address != 0x30 || mc.Front.Address != 0 {
		t.Fatalf("addresses = %#02x %#02x %#02x", mc.Rear.Address, mc.Mid.Address, mc.Front.Address)
	}
	if mc.Front.Pin != "GPIO105" || mc.Mid.Pin != "GPIO106" || mc.Rear.Pin != "GPIO43" {
		t.Fatalf("pins = %v %v %v", mc.Front.Pin, mc.Mid.Pin, mc.Rear.Pin)
	}
	if mc.SelectMode != machine.Exclusive || mc.DistanceMode != vl53l1x.Mid {
		t.Fatalf("modes = %v %v", mc.SelectMode, mc.DistanceMode)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	cfg, err := parseConfig([]string{
		"--machine=mock",
		"--periph.order=front, mid, rear",
		"--periph.front-address=0x32",
		"--periph.rear-address=0",
		"--periph.select-mode=cumulative",
		"--detector.threshold=900",
		"--dispatch.retries=2",
		"--dispatch.fatal-on-error",
		"--safe-shutdown",
	})
	if err != nil {
		t.Fatalf("parseConfig: %v", err)
	}

	if cfg.Machine != "mock" || !cfg.SafeShutdown || !cfg.Dispatch.FatalOnError || cfg.Dispatch.Retries != 2 {
		t.Fatalf("config = %+v", cfg)
	}

	mc, err := cfg.periphMachineConfig(nil)
	if err != nil {
		t.Fatalf("periphMachineConfig: %v", err)
	}

	if want := []machine.Position{machine.Front, machine.Mid, machine.Rear}; !reflect.DeepEqual(mc.Order, want) {
		t.Fatalf("order = %v, want %v", mc.Order, want)
	}
	if mc.Front.Address != 0x32 || mc.SelectMode != machine.Cumulative {
		t.Fatalf("machine config = %+v", mc)
	}
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	for _, args := range [][]string{
		{"--periph.order=rear,mid"},
		{"--periph.order=rear,rear,front"},
		{"--detector.threshold=0"},
		{"--dispatch.timeout=0s"},
		{"--dispatch.retries=-1"},
		{"--machine=raspberry"},
	} {
		if _, err := parseConfig(args); err == nil {
			t.Fatalf("parseConfig(%v) succeeded", args)
		}
	}
}
