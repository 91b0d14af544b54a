package vl53l1x

// DefaultAddress is the 7-bit bus address every device answers on after
// power-up or reset.
const DefaultAddress uint16 = 0x29

// modelID is the value of the identification registers for a VL53L1X.
const modelID uint16 = 0xEACC

const (
	regSoftReset                 uint16 = 0x0000
	regI2CSlaveDeviceAddress     uint16 = 0x0001
	regVhvConfigTimeoutLoopBound uint16 = 0x0008
	regVhvConfigInit             uint16 = 0x000B
	regGpioHvMuxCtrl             uint16 = 0x0030
	regGpioTioHvStatus           uint16 = 0x0031
	regPhasecalTimeoutMacrop     uint16 = 0x004B
	regRangeTimeoutMacropA       uint16 = 0x005E
	regRangeVcselPeriodA         uint16 = 0x0060
	regRangeTimeoutMacropB       uint16 = 0x0061
	regRangeVcselPeriodB         uint16 = 0x0063
	regRangeValidPhaseHigh       uint16 = 0x0069
	regSdConfigWoiSd0            uint16 = 0x0078
	regSdConfigInitialPhaseSd0   uint16 = 0x007A
	regSystemInterruptClear      uint16 = 0x0086
	regSystemModeStart           uint16 = 0x0087
	regResultRangeStatus         uint16 = 0x0089
	regResultDistance            uint16 = 0x0096
	regFirmwareSystemStatus      uint16 = 0x00E5
	regIdentificationModelID     uint16 = 0x010F
)

const (
	modeStartContinuous byte = 0x40
	modeStop            byte = 0x00
)

// defaultConfigStart is the first register written by the default
// configuration block; the block runs up to and including 0x87.
const defaultConfigStart uint16 = 0x002D

// defaultConfiguration is ST's ultra lite driver default block. It sets
// long distance mode and continuous ranging. The range timeouts it writes
// (0x5E and 0x61) are counted in macro periods, and a macro period scales
// with the VCSEL period, so the budget they give is only nominal for long
// mode. SetDistanceMode does not rewrite them.
var defaultConfiguration = [...]byte{
	0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x02, 0x08,
	0x00, 0x08, 0x10, 0x01, 0x01, 0x00, 0x00, 0x00,
	0x00, 0xff, 0x00, 0x0F, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x20, 0x0b, 0x00, 0x00, 0x02, 0x0a, 0x21,
	0x00, 0x00, 0x05, 0x00, 0x00, 0x00, 0x00, 0xc8,
	0x00, 0x00, 0x38, 0xff, 0x01, 0x00, 0x08, 0x00,
	0x00, 0x01, 0xcc, 0x0f, 0x01, 0xf1, 0x0d, 0x01,
	0x68, 0x00, 0x80, 0x08, 0xb8, 0x00, 0x00, 0x00,
	0x00, 0x0f, 0x89, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x0f, 0x0d, 0x0e, 0x0e, 0x00,
	0x00, 0x02, 0xc7, 0xff, 0x9B, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x00,
}

// modeTiming holds the register values that select a distance mode.
type modeTiming struct {
	phasecalTimeout byte
	vcselPeriodA    byte
	vcselPeriodB    byte
	validPhaseHigh  byte
	woiSd           uint16
	initialPhaseSd  uint16
}

var modeTimings = map[DistanceMode]modeTiming{
	Short: {0x14, 0x07, 0x05, 0x38, 0x0705, 0x0606},
	Mid:   {0x0A, 0x0B, 0x09, 0x78, 0x0B09, 0x0A0A},
	Long:  {0x0A, 0x0F, 0x0D, 0xB8, 0x0F0D, 0x0E0E},
}
