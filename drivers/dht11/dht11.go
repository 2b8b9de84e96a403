// Package dht11 decodes the DHT11 single-wire temperature/humidity protocol.
//
// The sensor shares one bidirectional line with the controller: the driver
// wakes it with a long low pulse, releases the line, and the sensor answers
// with an acknowledge sequence followed by 40 bits whose values are encoded
// purely by the duration of each high pulse. A trailing byte carries a
// checksum over the four payload bytes.
//
//	d := dht11.New(line, clock)
//	r, err := d.Read()     // one full handshake + decode, a few ms, blocking
//
// Read is a single critical section over the line: nothing else may drive or
// sample the pin while it runs, and the caller must leave at least a second
// between calls (the sensor ignores faster polling). Every exit path,
// including all timeouts, returns the line to the released input state.
//
// All timing budgets are explicit monotonic-clock deadlines in microseconds,
// not spin counts, so behaviour does not depend on per-iteration cost. They
// are empirical values tuned against the sensor's nominal timings and may
// need recalibration on an unusually slow target.
package dht11

import (
	"errors"
	"strconv"
	"time"
)

// Line is the hardware-facing contract: one bidirectional digital pin.
// Anything providing these primitives (a machine pin, a simulated line) is
// substitutable.
type Line interface {
	// Input releases the line: input mode, pulled up.
	Input()
	// Output drives the line at the given level.
	Output(level bool)
	// Set changes the driven level. Only meaningful after Output.
	Set(level bool)
	// Get samples the current line level.
	Get() bool
}

// Clock supplies an elapsed-microsecond monotonic counter and a busy wait.
// Microsecond resolution is required: the bit discriminator compares pulse
// widths a few tens of microseconds apart.
type Clock interface {
	Micros() int64
	SleepMicros(n int64)
}

// Reading is one validated result. The driver keeps no last-good state;
// retention policy belongs to the caller.
type Reading struct {
	Humidity    uint8 // %RH, whole units
	Temperature uint8 // °C, whole units
}

// Errors returned by Read. All are terminal for that call only; the sensor
// recovers by itself and a later Read starts a fresh handshake.
var (
	// ErrNoResponse: the sensor never pulled the line low after the wake
	// pulse. Wiring fault or sensor absent.
	ErrNoResponse = errors.New("dht11: no response to wake pulse")
	// ErrAckTimeout: the sensor acknowledged but did not release the line.
	ErrAckTimeout = errors.New("dht11: acknowledge not released")
)

// BitTimeoutError reports a stall mid-transfer at a specific bit index.
type BitTimeoutError struct {
	Bit int // 0..39
}

func (e *BitTimeoutError) Error() string {
	return "dht11: timeout at bit " + strconv.Itoa(e.Bit)
}

// ChecksumError reports a fully received frame whose checksum did not match.
// The frame is discarded entirely; there is no redundancy to recover from.
type ChecksumError struct {
	Want uint8 // computed over payload bytes
	Got  uint8 // received in byte 4
}

func (e *ChecksumError) Error() string {
	return "dht11: checksum mismatch: computed " + strconv.Itoa(int(e.Want)) +
		", received " + strconv.Itoa(int(e.Got))
}

// Config carries the protocol timing constants. All fields are optional;
// zero values take the defaults below. These are tuning constants, not
// protocol constants: the datasheet gives nominal pulse widths and the
// budgets here just need to bracket them with margin.
type Config struct {
	// WakeLow is the request pulse the sensor needs to notice a read.
	// Default 18 ms.
	WakeLow time.Duration
	// WakeHigh is the release pulse before switching to input. Default 40 µs.
	WakeHigh time.Duration
	// AckTimeout bounds the wait for the sensor's low acknowledge.
	// Default 1 ms.
	AckTimeout time.Duration
	// AckClearTimeout bounds the wait for the acknowledge to clear.
	// Default 1 ms.
	AckClearTimeout time.Duration
	// BitTimeout bounds each of the three waits inside one bit (start
	// marker, marker end, pulse end). Default 1 ms.
	BitTimeout time.Duration
	// Threshold separates "0" and "1" high pulses: strictly longer decodes
	// as 1. Default 50 µs, between the nominal 26–28 µs "0" and 70 µs "1".
	// A pulse of exactly Threshold decodes as 0.
	Threshold time.Duration
}

const frameBits = 40

// Device is a DHT11 on one line. Not safe for concurrent use; the protocol
// has no arbitration.
type Device struct {
	line Line
	clk  Clock
	cfg  Config
}

// New creates a Device. It does not touch the line.
func New(line Line, clk Clock) Device {
	return Device{line: line, clk: clk}
}

// Configure applies optional timing config. May be called with no arguments
// to install defaults; Read does so lazily on first use.
func (d *Device) Configure(cfgs ...Config) {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.WakeLow <= 0 {
		c.WakeLow = 18 * time.Millisecond
	}
	if c.WakeHigh <= 0 {
		c.WakeHigh = 40 * time.Microsecond
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = time.Millisecond
	}
	if c.AckClearTimeout <= 0 {
		c.AckClearTimeout = time.Millisecond
	}
	if c.BitTimeout <= 0 {
		c.BitTimeout = time.Millisecond
	}
	if c.Threshold <= 0 {
		c.Threshold = 50 * time.Microsecond
	}
	d.cfg = c
}

// Read performs one full transfer: Request → WaitAck → WaitAckClear →
// BitLoop(0..40) → Validate. It blocks the caller for up to a few
// milliseconds and must not be preempted for long during the bit loop, or
// pulse-width measurements will be corrupted.
func (d *Device) Read() (Reading, error) {
	if d.cfg.Threshold == 0 {
		d.Configure()
	}

	// Request: hold the line low long enough for the sensor to wake, give a
	// short high, then hand the line over.
	d.line.Output(false)
	d.clk.SleepMicros(us(d.cfg.WakeLow))
	d.line.Set(true)
	d.clk.SleepMicros(us(d.cfg.WakeHigh))
	d.line.Input()

	// The line must end every exit path released.
	defer d.line.Input()

	// WaitAck: the sensor signals by pulling low.
	if _, ok := d.waitLevel(false, d.cfg.AckTimeout); !ok {
		return Reading{}, ErrNoResponse
	}
	// WaitAckClear: and releases back high before the first bit.
	if _, ok := d.waitLevel(true, d.cfg.AckClearTimeout); !ok {
		return Reading{}, ErrAckTimeout
	}

	// BitLoop: each bit is a fixed low start marker followed by a high pulse
	// whose width carries the value. Bits fold MSB-first into the frame.
	var frame [5]byte
	threshold := us(d.cfg.Threshold)
	for bit := 0; bit < frameBits; bit++ {
		if _, ok := d.waitLevel(false, d.cfg.BitTimeout); !ok {
			return Reading{}, &BitTimeoutError{Bit: bit}
		}
		if _, ok := d.waitLevel(true, d.cfg.BitTimeout); !ok {
			return Reading{}, &BitTimeoutError{Bit: bit}
		}
		high, ok := d.waitLevel(false, d.cfg.BitTimeout)
		if !ok {
			return Reading{}, &BitTimeoutError{Bit: bit}
		}
		if high > threshold {
			frame[bit/8] |= 1 << (7 - uint(bit%8))
		}
	}

	// Validate: byte 4 must equal the low 8 bits of the payload sum.
	// On mismatch the whole frame is untrustworthy and is discarded.
	sum := frame[0] + frame[1] + frame[2] + frame[3]
	if sum != frame[4] {
		return Reading{}, &ChecksumError{Want: sum, Got: frame[4]}
	}

	// Bytes 1 and 3 are always zero on this sensor class (no decimals).
	return Reading{Humidity: frame[0], Temperature: frame[2]}, nil
}

// waitLevel samples the line until it reads level, returning how long the
// wait took in microseconds. ok is false when the budget elapses first.
func (d *Device) waitLevel(level bool, budget time.Duration) (elapsed int64, ok bool) {
	start := d.clk.Micros()
	limit := us(budget)
	for d.line.Get() != level {
		if d.clk.Micros()-start > limit {
			return 0, false
		}
	}
	return d.clk.Micros() - start, true
}

func us(d time.Duration) int64 { return int64(d / time.Microsecond) }
