// Package dhtsim provides a simulated single-wire line and a virtual
// microsecond clock for exercising the dht11 decoder without hardware.
//
// The line plays back a scripted level timeline that starts the moment the
// decoder releases the line after its wake pulse. Sampling the line advances
// the shared virtual clock by a fixed per-sample cost, so wait loops
// terminate deterministically and pulse-width measurements are exact.
package dhtsim

import "sensornode-go/drivers/dht11"

// Clock is a virtual microsecond counter.
type Clock struct {
	now int64
}

func (c *Clock) Micros() int64       { return c.now }
func (c *Clock) SleepMicros(n int64) { c.now += n }

// Segment is one stretch of the scripted response.
type Segment struct {
	Level bool
	Dur   int64 // µs
}

// Mode mirrors the line's configured direction for final-state assertions.
type Mode uint8

const (
	ModeUnset Mode = iota
	ModeInput
	ModeOutput
)

// Line is a scripted dht11.Line. The script re-arms on every
// output→input transition, so consecutive reads replay the same response.
type Line struct {
	clk *Clock

	// SampleCost is the virtual cost of one Get call, in µs. Must be > 0 or
	// wait loops against a silent line would never time out. Default 1.
	SampleCost int64

	script      []Segment
	scriptStart int64
	armed       bool

	mode   Mode
	driven bool
}

var _ dht11.Line = (*Line)(nil)

// NewLine creates a line bound to clk playing back script.
func NewLine(clk *Clock, script []Segment) *Line {
	return &Line{clk: clk, SampleCost: 1, script: script}
}

func (l *Line) Input() {
	if l.mode == ModeOutput {
		// Release after a drive phase: the sensor's response starts now.
		l.scriptStart = l.clk.now
		l.armed = true
	}
	l.mode = ModeInput
}

func (l *Line) Output(level bool) {
	l.mode = ModeOutput
	l.driven = level
	l.armed = false
}

func (l *Line) Set(level bool) { l.driven = level }

func (l *Line) Get() bool {
	level := l.levelAt(l.clk.now)
	l.clk.now += l.SampleCost
	return level
}

// Mode reports the line's current direction.
func (l *Line) LineMode() Mode { return l.mode }

func (l *Line) levelAt(t int64) bool {
	if l.mode == ModeOutput {
		return l.driven
	}
	if !l.armed {
		return true // external pull-up
	}
	off := t - l.scriptStart
	for _, seg := range l.script {
		if off < seg.Dur {
			return seg.Level
		}
		off -= seg.Dur
	}
	return true // script exhausted: line rests high
}

// -----------------------------------------------------------------------------
// Pulse-train builders (datasheet-nominal timings)
// -----------------------------------------------------------------------------

const (
	ackLowUS  = 80
	ackHighUS = 80
	bitLowUS  = 50
	zeroUS    = 26
	oneUS     = 70
	tailLowUS = 54
)

// Ack returns the acknowledge sequence alone (no data bits).
func Ack() []Segment {
	return []Segment{{false, ackLowUS}, {true, ackHighUS}}
}

// Train returns a complete, well-formed response for the given 5-byte frame:
// acknowledge, 40 bits MSB-first, and the trailing low before the line
// returns to idle.
func Train(frame [5]byte) []Segment {
	segs := Ack()
	for i := 0; i < 40; i++ {
		segs = append(segs, Segment{false, bitLowUS})
		if frame[i/8]&(1<<(7-uint(i%8))) != 0 {
			segs = append(segs, Segment{true, oneUS})
		} else {
			segs = append(segs, Segment{true, zeroUS})
		}
	}
	return append(segs, Segment{false, tailLowUS})
}

// Frame assembles the 5-byte raw frame for the given payload with a valid
// checksum.
func Frame(humidity, humidityDec, temperature, temperatureDec uint8) [5]byte {
	return [5]byte{
		humidity, humidityDec, temperature, temperatureDec,
		humidity + humidityDec + temperature + temperatureDec,
	}
}

// TruncatedTrain returns a response that stalls after n complete bits: the
// line goes low for bit n's start marker and never comes back up.
func TruncatedTrain(frame [5]byte, n int) []Segment {
	full := Train(frame)
	// 2 ack segments, then 2 segments per bit.
	segs := append([]Segment(nil), full[:2+2*n]...)
	return append(segs, Segment{false, 1 << 20})
}
