// Package bridge forwards the node's capability tree over a serial link to a
// host-side gateway, and routes remote control requests back onto the local
// bus. The wire protocol is length-prefixed frames carrying JSON messages.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"

	"sensornode-go/bus"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for JSON config on topic {"config","bridge"} and (re)configures
// the link.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.Topic{"bridge", "state"},
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`
}

type TransportConfig struct {
	// "uart" (platform dial) or "port" (pre-configured serial port), or other
	// names registered via RegisterTransport.
	Type string      `json:"type"`
	UART *UARTConfig `json:"uart,omitempty"`
}

// UARTConfig carries enough information for an injected dialler to open the
// UART. Pin mapping and UART instance selection happen in UARTDial.
type UARTConfig struct {
	Baud  int `json:"baud"`
	RxPin int `json:"rx_pin"`
	TxPin int `json:"tx_pin"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
	curCfg atomic.Value // stores Config
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "bridge"})
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	s.curCfg.Store(cfg)
	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		if err := s.handleLink(ctx, rwc); err != nil {
			_ = rwc.Close()
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		// Clean close: restart only on new config.
		_ = rwc.Close()
		return
	}
}

// handleLink owns the active link lifetime: uplink of everything under hal/,
// downlink of remote control requests, and a keepalive ping.
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser) error {
	rd := NewFramedReader(rwc)
	wr := NewFramedWriter(rwc)

	// Uplink subscription gets its own channel so link loss never blocks the
	// rest of the bus.
	upSub := s.conn.Subscribe(bus.Topic{"hal", "#"})
	defer s.conn.Unsubscribe(upSub)

	inbound := make(chan Frame, 8)
	errCh := make(chan error, 1)
	go func() {
		defer close(inbound)
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case inbound <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(Frame{Type: FrameClose})
			return nil

		case err := <-errCh:
			return err

		case msg := <-upSub.Channel():
			b, err := encodeWire(msg)
			if err != nil {
				continue // unencodable payload, drop
			}
			if err := wr.WriteFrame(Frame{Type: FramePub, Payload: b}); err != nil {
				return err
			}

		case f, ok := <-inbound:
			if !ok {
				return errors.New("reader stopped")
			}
			switch f.Type {
			case FramePing:
				if err := wr.WriteFrame(Frame{Type: FramePong}); err != nil {
					return err
				}
			case FramePong:
				// Keepalive answered; nothing to record yet.
			case FramePub:
				s.routeInbound(f.Payload)
			case FrameClose:
				return nil
			default:
				// Unknown frame types are ignored for forward compatibility.
			}

		case <-tick.C:
			if err := wr.WriteFrame(Frame{Type: FramePing}); err != nil {
				return err
			}
		}
	}
}

// routeInbound publishes a remote message locally. Only control requests are
// accepted; a remote peer may not overwrite local values or state.
func (s *Service) routeInbound(payload []byte) {
	msg, err := decodeWire(payload)
	if err != nil {
		return
	}
	if !controlTopic(msg.Topic) {
		return
	}
	s.conn.Publish(msg)
}

// controlTopic reports whether t is hal/capability/<kind>/<id>/control/<verb>.
func controlTopic(t bus.Topic) bool {
	if t.Len() != 6 {
		return false
	}
	p0, _ := t.At(0).(string)
	p1, _ := t.At(1).(string)
	p4, _ := t.At(4).(string)
	return p0 == "hal" && p1 == "capability" && p4 == "control"
}

// -----------------------------------------------------------------------------
// Wire encoding
// -----------------------------------------------------------------------------

type WireMsg struct {
	Topic    []any `json:"topic"`
	Payload  any   `json:"payload,omitempty"`
	Retained bool  `json:"retained,omitempty"`
}

func encodeWire(m *bus.Message) ([]byte, error) {
	return json.Marshal(WireMsg{Topic: m.Topic, Payload: m.Payload, Retained: m.Retained})
}

func decodeWire(b []byte) (*bus.Message, error) {
	var w WireMsg
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, err
	}
	if len(w.Topic) == 0 {
		return nil, errors.New("empty topic")
	}
	t := make(bus.Topic, len(w.Topic))
	for i, tok := range w.Topic {
		// JSON numbers arrive as float64; topic ids are ints locally.
		if f, ok := tok.(float64); ok && f == float64(int(f)) {
			t[i] = int(f)
			continue
		}
		t[i] = tok
	}
	return &bus.Message{Topic: t, Payload: w.Payload, Retained: w.Retained}, nil
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not implemented")
	errNoPort = errors.New("no serial port installed")
)

// RegisterTransport allows external packages to add transports (eg. "tcp").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	case "port":
		return portTransport{}, nil
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// UARTDial is injected by platform code (eg. in main or a uart_rp2.go).
// It must open and return an io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u UARTConfig) (io.ReadWriteCloser, error)

// uartTransport implements Transport via an injected dial function.
type uartTransport struct {
	cfg TransportConfig
}

func newUARTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("uart transport requires uart config")
	}
	return &uartTransport{cfg: cfg}, nil
}

func (u *uartTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	return UARTDial(ctx, *u.cfg.UART)
}

func (u *uartTransport) String() string { return "uart" }

// -----------------------------------------------------------------------------
// Port transport: a pre-configured serial port installed by the platform
// -----------------------------------------------------------------------------

// InstallPort sets the serial port used by the "port" transport. The port
// must already be configured (baud rate, pins).
func InstallPort(u drivers.UART) {
	portMu.Lock()
	portUART = u
	portMu.Unlock()
}

var (
	portMu   sync.Mutex
	portUART drivers.UART
)

type portTransport struct{}

func (portTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	portMu.Lock()
	u := portUART
	portMu.Unlock()
	if u == nil {
		return nil, errNoPort
	}
	return &portLink{u: u}, nil
}

func (portTransport) String() string { return "port" }

// portLink adapts a drivers.UART to the byte stream the framing runs over.
// Reads poll the receive buffer; the tick keeps the poll off a hot spin.
type portLink struct {
	u      drivers.UART
	closed atomic.Bool
}

func (p *portLink) Read(b []byte) (int, error) {
	for {
		if p.closed.Load() {
			return 0, io.ErrClosedPipe
		}
		if p.u.Buffered() > 0 {
			n := 0
			for n < len(b) && p.u.Buffered() > 0 {
				var c [1]byte
				if _, err := p.u.Read(c[:]); err != nil {
					if n > 0 {
						return n, nil
					}
					return 0, err
				}
				b[n] = c[0]
				n++
			}
			return n, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (p *portLink) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return p.u.Write(b)
}

func (p *portLink) Close() error {
	p.closed.Store(true)
	return nil
}

// -----------------------------------------------------------------------------
// Framing
// -----------------------------------------------------------------------------

const (
	FramePing  byte = 0x01
	FramePong  byte = 0x02
	FramePub   byte = 0x10
	FrameClose byte = 0x7f
)

// Frame is a simple length-prefixed frame: type byte, big-endian u16 length,
// payload.
type Frame struct {
	Type    byte
	Payload []byte
}

type FramedReader struct{ r io.Reader }
type FramedWriter struct{ w io.Writer }

func NewFramedReader(r io.Reader) *FramedReader { return &FramedReader{r: r} }
func NewFramedWriter(w io.Writer) *FramedWriter { return &FramedWriter{w: w} }

func (fr *FramedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *FramedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  time.Now().UnixMilli(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(s.stateTopic, payload, true))
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	var cur = min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
