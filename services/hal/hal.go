package hal

import (
	"context"
	"time"

	"sensornode-go/bus"
	"sensornode-go/drivers/dht11"
	"sensornode-go/errcode"
	"sensornode-go/types"
	"sensornode-go/x/mathx"
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run starts the HAL service and blocks until ctx is cancelled. It owns the
// single measure worker; all device reads are serialised through it.
func Run(ctx context.Context, conn *bus.Connection, pins PinFactory, clk dht11.Clock, meters MeterFactory) {
	s := &service{
		conn:        conn,
		pins:        pins,
		clk:         clk,
		meters:      meters,
		adaptors:    map[string]Adaptor{},
		devices:     map[string]devEntry{},
		capToDev:    map[capKey]string{},
		nextCapID:   map[string]int{},
		devPeriodMS: map[string]int{},
		devNextDue:  map[string]time.Time{},
		results:     make(chan Result, 32),
	}
	s.worker = newWorker(WorkerConfig{}, s.results)
	s.worker.Start(ctx)
	s.loop(ctx)
}

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Producers may not be polled faster than the single-wire sensor allows.
const (
	minPeriodMS = 1000
	maxPeriodMS = 3_600_000
)

type devEntry struct {
	adaptor Adaptor
	caps    map[string]int // kind -> numeric capability id
}

type capKey struct {
	kind string
	id   int
}

type service struct {
	conn   *bus.Connection
	pins   PinFactory
	clk    dht11.Clock
	meters MeterFactory

	worker   *measureWorker
	adaptors map[string]Adaptor
	devices  map[string]devEntry

	capToDev  map[capKey]string
	nextCapID map[string]int

	devPeriodMS map[string]int
	devNextDue  map[string]time.Time

	timer   *time.Timer
	results chan Result
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "hal"})
	ctrlSub := s.conn.Subscribe(bus.Topic{"hal", "capability", "+", "+", "control", "+"})
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config", nil)

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		drainTimer(s.timer)
	}

	for {
		if next := s.earliestDevDue(); next.IsZero() {
			resetTimer(s.timer, time.Hour)
		} else {
			resetTimer(s.timer, time.Until(next))
		}

		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg types.HALConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			if err := s.applyConfig(cfg); err != nil {
				s.publishState("error", "apply_config_failed", err)
				continue
			}
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.timer.C:
			now := time.Now()
			for devID, due := range s.devNextDue {
				if !now.Before(due) {
					s.submitMeasure(devID, false)
					s.bumpDevNext(devID, now)
				}
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

// -----------------------------------------------------------------------------
// Control
// -----------------------------------------------------------------------------

func (s *service) handleControl(msg *bus.Message) {
	// hal/capability/<kind>/<id:int>/control/<method>
	if msg.Topic.Len() < 6 {
		return
	}
	kind, _ := msg.Topic.At(2).(string)
	idNum, ok := asInt(msg.Topic.At(3))
	if !ok || kind == "" {
		s.replyErr(msg, errcode.InvalidTopic)
		return
	}
	devID, ok := s.capToDev[capKey{kind: kind, id: idNum}]
	if !ok {
		s.replyErr(msg, errcode.UnknownCapability)
		return
	}
	method, _ := msg.Topic.At(5).(string)

	switch method {
	case "read_now":
		if s.submitMeasure(devID, true) {
			s.bumpDevNext(devID, time.Now())
			s.replyOK(msg, nil)
		} else {
			s.replyErr(msg, errcode.Busy)
		}
	case "set_rate":
		ms := parsePeriodMS(msg.Payload)
		if ms <= 0 {
			s.replyErr(msg, errcode.InvalidPayload)
			return
		}
		s.devPeriodMS[devID] = mathx.Clamp(ms, minPeriodMS, maxPeriodMS)
		s.bumpDevNext(devID, time.Now())
		s.replyOK(msg, map[string]any{"period_ms": s.devPeriodMS[devID]})
	default:
		ent := s.devices[devID]
		res, err := ent.adaptor.Control(kind, method, msg.Payload)
		if err != nil {
			s.replyErr(msg, errcode.Of(err))
			return
		}
		s.replyOK(msg, map[string]any{"result": res})
		// State-changing relay verbs also publish the new value, retained,
		// so late subscribers (and the uplink) see the switch position.
		if kind == string(types.KindRelay) && (method == "set" || method == "toggle") {
			s.pubRet(capTopic(kind, idNum, "value"), res)
		}
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(cfg types.HALConfig) error {
	seen := map[string]struct{}{}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		seen[d.ID] = struct{}{}
		if _, exists := s.devices[d.ID]; exists {
			continue // simple idempotence
		}

		var ad Adaptor
		producer := false
		defaultPeriodMS := 0

		switch d.Type {
		case "dht11":
			var p types.DHT11Params
			if err := decodeJSON(d.Params, &p); err != nil {
				continue
			}
			pin, ok := s.pins.ByNumber(p.Pin)
			if !ok {
				continue
			}
			ad = NewDHT11Adaptor(d.ID, pin, s.clk)
			producer = true
			defaultPeriodMS = 2000

		case "relay":
			var p types.RelayParams
			if err := decodeJSON(d.Params, &p); err != nil {
				continue
			}
			pin, ok := s.pins.ByNumber(p.Pin)
			if !ok {
				continue
			}
			init := p.Initial
			if p.Invert {
				init = !init
			}
			if err := pin.ConfigureOutput(init); err != nil {
				continue
			}
			ad = NewRelayAdaptor(d.ID, pin, p)

		case "power":
			var p struct {
				Bus string `json:"bus"`
			}
			if err := decodeJSON(d.Params, &p); err != nil {
				continue
			}
			meter, ok := s.meters.ByID(p.Bus)
			if !ok {
				continue
			}
			ad = NewPowerAdaptor(d.ID, p.Bus, meter)
			producer = true
			defaultPeriodMS = 5000

		default:
			continue
		}

		s.adaptors[d.ID] = ad
		entry := devEntry{adaptor: ad, caps: map[string]int{}}
		for _, ci := range ad.Capabilities() {
			id := s.nextCapID[ci.Kind]
			s.nextCapID[ci.Kind]++
			entry.caps[ci.Kind] = id
			s.capToDev[capKey{kind: ci.Kind, id: id}] = d.ID

			s.pubRet(capTopic(ci.Kind, id, "info"), ci.Info)
			s.pubRet(capTopic(ci.Kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkUp, TS: time.Now().UnixMilli()})
		}
		s.devices[d.ID] = entry

		if producer {
			ms := d.PeriodMS
			if ms <= 0 {
				ms = defaultPeriodMS
			}
			s.devPeriodMS[d.ID] = mathx.Clamp(ms, minPeriodMS, maxPeriodMS)
			s.devNextDue[d.ID] = time.Now().Add(200 * time.Millisecond)
		}
	}

	// Tidy-up: retire devices no longer in the config.
	for devID, ent := range s.devices {
		if _, ok := seen[devID]; ok {
			continue
		}
		for kind, id := range ent.caps {
			s.pubRet(capTopic(kind, id, "info"), nil)
			s.pubRet(capTopic(kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkDown, TS: time.Now().UnixMilli()})
			delete(s.capToDev, capKey{kind: kind, id: id})
		}
		delete(s.devices, devID)
		delete(s.adaptors, devID)
		delete(s.devPeriodMS, devID)
		delete(s.devNextDue, devID)
	}

	return nil
}

// -----------------------------------------------------------------------------
// Results and helpers
// -----------------------------------------------------------------------------

func (s *service) submitMeasure(devID string, prio bool) bool {
	ent, ok := s.devices[devID]
	if !ok {
		return false
	}
	return s.worker.Submit(MeasureReq{ID: devID, Adaptor: ent.adaptor, Prio: prio})
}

func (s *service) bumpDevNext(devID string, from time.Time) {
	if _, ok := s.devPeriodMS[devID]; !ok {
		return
	}
	period := time.Duration(mathx.Clamp(s.devPeriodMS[devID], minPeriodMS, maxPeriodMS)) * time.Millisecond
	s.devNextDue[devID] = from.Add(period)
}

func (s *service) handleResult(r Result) {
	ent, ok := s.devices[r.ID]
	if !ok {
		return
	}
	now := time.Now().UnixMilli()

	if r.Err != nil {
		// Failed cycle: publish no values at all, only the degraded state
		// with a stable error code. Retained values keep their last good
		// content.
		code := readErrCode(r.Err)
		for kind, id := range ent.caps {
			s.pubRet(capTopic(kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkDegraded, TS: now, Error: string(code)})
		}
		return
	}
	for _, rd := range r.Sample {
		id, ok := ent.caps[rd.Kind]
		if !ok {
			continue
		}
		s.pubRet(capTopic(rd.Kind, id, "value"), rd.Payload)
		s.pubRet(capTopic(rd.Kind, id, "state"),
			types.CapabilityStatus{Link: types.LinkUp, TS: now})
	}
}

func (s *service) publishState(level, status string, err error) {
	st := types.ServiceState{Level: level, Status: status, TS: time.Now().UnixMilli()}
	if err != nil {
		st.Status = st.Status + ": " + err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(bus.Topic{"hal", "state"}, st, true))
}

func (s *service) replyOK(req *bus.Message, extra map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	m := map[string]any{"ok": true}
	for k, v := range extra {
		m[k] = v
	}
	s.conn.Reply(req, m, false)
}

func (s *service) replyErr(req *bus.Message, code errcode.Code) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, map[string]any{"ok": false, "error": string(code)}, false)
}

func capTopic(kind string, id int, rest ...any) bus.Topic {
	base := bus.Topic{"hal", "capability", kind, id}
	return append(base, rest...)
}

func (s *service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

func (s *service) earliestDevDue() time.Time {
	var min time.Time
	for _, t := range s.devNextDue {
		if !t.IsZero() && (min.IsZero() || t.Before(min)) {
			min = t
		}
	}
	return min
}
