package hal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedAdaptor drives the worker through a split-phase cycle.
type scriptedAdaptor struct {
	mu           sync.Mutex
	collectAfter time.Duration
	triggerErr   error
	notReadyFor  int // Collects returning ErrNotReady before success
	collectErr   error
	sample       Sample

	triggers int
	collects int
}

func (a *scriptedAdaptor) ID() string              { return "scripted" }
func (a *scriptedAdaptor) Capabilities() []CapInfo { return nil }

func (a *scriptedAdaptor) Trigger(context.Context) (time.Duration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.triggers++
	return a.collectAfter, a.triggerErr
}

func (a *scriptedAdaptor) Collect(context.Context) (Sample, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collects++
	if a.notReadyFor > 0 {
		a.notReadyFor--
		return nil, ErrNotReady
	}
	if a.collectErr != nil {
		return nil, a.collectErr
	}
	return a.sample, nil
}

func (a *scriptedAdaptor) Control(string, string, any) (any, error) {
	return nil, ErrUnsupported
}

func (a *scriptedAdaptor) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.triggers, a.collects
}

func startWorker(t *testing.T) (*measureWorker, chan Result, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	sink := make(chan Result, 8)
	w := newWorker(WorkerConfig{RetryBackoff: 2 * time.Millisecond}, sink)
	w.Start(ctx)
	return w, sink, cancel
}

func waitResult(t *testing.T, sink chan Result) Result {
	t.Helper()
	select {
	case r := <-sink:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result from worker")
		return Result{}
	}
}

func TestWorker_SplitPhaseWithRetries(t *testing.T) {
	w, sink, cancel := startWorker(t)
	defer cancel()

	ad := &scriptedAdaptor{
		collectAfter: 5 * time.Millisecond,
		notReadyFor:  2,
		sample:       Sample{{Kind: "temperature", Payload: 21}},
	}
	if !w.Submit(MeasureReq{ID: "d0", Adaptor: ad}) {
		t.Fatal("Submit refused")
	}

	r := waitResult(t, sink)
	if r.ID != "d0" || r.Err != nil {
		t.Fatalf("result = %+v", r)
	}
	if len(r.Sample) != 1 || r.Sample[0].Kind != "temperature" {
		t.Fatalf("sample = %+v", r.Sample)
	}
	if _, collects := ad.counts(); collects != 3 {
		t.Fatalf("collects = %d, want 3", collects)
	}
}

func TestWorker_TriggerErrorIsTerminal(t *testing.T) {
	w, sink, cancel := startWorker(t)
	defer cancel()

	sentinel := errors.New("wiring fault")
	ad := &scriptedAdaptor{triggerErr: sentinel}
	w.Submit(MeasureReq{ID: "d0", Adaptor: ad})

	r := waitResult(t, sink)
	if r.Err != sentinel {
		t.Fatalf("err = %v", r.Err)
	}
	if _, collects := ad.counts(); collects != 0 {
		t.Fatalf("collected %d times after trigger failure", collects)
	}
}

func TestWorker_CollectErrorIsTerminal(t *testing.T) {
	w, sink, cancel := startWorker(t)
	defer cancel()

	sentinel := errors.New("bad frame")
	ad := &scriptedAdaptor{collectErr: sentinel}
	w.Submit(MeasureReq{ID: "d0", Adaptor: ad})

	r := waitResult(t, sink)
	if r.Err != sentinel {
		t.Fatalf("err = %v", r.Err)
	}
}

func TestWorker_RetriesExhausted(t *testing.T) {
	w, sink, cancel := startWorker(t)
	defer cancel()

	ad := &scriptedAdaptor{notReadyFor: 100}
	w.Submit(MeasureReq{ID: "d0", Adaptor: ad})

	r := waitResult(t, sink)
	if r.Err != ErrNotReady {
		t.Fatalf("err = %v, want ErrNotReady", r.Err)
	}
}

func TestWorker_DuplicateSubmitCoalesced(t *testing.T) {
	w, sink, cancel := startWorker(t)
	defer cancel()

	ad := &scriptedAdaptor{
		collectAfter: 20 * time.Millisecond,
		sample:       Sample{{Kind: "temperature", Payload: 21}},
	}
	w.Submit(MeasureReq{ID: "d0", Adaptor: ad})
	time.Sleep(5 * time.Millisecond)
	w.Submit(MeasureReq{ID: "d0", Adaptor: ad})

	waitResult(t, sink)
	select {
	case r := <-sink:
		t.Fatalf("second result for coalesced submit: %+v", r)
	case <-time.After(100 * time.Millisecond):
	}
	if triggers, _ := ad.counts(); triggers != 1 {
		t.Fatalf("triggers = %d, want 1", triggers)
	}
}
