package main

import (
	"context"
	"time"

	"sensornode-go/bus"
	"sensornode-go/services/bridge"
	"sensornode-go/services/config"
	"sensornode-go/services/hal"
	"sensornode-go/services/hal/platform"
	"sensornode-go/services/heartbeat"
)

const deviceID = "node"

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] boot, device:", deviceID)

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, deviceID)

	b := bus.NewBus(8)

	println("[main] starting hal …")
	go hal.Run(ctx, b.NewConnection("hal"),
		platform.DefaultPins(), platform.NewWallClock(), platform.DefaultMeters())

	println("[main] starting bridge …")
	go bridge.Start(ctx, b.NewConnection("bridge"))

	println("[main] starting heartbeat …")
	var hb heartbeat.Service
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	// Config last: every service above is already subscribed, and the
	// retained publication covers any that are slow to start.
	println("[main] publishing embedded config …")
	config.NewConfigService().Start(ctx, b.NewConnection("config"))

	// Diagnostics: echo capability traffic to the console.
	mon := b.NewConnection("monitor").Subscribe(bus.T("hal", "capability", "#"))
	for m := range mon.Channel() {
		printTopic("[monitor] <-", m.Topic)
	}
}

func printTopic(prefix string, t bus.Topic) {
	print(prefix)
	print(" ")
	for i := 0; i < t.Len(); i++ {
		if i > 0 {
			print("/")
		}
		switch v := t.At(i).(type) {
		case string:
			print(v)
		case int:
			print(v)
		default:
			print("?")
		}
	}
	println()
}
