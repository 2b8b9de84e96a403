// Command gateway runs on the host side of the serial link. It mirrors the
// node's capability tree to an MQTT broker, exposes the latest readings as
// Prometheus metrics, and relays MQTT command topics back down to the node.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"sensornode-go/services/bridge"
)

func main() {
	var (
		linkSpec    string
		broker      string
		clientID    string
		prefix      string
		metricsAddr string
		level       string
	)
	pflag.StringVarP(&linkSpec, "link", "l", "/dev/ttyACM0", "Serial device path, or tcp:host:port")
	pflag.StringVarP(&broker, "broker", "b", "tcp://localhost:1883", "MQTT broker URL (empty disables MQTT)")
	pflag.StringVar(&clientID, "client-id", "sensor-gateway", "MQTT client ID")
	pflag.StringVar(&prefix, "topic-prefix", "sensors/node", "MQTT topic prefix for mirrored messages")
	pflag.StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address")
	pflag.StringVar(&level, "level", "info", "Log level")
	pflag.Parse()

	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Fatal("failed to parse log level", "level", level, "err", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := newMetrics(prometheus.DefaultRegisterer)
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Info("serving metrics", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			log.Error("metrics server stopped", "err", err)
		}
	}()

	downlink := make(chan bridge.WireMsg, 16)

	var client mqtt.Client
	if broker != "" {
		opts := mqtt.NewClientOptions()
		opts.AddBroker(broker)
		opts.SetClientID(clientID)
		opts.SetAutoReconnect(true)
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Fatal("connecting to MQTT broker", "broker", broker, "err", token.Error())
		}
		log.Info("connected to MQTT broker", "broker", broker)
		defer client.Disconnect(250)

		cmdTopic := prefix + "/cmd/#"
		token := client.Subscribe(cmdTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			w, ok := commandToWire(prefix, msg.Topic(), msg.Payload())
			if !ok {
				log.Warn("dropping malformed command", "topic", msg.Topic())
				return
			}
			select {
			case downlink <- w:
			default:
				log.Warn("downlink queue full, dropping command", "topic", msg.Topic())
			}
		})
		if token.Wait() && token.Error() != nil {
			log.Fatal("subscribing to command topic", "topic", cmdTopic, "err", token.Error())
		}
		log.Info("subscribed to command topic", "topic", cmdTopic)
	}

	g := &gateway{
		prefix:   prefix,
		client:   client,
		metrics:  m,
		downlink: downlink,
	}

	for ctx.Err() == nil {
		if err := g.runSession(ctx, linkSpec); err != nil {
			log.Error("link session ended", "err", err)
		}
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
	}
	log.Info("shutting down")
}

type gateway struct {
	prefix   string
	client   mqtt.Client
	metrics  *metrics
	downlink chan bridge.WireMsg
}

func (g *gateway) runSession(ctx context.Context, linkSpec string) error {
	link, err := dialLink(linkSpec)
	if err != nil {
		return err
	}
	defer link.Close()
	log.Info("link open", "link", linkSpec)

	rd := bridge.NewFramedReader(link)
	wr := bridge.NewFramedWriter(link)

	frames := make(chan bridge.Frame, 16)
	errCh := make(chan error, 1)
	go func() {
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = wr.WriteFrame(bridge.Frame{Type: bridge.FrameClose})
			return nil

		case err := <-errCh:
			return err

		case w := <-g.downlink:
			b, err := json.Marshal(w)
			if err != nil {
				continue
			}
			if err := wr.WriteFrame(bridge.Frame{Type: bridge.FramePub, Payload: b}); err != nil {
				return err
			}

		case f := <-frames:
			switch f.Type {
			case bridge.FramePing:
				if err := wr.WriteFrame(bridge.Frame{Type: bridge.FramePong}); err != nil {
					return err
				}
			case bridge.FramePub:
				g.handleUplink(f.Payload)
			case bridge.FrameClose:
				return nil
			}
		}
	}
}

func (g *gateway) handleUplink(payload []byte) {
	var w bridge.WireMsg
	if err := json.Unmarshal(payload, &w); err != nil {
		log.Warn("undecodable uplink frame", "err", err)
		return
	}
	path := topicPath(w.Topic)
	log.Debug("uplink", "topic", path)

	g.metrics.observe(w)

	if g.client != nil {
		b, err := json.Marshal(w.Payload)
		if err != nil {
			return
		}
		g.client.Publish(g.prefix+"/"+path, 0, w.Retained, b)
	}
}

// topicPath renders a wire topic as a slash path, e.g.
// hal/capability/temperature/0/value.
func topicPath(topic []any) string {
	parts := make([]string, 0, len(topic))
	for _, tok := range topic {
		switch v := tok.(type) {
		case string:
			parts = append(parts, v)
		case float64:
			parts = append(parts, strconv.Itoa(int(v)))
		case int:
			parts = append(parts, strconv.Itoa(v))
		default:
			parts = append(parts, "?")
		}
	}
	return strings.Join(parts, "/")
}

// commandToWire maps <prefix>/cmd/<path...> plus a JSON payload to a wire
// message addressed at the node. Numeric path segments become ints so they
// match the node's topic tokens.
func commandToWire(prefix, topic string, payload []byte) (bridge.WireMsg, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/cmd/")
	if !ok || rest == "" {
		return bridge.WireMsg{}, false
	}
	segs := strings.Split(rest, "/")
	wt := make([]any, len(segs))
	for i, s := range segs {
		if n, err := strconv.Atoi(s); err == nil {
			wt[i] = n
		} else {
			wt[i] = s
		}
	}
	var p any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return bridge.WireMsg{}, false
		}
	}
	return bridge.WireMsg{Topic: wt, Payload: p}, true
}
