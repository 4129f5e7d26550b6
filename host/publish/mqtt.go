// Package publish republishes sensor readings to an MQTT broker.
package publish

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	logger "github.com/sirupsen/logrus"

	"fsrsense/host/config"
	"fsrsense/host/link"
)

type readingMessage struct {
	Seq        uint32  `json:"seq"`
	MilliVolts []int16 `json:"millivolts"`
	Time       string  `json:"time"`
}

type statusMessage struct {
	State        string `json:"state"`
	Samples      uint32 `json:"samples"`
	Calibrations uint32 `json:"calibrations"`
	Dropped      uint32 `json:"dropped"`
	Overwritten  uint32 `json:"overwritten"`
	Spurious     uint32 `json:"spurious"`
}

type faultMessage struct {
	Reason string `json:"reason"`
	Time   string `json:"time"`
}

// MQTTPublisher is a link.Subscriber that publishes readings to
// <topic>, status to <topic>/status and faults to <topic>/fault.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration

	failed atomic.Uint32
}

var _ link.Subscriber = (*MQTTPublisher)(nil)

// Connect connects to the configured broker.
func Connect(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warnf("MQTT connection lost [%v]", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("connect to %s: timeout after %v", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	logger.Infof("Connected to MQTT broker %s", cfg.Broker)
	return NewMQTTPublisher(client, cfg), nil
}

// NewMQTTPublisher publishes through an already connected client.
func NewMQTTPublisher(client mqtt.Client, cfg config.MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		retain:  cfg.Retain,
		timeout: cfg.Timeout,
	}
}

func (p *MQTTPublisher) OnReading(r link.Reading) {
	p.publish(p.topic, readingMessage{
		Seq:        r.Seq,
		MilliVolts: r.MilliVolts,
		Time:       r.Received.UTC().Format(time.RFC3339Nano),
	})
}

func (p *MQTTPublisher) OnStatus(st link.Status) {
	p.publish(p.topic+"/status", statusMessage{
		State:        st.State.String(),
		Samples:      st.Samples,
		Calibrations: st.Calibrations,
		Dropped:      st.Dropped,
		Overwritten:  st.Overwritten,
		Spurious:     st.Spurious,
	})
}

func (p *MQTTPublisher) OnFault(f link.Fault) {
	p.publish(p.topic+"/fault", faultMessage{
		Reason: f.Reason,
		Time:   f.Received.UTC().Format(time.RFC3339Nano),
	})
}

// Failed counts publishes the broker did not confirm.
func (p *MQTTPublisher) Failed() uint32 {
	return p.failed.Load()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// publish runs on the link's read goroutine, so it never waits for the
// broker there.
func (p *MQTTPublisher) publish(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("JSON error [%v]", err)
		return
	}
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	go func() {
		if !token.WaitTimeout(p.timeout) {
			p.failed.Add(1)
			logger.Warnf("MQTT publish to %s timed out", topic)
			return
		}
		if err := token.Error(); err != nil {
			p.failed.Add(1)
			logger.Warnf("MQTT publish to %s failed [%v]", topic, err)
		}
	}()
}
