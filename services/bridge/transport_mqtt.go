// bridge/transport_mqtt.go
//go:build !rp2040 && !rp2350

package bridge

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func init() {
	RegisterTransport("mqtt", newMQTTTransport)
}

type mqttTransport struct {
	cfg MQTTConfig
}

func newMQTTTransport(cfg TransportConfig) (Transport, error) {
	if cfg.MQTT == nil || cfg.MQTT.BrokerURL == "" {
		return nil, errors.New("mqtt transport requires a broker url")
	}
	return &mqttTransport{cfg: *cfg.MQTT}, nil
}

func (m *mqttTransport) Open(ctx context.Context) (Link, error) {
	clientID := m.cfg.ClientID
	if clientID == "" {
		clientID = "wearcode-bridge"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.BrokerURL).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(false) // the bridge owns reconnect policy

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	prefix := m.cfg.TopicPrefix
	if prefix == "" {
		prefix = "wearable"
	}
	return &mqttLink{client: client, prefix: prefix}, nil
}

func (m *mqttTransport) String() string { return "mqtt" }

type mqttLink struct {
	client mqtt.Client
	prefix string
}

func (l *mqttLink) Send(topic string, payload []byte) error {
	token := l.client.Publish(l.prefix+"/"+topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (l *mqttLink) Ping() error {
	if !l.client.IsConnectionOpen() {
		return errors.New("bridge: mqtt connection lost")
	}
	return nil
}

func (l *mqttLink) Close() error {
	l.client.Disconnect(250)
	return nil
}
