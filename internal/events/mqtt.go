package events

import (
	"encoding/json"
	"fmt"
	"time"

	"sprout/internal/logs"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// MQTTPublisher — paho-backed Publisher. Publish is best-effort: a broker
// outage must never fail the gateway operation that emitted the event.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
}

func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logs.Logger.Infof("mqtt connected: %s", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logs.Logger.Warnf("mqtt connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout (%s)", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "sprout"
	}
	return &MQTTPublisher{client: client, prefix: prefix}, nil
}

func (p *MQTTPublisher) Publish(topic string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logs.Logger.Errorf("mqtt marshal %s: %v", topic, err)
		return
	}
	full := p.prefix + "/" + topic
	token := p.client.Publish(full, 1, false, body)
	go func() {
		if token.Wait() && token.Error() != nil {
			logs.Logger.Warnf("mqtt publish %s: %v", full, token.Error())
		}
	}()
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
