package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is the subset of MQTT the assistant needs
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

// MessageHandler receives the topic and payload of an incoming message
type MessageHandler func(topic string, payload []byte)

// Options configures the broker connection
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// OnConnectionChange is called with true after every (re)connect and
	// false when the connection drops.
	OnConnectionChange func(connected bool)
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

type pahoClient struct {
	client pahomqtt.Client
	broker string
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]subscription
}

// NewMQTTClient creates a client. Call Connect before use.
func NewMQTTClient(opts Options, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mqtt")
	notify := opts.OnConnectionChange
	if notify == nil {
		notify = func(bool) {}
	}

	po := pahomqtt.NewClientOptions().AddBroker(opts.Broker)
	if opts.ClientID != "" {
		po.SetClientID(opts.ClientID)
	} else {
		po.SetClientID(fmt.Sprintf("artemis-%d", time.Now().Unix()))
	}
	if opts.Username != "" {
		po.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		po.SetPassword(opts.Password)
	}
	po.SetCleanSession(true)
	po.SetAutoReconnect(true)
	po.SetConnectRetry(true)
	po.SetConnectRetryInterval(5 * time.Second)
	po.SetMaxReconnectInterval(30 * time.Second)

	p := &pahoClient{broker: opts.Broker, logger: logger, subs: make(map[string]subscription)}
	// Clean sessions drop subscriptions, so every connect replays them.
	po.OnConnect = func(pahomqtt.Client) {
		logger.Info("Connected to MQTT broker", "broker", opts.Broker)
		p.resubscribe()
		notify(true)
	}
	po.OnConnectionLost = func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
		notify(false)
	}
	po.OnReconnecting = func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		logger.Info("MQTT reconnecting")
	}

	p.client = pahomqtt.NewClient(po)
	return p
}

func (p *pahoClient) Connect(ctx context.Context) error {
	p.logger.Info("Connecting to MQTT broker", "broker", p.broker)
	token := p.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connect to MQTT broker: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connect to MQTT broker: %w", ctx.Err())
	}
}

func (p *pahoClient) Disconnect() {
	p.client.Disconnect(250)
}

// Subscribe registers handler for topic. While disconnected the
// subscription is only recorded and takes effect on the next connect.
func (p *pahoClient) Subscribe(topic string, qos byte, handler MessageHandler) error {
	p.mu.Lock()
	p.subs[topic] = subscription{qos: qos, handler: handler}
	p.mu.Unlock()
	if !p.client.IsConnected() {
		p.logger.Info("Subscription deferred until connected", "topic", topic)
		return nil
	}
	return p.subscribe(topic, qos, handler)
}

func (p *pahoClient) resubscribe() {
	p.mu.Lock()
	subs := make(map[string]subscription, len(p.subs))
	for topic, sub := range p.subs {
		subs[topic] = sub
	}
	p.mu.Unlock()
	for topic, sub := range subs {
		if err := p.subscribe(topic, sub.qos, sub.handler); err != nil {
			p.logger.Error("Resubscribe failed", "topic", topic, "error", err)
		}
	}
}

func (p *pahoClient) subscribe(topic string, qos byte, handler MessageHandler) error {
	token := p.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	p.logger.Info("Subscribed", "topic", topic, "qos", qos)
	return nil
}

func (p *pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("Published message", "topic", topic, "size", len(payload))
	return nil
}

func (p *pahoClient) IsConnected() bool {
	return p.client.IsConnected()
}
