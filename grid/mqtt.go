package grid

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ObservationHandler receives decoded observation batches. err is set when a
// payload could not be decoded; store is nil in that case.
type ObservationHandler func(store Store, err error)

// MQTTClient subscribes to the observation topic and hands decoded batches
// to an ObservationHandler.
type MQTTClient struct {
	client      mqtt.Client
	cfg         MQTTConfig
	handler     ObservationHandler
	logger      *zap.Logger
	isConnected bool
	mu          sync.RWMutex
	done        chan struct{}
	closeOnce   sync.Once
}

// InitMQTT connects to cfg.Broker in the background and subscribes to
// cfg.ObservationTopic. It returns nil, nil when no broker is configured.
func InitMQTT(cfg MQTTConfig, handler ObservationHandler, logger *zap.Logger) (*MQTTClient, error) {
	logger = orNop(logger)
	if !cfg.Enabled() {
		logger.Info("MQTT disabled: no broker configured")
		return nil, nil
	}
	if cfg.ObservationTopic == "" {
		return nil, fmt.Errorf("MQTT enabled but no observation topic configured")
	}

	c := &MQTTClient{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(zap.String("broker", cfg.Broker)),
		done:    make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// Observation order is replay order.
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.logger.Info("MQTT reconnecting")
	})

	c.client = mqtt.NewClient(opts)
	go c.connectWithRetry()
	return c, nil
}

// connectWithRetry connects with exponential backoff until it succeeds or
// the client is disconnected.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		c.logger.Info("connecting to MQTT broker")
		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				c.logger.Info("connected to MQTT broker")
				c.setConnected(true)
				return
			}
			c.logger.Warn("MQTT connection failed", zap.Error(token.Error()))
		} else {
			c.logger.Warn("MQTT connection timeout")
		}

		c.logger.Info("retrying MQTT connection", zap.Duration("delay", retryDelay))
		select {
		case <-time.After(retryDelay):
		case <-c.done:
			return
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	topic := c.cfg.ObservationTopic
	token := client.Subscribe(topic, 1, c.handleMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		c.logger.Error("subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
		return
	}
	c.logger.Info("subscribed", zap.String("topic", topic))
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("MQTT connection interrupted, auto-reconnect will retry", zap.Error(err))
	c.setConnected(false)
}

func (c *MQTTClient) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	store, err := DecodeObservations(payload)
	if err != nil {
		c.logger.Warn("dropping observation payload",
			zap.String("topic", msg.Topic()),
			zap.Int("bytes", len(payload)),
			zap.Error(err))
	} else {
		c.logger.Debug("observations received",
			zap.String("topic", msg.Topic()),
			zap.Int("count", len(store)))
	}
	if c.handler != nil {
		c.handler(store, err)
	}
}

// IsConnected reports the last known connection state.
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops any pending retry and closes the connection.
func (c *MQTTClient) Disconnect() {
	c.closeOnce.Do(func() { close(c.done) })
	if c.client != nil && c.client.IsConnected() {
		c.logger.Info("disconnecting from MQTT broker")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

// Client returns the underlying paho client for publishing.
func (c *MQTTClient) Client() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wires an MQTTClient around an existing client.
func newMQTTClientWithMock(client mqtt.Client, cfg MQTTConfig, handler ObservationHandler) *MQTTClient {
	return &MQTTClient{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  zap.NewNop(),
		done:    make(chan struct{}),
	}
}
