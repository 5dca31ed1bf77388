package mqttbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	defaultTimeout       = 10 * time.Second
	reconnectInterval    = 5 * time.Second
	disconnectQuiesceMs  = 250
	defaultClientIDStart = "scada"
)

var ErrTimeout = errors.New("mqtt operation timed out")

// Config configures the broker connection.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string

	ClientIDPrefix string
	// WillTopic receives WillPayload retained when the connection drops unexpectedly.
	WillTopic   string
	WillPayload string
	Timeout     time.Duration
}

// MessageHandler is called on the network goroutine for every inbound message.
type MessageHandler func(topic string, payload []byte)

// Client is a paho client with reconnect, last will and connect hooks.
type Client struct {
	cfg    Config
	client mqtt.Client
	log    *log.Entry

	mu        sync.RWMutex
	onConnect []func()
	onMessage MessageHandler
}

// BrokerURL returns the tcp:// url of a broker.
func BrokerURL(host string, port int) string {
	return fmt.Sprintf("tcp://%s:%d", host, port)
}

// ClientID returns a unique client id with the given prefix.
func ClientID(prefix string) string {
	if prefix == "" {
		prefix = defaultClientIDStart
	}
	return prefix + "-" + uuid.NewString()
}

// New creates a client; nothing is sent before Connect.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{cfg: cfg}
	id := ClientID(cfg.ClientIDPrefix)
	c.log = log.WithFields(log.Fields{"Component": "mqtt", "ClientID": id})

	opts := mqtt.NewClientOptions().
		AddBroker(BrokerURL(cfg.Host, cfg.Port)).
		SetClientID(id).
		SetUsername(cfg.User).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectInterval).
		SetMaxReconnectInterval(time.Minute).
		SetConnectTimeout(cfg.Timeout).
		SetDefaultPublishHandler(c.handleMessage).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.Warnf("Connection lost: %v", err)
		}).
		SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
			c.log.Info("Reconnecting")
		})
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 1, true)
	}
	c.client = mqtt.NewClient(opts)
	return c
}

// OnConnect registers a hook run after every successful (re)connect.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnMessage sets the handler for inbound messages.
func (c *Client) OnMessage(fn MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *Client) handleConnect(mqtt.Client) {
	c.log.Infof("Connected to %s", BrokerURL(c.cfg.Host, c.cfg.Port))
	c.mu.RLock()
	hooks := append([]func(){}, c.onConnect...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Client) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	c.mu.RLock()
	fn := c.onMessage
	c.mu.RUnlock()
	if fn == nil {
		return
	}
	fn(msg.Topic(), msg.Payload())
}

// Connect starts the connection. With connect retry enabled the call returns once the first
// attempt is made; later attempts continue in the background.
func (c *Client) Connect() error {
	token := c.client.Connect()
	if !token.WaitTimeout(c.cfg.Timeout) {
		c.log.Warn("Broker not reachable yet, retrying in the background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Publish sends a message with QoS 0.
func (c *Client) Publish(topic, payload string, retain bool) error {
	return wait(c.client.Publish(topic, 0, retain, payload), c.cfg.Timeout, "publish "+topic)
}

// Subscribe subscribes to the topics with QoS 0; messages go to the OnMessage handler.
func (c *Client) Subscribe(topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	filters := make(map[string]byte, len(topics))
	for _, t := range topics {
		filters[t] = 0
	}
	return wait(c.client.SubscribeMultiple(filters, nil), c.cfg.Timeout, "subscribe")
}

// Disconnect publishes the will payload, if any, then closes the connection.
func (c *Client) Disconnect() {
	if c.cfg.WillTopic != "" && c.client.IsConnectionOpen() {
		if err := c.Publish(c.cfg.WillTopic, c.cfg.WillPayload, true); err != nil {
			c.log.Warnf("Publishing %s: %v", c.cfg.WillPayload, err)
		}
	}
	c.client.Disconnect(disconnectQuiesceMs)
	c.log.Info("Disconnected")
}

func wait(token mqtt.Token, timeout time.Duration, op string) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
