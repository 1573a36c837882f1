package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Command topic suffixes, relative to the configured prefix
const (
	TopicViewportSet   = "viewport/set"
	TopicZoomSet       = "zoom/set"
	TopicMarkersAdd    = "markers/add"
	TopicMarkersRemove = "markers/remove"
	TopicMarkersReset  = "markers/reset"
	TopicTimelineSet   = "timeline/set"
)

// MQTTClient feeds view state changes received over MQTT into a Tracker
type MQTTClient struct {
	client      mqtt.Client
	tracker     *Tracker
	topicPrefix string
	logger      *zap.Logger
	isConnected bool
	done        chan struct{}
	closeOnce   sync.Once
	mu          sync.RWMutex
}

// viewportPayload is the body of a viewport/set message
type viewportPayload struct {
	TopLeft     Coordinate `json:"topLeft"`
	BottomRight Coordinate `json:"bottomRight"`
	Zoom        *int       `json:"zoom,omitempty"`
}

// InitMQTT connects to the configured broker and subscribes to the command
// topics. If no broker is configured MQTT is disabled and this returns nil.
func InitMQTT(config *Config, tracker *Tracker, logger *zap.Logger) (*MQTTClient, error) {
	if config == nil || config.MQTT.Broker == "" {
		if logger != nil {
			logger.Info("MQTT disabled: no broker configured")
		}
		return nil, nil
	}
	if tracker == nil {
		return nil, fmt.Errorf("MQTT enabled but no tracker provided")
	}

	client := newMQTTClient(nil, config, tracker, logger)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTT.Broker)
	opts.SetClientID(config.MQTT.ClientID)
	if config.MQTT.Username != "" {
		opts.SetUsername(config.MQTT.Username)
		opts.SetPassword(config.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(true) // view updates must apply in arrival order

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// newMQTTClient builds the client without connecting. A non-nil mqtt.Client
// is used as is, which lets tests supply a mock.
func newMQTTClient(c mqtt.Client, config *Config, tracker *Tracker, logger *zap.Logger) *MQTTClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := "photocluster"
	if config != nil && config.MQTT.TopicPrefix != "" {
		prefix = config.MQTT.TopicPrefix
	}
	return &MQTTClient{
		client:      c,
		tracker:     tracker,
		topicPrefix: prefix,
		logger:      logger.With(zap.String("component", "mqtt")),
		done:        make(chan struct{}),
	}
}

// topic joins the prefix and a suffix
func (c *MQTTClient) topic(suffix string) string {
	return c.topicPrefix + "/" + suffix
}

// connectWithRetry attempts to connect to the MQTT broker with exponential
// backoff until it succeeds or the client is disconnected.
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
		case <-c.done:
			return
		case <-time.After(retryDelay):
		}
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// commandHandlers maps topic suffixes to their handlers
func (c *MQTTClient) commandHandlers() map[string]mqtt.MessageHandler {
	return map[string]mqtt.MessageHandler{
		TopicViewportSet:   c.createHandler(TopicViewportSet, c.handleViewport),
		TopicZoomSet:       c.createHandler(TopicZoomSet, c.handleZoom),
		TopicMarkersAdd:    c.createHandler(TopicMarkersAdd, c.handleMarkersAdd),
		TopicMarkersRemove: c.createHandler(TopicMarkersRemove, c.handleMarkersRemove),
		TopicMarkersReset:  c.createHandler(TopicMarkersReset, c.handleMarkersReset),
		TopicTimelineSet:   c.createHandler(TopicTimelineSet, c.handleTimeline),
	}
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.logger.Info("MQTT connected, subscribing to command topics")
	c.setConnected(true)

	for suffix, handler := range c.commandHandlers() {
		topic := c.topic(suffix)
		token := client.Subscribe(topic, 1, handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			c.logger.Error("subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
			continue
		}
		c.logger.Debug("subscribed", zap.String("topic", topic))
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Warn("MQTT connection interrupted, auto-reconnect will retry", zap.Error(err))
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	c.logger.Info("MQTT reconnecting")
}

// createHandler wraps a payload handler with logging
func (c *MQTTClient) createHandler(name string, handle func(ctx context.Context, payload []byte) error) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		c.logger.Debug("command received",
			zap.String("command", name),
			zap.String("topic", msg.Topic()),
			zap.Int("bytes", len(payload)))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := handle(ctx, payload); err != nil {
			c.logger.Warn("command failed", zap.String("command", name), zap.Error(err))
		}
	}
}

func (c *MQTTClient) handleViewport(ctx context.Context, payload []byte) error {
	var p viewportPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decoding viewport: %w", err)
	}
	return c.tracker.SetView(ctx, NewViewport(p.TopLeft, p.BottomRight), p.Zoom)
}

// handleZoom accepts a bare number or {"zoom": n}
func (c *MQTTClient) handleZoom(ctx context.Context, payload []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if zoom, err := strconv.Atoi(string(trimmed)); err == nil {
		return c.tracker.SetZoom(ctx, zoom)
	}

	var p struct {
		Zoom *int `json:"zoom"`
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return fmt.Errorf("decoding zoom: %w", err)
	}
	if p.Zoom == nil {
		return fmt.Errorf("zoom missing from payload")
	}
	return c.tracker.SetZoom(ctx, *p.Zoom)
}

func (c *MQTTClient) handleMarkersAdd(ctx context.Context, payload []byte) error {
	markers, err := DecodeMarkers(bytes.NewReader(payload))
	if err != nil {
		return err
	}
	return c.tracker.Insert(ctx, markers...)
}

func (c *MQTTClient) handleMarkersRemove(ctx context.Context, payload []byte) error {
	var ids []int
	if err := json.Unmarshal(payload, &ids); err != nil {
		return fmt.Errorf("decoding marker ids: %w", err)
	}
	return c.tracker.Remove(ctx, ids...)
}

func (c *MQTTClient) handleMarkersReset(ctx context.Context, _ []byte) error {
	return c.tracker.Reset(ctx)
}

// handleTimeline accepts {"min": a, "max": b}; null or an empty payload clears it
func (c *MQTTClient) handleTimeline(ctx context.Context, payload []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return c.tracker.SetTimeline(ctx, nil)
	}

	var r YearRange
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return fmt.Errorf("decoding timeline: %w", err)
	}
	return c.tracker.SetTimeline(ctx, &r)
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect stops any pending retry and closes the connection
func (c *MQTTClient) Disconnect() {
	c.closeOnce.Do(func() { close(c.done) })
	if c.client != nil && c.client.IsConnected() {
		c.logger.Info("disconnecting from MQTT broker")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// TopicPrefix returns the prefix used for command and result topics
func (c *MQTTClient) TopicPrefix() string {
	return c.topicPrefix
}
