package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when publishing without a live connection
var ErrNotConnected = errors.New("MQTT client not connected")

// Result topic suffixes, relative to the configured prefix
const (
	TopicNodes     = "nodes"
	TopicDecluster = "decluster"
)

// NodesMessage is the payload published on the nodes topic
type NodesMessage struct {
	PassID    string        `json:"passId"`
	Zoom      int           `json:"zoom"`
	Gated     bool          `json:"gated,omitempty"`
	Nodes     []NodeSummary `json:"nodes"`
	Timestamp int64         `json:"timestamp"`
}

// DeclusterMessage is the payload published on the decluster topic
type DeclusterMessage struct {
	PassID    string         `json:"passId"`
	Hints     DeclusterHints `json:"hints"`
	Timestamp int64          `json:"timestamp"`
}

// Publisher publishes clustering results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	logger        *zap.Logger
	lastPassID    string
	mu            sync.RWMutex
}

// NewPublisher creates a result publisher under prefix. If client is nil,
// publishing is disabled.
func NewPublisher(client mqtt.Client, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = "photocluster"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // each pass supersedes the previous one
		retain:        true, // late subscribers get the current layout
		logger:        logger.With(zap.String("component", "publisher")),
	}
}

// PublishResult publishes the nodes and the decluster hints of a pass
func (p *Publisher) PublishResult(r *Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}
	if r == nil {
		return fmt.Errorf("nil result")
	}

	now := time.Now().Unix()
	nodes := NodesMessage{
		PassID:    r.PassID,
		Zoom:      r.Zoom,
		Gated:     r.Gated,
		Nodes:     Summarize(r.Nodes, r.Hints),
		Timestamp: now,
	}
	if err := p.publishJSON(TopicNodes, nodes); err != nil {
		return err
	}

	hints := DeclusterMessage{
		PassID:    r.PassID,
		Hints:     r.Hints,
		Timestamp: now,
	}
	if err := p.publishJSON(TopicDecluster, hints); err != nil {
		return err
	}

	p.mu.Lock()
	p.lastPassID = r.PassID
	p.mu.Unlock()

	p.logger.Debug("published result",
		zap.String("pass_id", r.PassID),
		zap.Int("nodes", len(nodes.Nodes)))
	return nil
}

// publishJSON marshals v and publishes it to prefix/suffix
func (p *Publisher) publishJSON(suffix string, v any) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, suffix)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", suffix, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastPassID returns the id of the last published pass
func (p *Publisher) LastPassID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastPassID
}
