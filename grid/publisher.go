package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Publisher pushes every new grid to MQTT: a JSON summary on <prefix>/grid
// and the rendered PNG on <prefix>/map. Both are retained so late
// subscribers get the current grid.
type Publisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	retain  bool
	palette Palette
	legend  bool
	logger  *zap.Logger
}

// NewPublisher returns a publisher using prefix for its topics. An empty
// prefix falls back to "occugrid".
func NewPublisher(client mqtt.Client, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = "occugrid"
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		qos:     0,
		retain:  true,
		palette: DefaultPalette(),
		legend:  true,
		logger:  orNop(logger),
	}
}

// SetPalette changes the colors used for the published image.
func (p *Publisher) SetPalette(pal Palette, legend bool) {
	p.palette = pal
	p.legend = legend
}

// SetQoS sets the publish QoS (0, 1 or 2).
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

func (p *Publisher) GridTopic() string { return p.prefix + "/grid" }
func (p *Publisher) MapTopic() string  { return p.prefix + "/map" }

// PublishSnapshot publishes the summary and the image rendered at scale.
func (p *Publisher) PublishSnapshot(snap *Snapshot, scale int) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	summary, err := json.Marshal(snap.Summary())
	if err != nil {
		return fmt.Errorf("marshaling grid summary: %w", err)
	}
	if err := p.publish(p.GridTopic(), summary); err != nil {
		return err
	}

	rr := NewRasterRenderer(snap, scale)
	rr.Palette = p.palette
	rr.ShowLegend = p.legend
	var buf bytes.Buffer
	if err := rr.EncodePNG(&buf); err != nil {
		return fmt.Errorf("rendering map image: %w", err)
	}
	if err := p.publish(p.MapTopic(), buf.Bytes()); err != nil {
		return err
	}

	p.logger.Debug("published grid",
		zap.String("snapshot", snap.ID.String()),
		zap.Int("imageBytes", buf.Len()))
	return nil
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// HandleChange is a Controller subscriber that publishes every change.
func (p *Publisher) HandleChange(ch Change) {
	if err := p.PublishSnapshot(ch.Snapshot, ch.DisplayScale); err != nil {
		p.logger.Warn("publishing grid failed", zap.Error(err))
	}
}
