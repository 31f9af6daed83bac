package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MQTTPublisher common/mqtt.Client 满足该接口
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink 发布到 {prefix}/{tenant}/{branch}/{event}
type MQTTSink struct {
	pub    MQTTPublisher
	prefix string
	qos    byte
}

func NewMQTTSink(pub MQTTPublisher, prefix string, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

var _ Sink = (*MQTTSink)(nil)

func (s *MQTTSink) Name() string { return "mqtt" }

// Topic 事件对应的 MQTT topic
func (s *MQTTSink) Topic(ev Event) string {
	return fmt.Sprintf("%s/%s/%s", s.prefix, ev.Scope().Join("/"), ev.Name)
}

func (s *MQTTSink) Deliver(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.pub.Publish(s.Topic(ev), s.qos, false, payload)
}
