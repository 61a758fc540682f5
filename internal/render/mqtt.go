package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weatherlookup/internal/observability"
	"github.com/kjstillabower/weatherlookup/internal/service"
)

// DefaultTopicPrefix roots every published topic.
const DefaultTopicPrefix = "weatherlookup"

// ErrPublishTimeout is logged when the broker does not acknowledge in time.
var ErrPublishTimeout = errors.New("mqtt publish timed out")

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	PublishTimeout time.Duration
}

// MQTT publishes emissions as retained JSON messages, weather to
// {prefix}/weather and errors to {prefix}/error, so late subscribers always see
// the latest state.
type MQTT struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	timeout time.Duration
	logger  *zap.Logger
}

// NewMQTT builds the paho client without connecting.
func NewMQTT(cfg MQTTConfig, logger *zap.Logger) *MQTT {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "weatherlookup-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})
	return NewMQTTWithClient(mqtt.NewClient(opts), cfg.TopicPrefix, cfg.QoS, cfg.PublishTimeout, logger)
}

// NewMQTTWithClient wraps an existing client.
func NewMQTTWithClient(client mqtt.Client, prefix string, qos byte, timeout time.Duration, logger *zap.Logger) *MQTT {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTT{
		client:  client,
		prefix:  strings.TrimRight(prefix, "/"),
		qos:     qos,
		timeout: timeout,
		logger:  logger,
	}
}

// Connect waits for the initial broker connection or ctx.
func (m *MQTT) Connect(ctx context.Context) error {
	if m.client.IsConnected() {
		return nil
	}
	token := m.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// WeatherTopic is where weather emissions are published.
func (m *MQTT) WeatherTopic() string { return m.prefix + "/weather" }

// ErrorTopic is where error emissions are published.
func (m *MQTT) ErrorTopic() string { return m.prefix + "/error" }

func (m *MQTT) RenderWeather(e service.Emission) {
	m.publish(m.WeatherTopic(), Envelope{Type: TypeWeather, Weather: &e})
}

func (m *MQTT) RenderError(e service.ErrorEmission) {
	m.publish(m.ErrorTopic(), Envelope{Type: TypeError, Error: &e})
}

func (m *MQTT) publish(topic string, env Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		observability.RenderPublishTotal.WithLabelValues("mqtt", "error").Inc()
		m.logger.Error("encode mqtt payload", zap.Error(err))
		return
	}
	token := m.client.Publish(topic, m.qos, true, payload)
	if !token.WaitTimeout(m.timeout) {
		err = ErrPublishTimeout
	} else {
		err = token.Error()
	}
	if err != nil {
		observability.RenderPublishTotal.WithLabelValues("mqtt", "error").Inc()
		m.logger.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	observability.RenderPublishTotal.WithLabelValues("mqtt", "ok").Inc()
	m.logger.Debug("mqtt published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
}

// Flush disconnects from the broker. In-flight work gets up to a second, less
// when ctx's deadline is sooner.
func (m *MQTT) Flush(ctx context.Context) error {
	quiesce := uint(1000)
	if dl, ok := ctx.Deadline(); ok {
		if ms := time.Until(dl).Milliseconds(); ms < int64(quiesce) {
			quiesce = uint(max(ms, 0))
		}
	}
	if m.client.IsConnectionOpen() {
		m.client.Disconnect(quiesce)
	}
	return nil
}
