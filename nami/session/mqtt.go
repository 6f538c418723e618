package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	mqtt "github.com/soypat/natiu-mqtt"
)

const (
	// DefaultContentTopic is subscribed to when the endpoint has no path.
	DefaultContentTopic = "nami/content"
	// DefaultIdentifyTopic receives the identify frame.
	DefaultIdentifyTopic = "nami/identify"

	mqttDecodeBuf = 4096
)

var pubFlags, _ = mqtt.NewPublishFlags(mqtt.QoS0, false, false)

// MQTT is a Transport over an MQTT broker: content arrives on a subscribed
// topic and outbound frames are published to the identify topic.
type MQTT struct {
	ID            string
	Username      string // MQTT broker username (optional)
	Password      string // MQTT broker password (optional, requires Username)
	IdentifyTopic string
	QueueDepth    int

	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
	logger *slog.Logger

	client *mqtt.Client
	conn   net.Conn
	events chan Event
	done   chan struct{}
	pktID  uint16
}

// NewMQTT returns an MQTT transport with client identifier id. netDial,
// when not nil, replaces the default TCP dialer.
func NewMQTT(id string, netDial func(ctx context.Context, network, addr string) (net.Conn, error), logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if netDial == nil {
		var d net.Dialer
		netDial = d.DialContext
	}
	return &MQTT{
		ID:            id,
		IdentifyTopic: DefaultIdentifyTopic,
		QueueDepth:    defaultQueueDepth,
		dial:          netDial,
		logger:        logger,
	}
}

func (m *MQTT) Name() string { return "MQTT" }

// Dial connects to the broker, completes the MQTT CONNECT exchange before
// ctx is done and subscribes to the endpoint's topic.
func (m *MQTT) Dial(ctx context.Context, ep Endpoint) error {
	if m.conn != nil {
		m.Close()
	}
	topic := ep.Topic()
	if topic == "" {
		topic = DefaultContentTopic
	}

	conn, err := m.dial(ctx, "tcp", ep.Addr())
	if err != nil {
		return errors.New("tcp dial " + ep.Addr() + ": " + err.Error())
	}

	depth := m.QueueDepth
	if depth < 1 {
		depth = 1
	}
	events := make(chan Event, depth)
	done := make(chan struct{})

	client := mqtt.NewClient(mqtt.ClientConfig{
		Decoder: mqtt.DecoderNoAlloc{UserBuffer: make([]byte, mqttDecodeBuf)},
		OnPub: func(pubHead mqtt.Header, varPub mqtt.VariablesPublish, r io.Reader) error {
			data, err := io.ReadAll(io.LimitReader(r, MaxFrame+1))
			if err != nil {
				return err
			}
			if len(data) > MaxFrame {
				io.Copy(io.Discard, r)
				m.logger.Warn("mqtt:frame-too-large", slog.String("topic", string(varPub.TopicName)))
				return nil
			}
			ev := Event{Kind: EventFrame, Frame: Frame{Data: data}}
			if !queueEvent(events, done, ev) {
				m.logger.Warn("mqtt:queue-full, dropping frame", slog.Int("len", len(data)))
			}
			return nil
		},
	})

	var varconn mqtt.VariablesConnect
	varconn.SetDefaultMQTT([]byte(m.ID))
	if m.Username != "" {
		varconn.Username = []byte(m.Username)
		if m.Password != "" {
			varconn.Password = []byte(m.Password)
		}
	}

	closeConn := func(reason string) {
		m.logger.Error("mqtt:closing", slog.String("reason", reason))
		conn.Close()
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	m.logger.Info("mqtt:start-connecting", slog.String("addr", ep.Addr()))
	if err := client.StartConnect(conn, &varconn); err != nil {
		closeConn("connect failed")
		return errors.New("mqtt connect: " + err.Error())
	}
	for !client.IsConnected() {
		if ctx.Err() != nil {
			closeConn("connect timed out")
			return ctx.Err()
		}
		if err := client.HandleNext(); err != nil {
			if ctx.Err() != nil {
				closeConn("connect timed out")
				return ctx.Err()
			}
			closeConn("handle next failed")
			return errors.New("mqtt connect: " + err.Error())
		}
	}

	m.pktID++
	err = client.StartSubscribe(mqtt.VariablesSubscribe{
		PacketIdentifier: m.pktID,
		TopicFilters: []mqtt.SubscribeRequest{
			{TopicFilter: []byte(topic), QoS: mqtt.QoS0},
		},
	})
	if err != nil {
		closeConn("subscribe failed")
		return errors.New("mqtt subscribe " + topic + ": " + err.Error())
	}
	conn.SetDeadline(time.Time{})

	m.client, m.conn, m.events, m.done = client, conn, events, done
	go m.readLoop(client, events, done)

	m.logger.Info("mqtt:connected", slog.String("topic", topic))
	return nil
}

func (m *MQTT) readLoop(client *mqtt.Client, events chan<- Event, done <-chan struct{}) {
	for {
		err := client.HandleNext()
		if err == nil && client.IsConnected() {
			continue
		}
		if err == nil {
			err = client.Err()
		}
		kind := EventDisconnected
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			kind = EventError
		}
		queueEvent(events, done, Event{Kind: kind, Err: err})
		return
	}
}

// Send publishes f to the identify topic.
func (m *MQTT) Send(f Frame) error {
	if m.client == nil {
		return net.ErrClosed
	}
	m.pktID++
	m.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return m.client.PublishPayload(pubFlags, mqtt.VariablesPublish{
		TopicName:        []byte(m.IdentifyTopic),
		PacketIdentifier: m.pktID,
	}, f.Data)
}

// Ping sends a PINGREQ.
func (m *MQTT) Ping() error {
	if m.client == nil {
		return net.ErrClosed
	}
	m.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return m.client.StartPing()
}

func (m *MQTT) Poll() (Event, bool) { return pollEvent(m.events) }

func (m *MQTT) Close() error {
	if m.conn == nil {
		return nil
	}
	close(m.done)
	// Unblock the reader, which holds the client's receive lock while it
	// waits in HandleNext.
	m.conn.SetDeadline(time.Now())
	m.client.Disconnect(errors.New("session closed"))
	err := m.conn.Close()
	m.client, m.conn, m.events, m.done = nil, nil, nil, nil
	return err
}
