// Package publish forwards sensor updates to an MQTT broker as JSON.
package publish

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/luki/dhtmon/internal/poller"
)

// Message is the payload published for every update.
type Message struct {
	Session     string    `json:"session"`
	SensorID    string    `json:"sensor_id"`
	Name        string    `json:"name"`
	Model       string    `json:"model"`
	Timestamp   time.Time `json:"timestamp"`
	Valid       bool      `json:"valid"`
	RetryCount  int       `json:"retry_count"`
	TempC       float64   `json:"temp_c"`
	Humidity    float64   `json:"humidity"`
	Attempts    uint64    `json:"attempts"`
	Successes   uint64    `json:"successes"`
	Percent     string    `json:"percent_success"`
	AvgRetries  int       `json:"average_retries"`
	SuccessRate string    `json:"success_rate"`
	LastUpdated string    `json:"last_updated"`
}

// NewMessage builds the payload for an update. TempC and Humidity carry the
// displayed values, so a sentinel policy publishes -1 after a failed read.
func NewMessage(u poller.Update) Message {
	s := u.Snapshot
	return Message{
		Session:     u.Session,
		SensorID:    u.Sensor,
		Name:        u.Name,
		Model:       string(u.Model),
		Timestamp:   s.At,
		Valid:       u.Reading.Valid,
		RetryCount:  u.Reading.RetryCount,
		TempC:       s.Temperature,
		Humidity:    s.Humidity,
		Attempts:    s.TotalAttempts,
		Successes:   s.TotalSuccess,
		Percent:     s.PercentSuccess,
		AvgRetries:  s.AverageRetries,
		SuccessRate: s.SuccessRate,
		LastUpdated: s.LastUpdatedDisplay,
	}
}

// Options configures a broker connection.
type Options struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

const queueSize = 64

// Publisher is a poller observer. Updates are queued and sent from a single
// goroutine so a slow broker never holds up a sensor worker; when the queue
// is full the update is dropped.
type Publisher struct {
	client mqtt.Client
	topic  string
	qos    byte

	queue   chan Message
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// Connect dials the broker and returns a running publisher.
func Connect(o Options) (*Publisher, error) {
	opts := mqtt.NewClientOptions().AddBroker(o.Broker)
	if o.ClientID != "" {
		opts.SetClientID(o.ClientID)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "mqtt connect %s", o.Broker)
	}
	log.WithField("broker", o.Broker).Info("connected to mqtt broker")
	return New(c, o.Topic, o.QoS), nil
}

// New wraps a connected client.
func New(client mqtt.Client, topic string, qos byte) *Publisher {
	p := &Publisher{
		client: client,
		topic:  topic,
		qos:    qos,
		queue:  make(chan Message, queueSize),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

// Topic returns the topic a sensor's updates go to.
func (p *Publisher) Topic(sensorID string) string {
	return p.topic + "/" + sensorID
}

// StatsChanged implements poller.Observer.
func (p *Publisher) StatsChanged(u poller.Update) {
	select {
	case p.queue <- NewMessage(u):
	default:
		if p.dropped.Add(1) == 1 {
			log.Warn("mqtt queue full, dropping updates")
		}
	}
}

// Dropped is the number of updates lost to a full queue.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Publisher) loop() {
	defer close(p.done)
	for msg := range p.queue {
		payload, err := json.Marshal(msg)
		if err != nil {
			log.Errorf("Error marshalling sensor data: %s", err)
			continue
		}
		token := p.client.Publish(p.Topic(msg.SensorID), p.qos, false, payload)
		token.Wait()
		if token.Error() != nil {
			log.Errorf("Failed to publish sensor data: %s", token.Error())
		}
	}
}

// Close flushes queued updates and disconnects. It must be called after the
// poller has stopped.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		close(p.queue)
		<-p.done
		p.client.Disconnect(250)
	})
	return nil
}
