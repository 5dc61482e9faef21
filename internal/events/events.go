package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/appointment"
	"github.com/dmehra2102/prod-golang-projects/medbook/internal/domain/schedule"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type Type string

const (
	AppointmentBooked       Type = "appointment.booked"
	AppointmentTransitioned Type = "appointment.transitioned"
	AppointmentCancelled    Type = "appointment.cancelled"
)

// Event is the payload published after an appointment change commits.
type Event struct {
	ID            uuid.UUID                     `json:"event_id"`
	Type          Type                          `json:"event_type"`
	OccurredAt    time.Time                     `json:"occurred_at"`
	ActorID       uuid.UUID                     `json:"actor_id"`
	AppointmentID uuid.UUID                     `json:"appointment_id"`
	PatientID     uuid.UUID                     `json:"patient_id"`
	DoctorID      uuid.UUID                     `json:"doctor_id"`
	WorkplaceID   uuid.UUID                     `json:"workplace_id"`
	Date          string                        `json:"date"`
	Time          string                        `json:"time"`
	From          appointment.AppointmentStatus `json:"from_status,omitempty"`
	Status        appointment.AppointmentStatus `json:"status"`
	Forced        bool                          `json:"forced,omitempty"`
}

func NewEvent(t Type, actorID uuid.UUID, a *appointment.Appointment, from appointment.AppointmentStatus, now time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Type:          t,
		OccurredAt:    now.UTC(),
		ActorID:       actorID,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		WorkplaceID:   a.WorkplaceID,
		Date:          a.Date.Format(schedule.DateLayout),
		Time:          a.Time,
		From:          from,
		Status:        a.Status,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                        { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(cfg config.EventsConfig, log *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &KafkaPublisher{writer: w, log: log}
}

// New picks the publisher for cfg.
func New(cfg config.EventsConfig, log *zap.Logger) Publisher {
	if len(cfg.Brokers) == 0 {
		log.Warn("event publishing disabled (no kafka brokers configured)")
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg, log)
}

// Publish writes the event keyed by appointment so all events of one
// appointment land on the same partition in order.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.AppointmentID.String()),
		Value: payload,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID.String())},
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	carrier := &headerCarrier{headers: msg.Headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	msg.Headers = carrier.headers

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing %s event: %w", e.Type, err)
	}
	p.log.Debug("event published",
		zap.String("event_type", string(e.Type)),
		zap.String("appointment_id", e.AppointmentID.String()),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// headerCarrier adapts kafka headers to the otel text map propagator.
type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}
