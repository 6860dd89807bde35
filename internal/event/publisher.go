// Package event publishes domain events to the message broker consumed by the
// student records service.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kicc/cbt-backend/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const RoutingKeySubjectScore = "student_record.subject_score"

// Publisher sends subject scores to a durable topic exchange. A Publisher
// built with an empty URL is disabled and drops every event.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool
	log      zerolog.Logger
}

func NewPublisher(url, exchange string, log zerolog.Logger) (*Publisher, error) {
	p := &Publisher{
		exchange: exchange,
		log:      log.With().Str("component", "event_publisher").Logger(),
	}
	if url == "" {
		p.log.Warn().Msg("RABBITMQ_URL is empty, record sync publishing is disabled")
		return p, nil
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p.conn = conn
	p.channel = ch
	p.enabled = true
	p.log.Info().Str("exchange", exchange).Msg("Event publisher initialized")
	return p, nil
}

// SyncSubjectScore publishes score for the records service.
func (p *Publisher) SyncSubjectScore(ctx context.Context, score model.SubjectScore) error {
	if !p.enabled {
		p.log.Debug().Str("exam_id", score.ExamID).Msg("Publishing disabled, skipping subject score")
		return nil
	}

	body, err := json.Marshal(score)
	if err != nil {
		return fmt.Errorf("marshal subject score: %w", err)
	}

	// amqp channels are not safe for concurrent publishers.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKeySubjectScore, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
		Headers: amqp.Table{
			"student_id": score.StudentID,
			"exam_id":    score.ExamID,
		},
	})
	if err != nil {
		return fmt.Errorf("publish subject score: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.log.Warn().Err(err).Msg("Error closing rabbitmq channel")
	}
	if err := p.conn.Close(); err != nil {
		return fmt.Errorf("close rabbitmq connection: %w", err)
	}
	return nil
}
