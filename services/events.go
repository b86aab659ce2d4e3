package services

import (
	"context"
	"encoding/json"
	"time"

	"orbit-progression-service/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Routing keys on the progression topic exchange.
const (
	RouteLevelUp            = "progression.level_up"
	RouteAchievementUnlock  = "progression.achievement_unlocked"
	RouteValidationResolved = "progression.validation_resolved"
)

type LevelUpEvent struct {
	UserID   string `json:"user_id"`
	GroupID  string `json:"group_id"`
	NewLevel int    `json:"new_level"`
	NewXP    int    `json:"new_xp"`
}

type AchievementUnlockedEvent struct {
	UserID          string                 `json:"user_id"`
	GroupID         string                 `json:"group_id"`
	AchievementType models.AchievementType `json:"achievement_type"`
	Name            string                 `json:"name"`
	XPReward        int                    `json:"xp_reward"`
}

type ValidationResolvedEvent struct {
	ValidationID string                  `json:"validation_id"`
	OwnerID      string                  `json:"owner_id"`
	GroupID      string                  `json:"group_id"`
	Status       models.ValidationStatus `json:"status"`
	XPAmount     int                     `json:"xp_amount"`
}

// EventPublisher pushes progression events to a RabbitMQ topic exchange
// for the host app to render (level-up toast, unlock banner, validation
// outcome). A nil publisher is valid and drops everything: the engine
// must degrade gracefully when no broker is configured.
type EventPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *logrus.Logger
}

func NewEventPublisher(url, exchange string, log *logrus.Logger) (*EventPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	log.WithField("exchange", exchange).Info("connected to RabbitMQ")
	return &EventPublisher{conn: conn, ch: ch, exchange: exchange, log: log}, nil
}

func (p *EventPublisher) PublishLevelUp(ctx context.Context, ev LevelUpEvent) {
	p.publish(ctx, RouteLevelUp, ev)
}

func (p *EventPublisher) PublishAchievementUnlocked(ctx context.Context, ev AchievementUnlockedEvent) {
	p.publish(ctx, RouteAchievementUnlock, ev)
}

func (p *EventPublisher) PublishValidationResolved(ctx context.Context, ev ValidationResolvedEvent) {
	p.publish(ctx, RouteValidationResolved, ev)
}

func (p *EventPublisher) publish(ctx context.Context, routingKey string, payload interface{}) {
	if p == nil || p.ch == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.WithError(err).WithField("route", routingKey).Error("failed to encode event")
		return
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	})
	if err != nil {
		// Events are best-effort; a broker outage must not fail the award.
		p.log.WithError(err).WithField("route", routingKey).Warn("failed to publish event")
	}
}

func (p *EventPublisher) Close() {
	if p == nil {
		return
	}
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
