package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeJobs   Exchange = "fabrica.jobs"
	ExchangeEvents Exchange = "fabrica.events"
	ExchangeDLQ    Exchange = "fabrica.dlq"
)

// Queues — имена очередей.
const (
	QueueJobsAssigned Queue = "jobs.assigned"
	QueueJobEvents    Queue = "jobs.events"
	QueueDLQJobs      Queue = "dlq.jobs"
)

// Routing keys.
const (
	RoutingKeyAssigned  RoutingKey = "assigned"
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQJobs   RoutingKey = "jobs"
)

// SetupTopology объявляет exchanges, очереди и bindings.
// Идемпотентно: повторное объявление существующей топологии безопасно.
func SetupTopology(conn *Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := declareExchanges(ch); err != nil {
		return err
	}
	if err := declareQueues(ch); err != nil {
		return err
	}
	return bindQueues(ch)
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []Exchange{ExchangeJobs, ExchangeEvents, ExchangeDLQ}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex), // name
			"direct",   // type
			true,       // durable
			false,      // auto-deleted
			false,      // internal
			false,      // no-wait
			nil,        // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Назначенные jobs уходят в DLQ при отказе обработки
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQJobs),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		{QueueJobsAssigned, dlqArgs},
		{QueueJobEvents, nil},
		{QueueDLQJobs, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueJobsAssigned, RoutingKeyAssigned, ExchangeJobs},
		{QueueJobEvents, RoutingKeyCompleted, ExchangeEvents},
		{QueueDLQJobs, RoutingKeyDLQJobs, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}
