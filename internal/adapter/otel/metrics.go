package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "relay"

// Metrics holds all broker metric instruments.
type Metrics struct {
	MessagesCreated   metric.Int64Counter
	StatusTransitions metric.Int64Counter
	RequestsRouted    metric.Int64Counter
	CardsUpserted     metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.MessagesCreated, err = meter.Int64Counter("relay.messages.created",
		metric.WithDescription("Number of messages created"))
	if err != nil {
		return nil, err
	}

	m.StatusTransitions, err = meter.Int64Counter("relay.messages.status_transitions",
		metric.WithDescription("Number of message status transitions"))
	if err != nil {
		return nil, err
	}

	m.RequestsRouted, err = meter.Int64Counter("relay.requests.routed",
		metric.WithDescription("Number of capability-routed requests"))
	if err != nil {
		return nil, err
	}

	m.CardsUpserted, err = meter.Int64Counter("relay.cards.upserted",
		metric.WithDescription("Number of agent card registrations"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
