// internal/events/types.go
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType represents the type of event.
type EventType string

const (
	PositionUpdated EventType = "position_updated"
	TradeExecuted   EventType = "trade_executed"
	TradeFailed     EventType = "trade_failed"
	Status          EventType = "status"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType
	EventTime time.Time
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBase stamps an event of type t with the current time.
func NewBase(t EventType) BaseEvent {
	return BaseEvent{EventType: t, EventTime: time.Now()}
}

// PositionUpdatedEvent is emitted on every price check of an open position
// and once more when the position closes.
type PositionUpdatedEvent struct {
	BaseEvent
	PositionID   string
	TokenMint    string
	Amount       decimal.Decimal
	EntryPrice   decimal.Decimal
	CurrentPrice decimal.Decimal
	PriceChange  decimal.Decimal // fraction, 0.1 = +10%
	PnL          decimal.Decimal
	Status       string
	CloseReason  string
}

// TradeExecutedEvent is emitted when a copied trade lands.
type TradeExecutedEvent struct {
	BaseEvent
	Signature       string
	SourceSignature string
	TokenIn         string
	TokenOut        string
	Amount          decimal.Decimal
	Attempts        int
}

// TradeFailedEvent is emitted after the last retry of a copied trade fails.
type TradeFailedEvent struct {
	BaseEvent
	SourceSignature string
	TokenIn         string
	TokenOut        string
	Amount          decimal.Decimal
	Attempts        int
	Error           string
}

// StatusEvent carries lifecycle and operator-facing notices.
type StatusEvent struct {
	BaseEvent
	Component string
	Message   string
	Fields    map[string]string
}

// NewStatus builds a status event.
func NewStatus(component, message string) StatusEvent {
	return StatusEvent{BaseEvent: NewBase(Status), Component: component, Message: message}
}
