package domain

import "time"

// EventType names a committed ledger effect.
type EventType string

const (
	EventGameCreated        EventType = "game_created"
	EventGameStatusSet      EventType = "game_status_set"
	EventGamePricesSet      EventType = "game_prices_set"
	EventGameMaxQuantitySet EventType = "game_max_quantity_set"
	EventGameOutcomeSet     EventType = "game_outcome_set"
	EventTicketsBought      EventType = "tickets_bought"
	EventRefundClaimed      EventType = "refund_claimed"
	EventWinningsClaimed    EventType = "winnings_claimed"
	EventWithdrawn          EventType = "withdrawn"
)

// EventChannelPrefix prefixes every channel ledger events are published on.
const EventChannelPrefix = "pavilion:events:"

// Channel returns the pub/sub channel for events of type t.
func (t EventType) Channel() string {
	return EventChannelPrefix + string(t)
}

// Event is the JSON payload published after a call commits. Amount is a
// base-unit decimal string so it survives JSON intact.
type Event struct {
	Type        EventType  `json:"type"`
	GameID      uint64     `json:"game_id,omitempty"`
	Caller      string     `json:"caller"`
	Direction   *Direction `json:"direction,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Quantity    uint64     `json:"quantity,omitempty"`
	Prices      *Pair      `json:"prices,omitempty"`
	MaxQuantity *Pair      `json:"max_quantity,omitempty"`
	Amount      string     `json:"amount,omitempty"`
	At          time.Time  `json:"at"`
}

// Detail flattens the event for the audit log.
func (e Event) Detail() map[string]any {
	d := map[string]any{
		"caller": e.Caller,
		"at":     e.At,
	}
	if e.GameID != 0 {
		d["game_id"] = e.GameID
	}
	if e.Direction != nil {
		d["direction"] = e.Direction.String()
	}
	if e.Status != nil {
		d["status"] = e.Status.String()
	}
	if e.Quantity != 0 {
		d["quantity"] = e.Quantity
	}
	if e.Prices != nil {
		d["price_positive"] = e.Prices.Positive
		d["price_negative"] = e.Prices.Negative
	}
	if e.MaxQuantity != nil {
		d["max_positive"] = e.MaxQuantity.Positive
		d["max_negative"] = e.MaxQuantity.Negative
	}
	if e.Amount != "" {
		d["amount"] = e.Amount
	}
	return d
}
