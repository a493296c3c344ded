package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the operator-controlled lifecycle state of a game. Any status can
// be set from any other status.
type Status uint8

const (
	StatusOpen Status = iota
	StatusForcedClose
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusOpen:        "open",
	StatusForcedClose: "forced_close",
	StatusCancelled:   "cancelled",
}

// String returns the lower-case wire name of the status.
func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus converts a wire name ("open", "forced_close", "cancelled") to a
// Status.
func ParseStatus(s string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == key {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	st, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Direction is one of the two opposing positions a ticket can back. The same
// type doubles as a game's outcome, where DirectionNotSet means unresolved.
type Direction uint8

const (
	DirectionNotSet Direction = iota
	DirectionPositive
	DirectionNegative
)

var directionNames = map[Direction]string{
	DirectionNotSet:   "not_set",
	DirectionPositive: "positive",
	DirectionNegative: "negative",
}

func (d Direction) String() string {
	if n, ok := directionNames[d]; ok {
		return n
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Valid reports whether d is a known value, including DirectionNotSet.
func (d Direction) Valid() bool {
	_, ok := directionNames[d]
	return ok
}

// IsSide reports whether d names an actual position (positive or negative).
func (d Direction) IsSide() bool {
	return d == DirectionPositive || d == DirectionNegative
}

// ParseDirection converts "positive", "negative" or "not_set" to a Direction.
func ParseDirection(s string) (Direction, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for d, name := range directionNames {
		if name == key {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, uint8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	v, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Pair holds one value per side.
type Pair struct {
	Positive uint64 `json:"positive"`
	Negative uint64 `json:"negative"`
}

// Get returns the value for side d. It returns 0 for DirectionNotSet.
func (p Pair) Get(d Direction) uint64 {
	switch d {
	case DirectionPositive:
		return p.Positive
	case DirectionNegative:
		return p.Negative
	default:
		return 0
	}
}

// With returns a copy of p with side d set to v.
func (p Pair) With(d Direction, v uint64) Pair {
	switch d {
	case DirectionPositive:
		p.Positive = v
	case DirectionNegative:
		p.Negative = v
	}
	return p
}

// Game is one binary-outcome market. Prices are in hundredths of one
// stablecoin unit (70 means 0.70 per ticket).
type Game struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	ClosesAt    time.Time `json:"closes_at"`
	Status      Status    `json:"status"`
	Outcome     Direction `json:"outcome"`
	Prices      Pair      `json:"prices"`
	MaxQuantity Pair      `json:"max_quantity"`
	TotalSold   Pair      `json:"total_sold"`
}

// GameParams are the creation-time fields of a game.
type GameParams struct {
	Name          string
	ClosesAt      time.Time
	PricePositive uint64
	PriceNegative uint64
	MaxPositive   uint64
	MaxNegative   uint64
}
