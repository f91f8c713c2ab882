package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Sign is the rule applied to a balance when an operation is posted.
type Sign string

// Sign constants.
const (
	SignPlus  Sign = "+"
	SignMinus Sign = "-"
)

// IsValid reports whether s is a known sign.
func (s Sign) IsValid() bool {
	return s == SignPlus || s == SignMinus
}

// Direction qualifies an external transaction code as money-in or money-out.
type Direction string

// Direction constants.
const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	return d == DirectionIn || d == DirectionOut
}

// DirectionOf derives the direction of a signed amount. Zero has no direction.
func DirectionOf(amount decimal.Decimal) (Direction, bool) {
	switch amount.Sign() {
	case 1:
		return DirectionIn, true
	case -1:
		return DirectionOut, true
	default:
		return "", false
	}
}

// ExternalTypeMapping ties an external numeric transaction code, in one
// direction, to an operation type.
type ExternalTypeMapping struct {
	Direction Direction
	Code      int
}

func (m ExternalTypeMapping) String() string {
	return fmt.Sprintf("%d/%s", m.Code, m.Direction)
}

// OperationType holds the accounting semantics for a class of transaction.
type OperationType struct {
	Code             string
	Description      string
	AvailableSign    Sign
	BlockedSign      Sign
	ExternalMappings []ExternalTypeMapping
	ID               int64
	Active           bool
}

// Matches reports whether the operation type maps the external code in the
// given direction.
func (o *OperationType) Matches(code int, dir Direction) bool {
	for _, m := range o.ExternalMappings {
		if m.Code == code && m.Direction == dir {
			return true
		}
	}
	return false
}

// Validate checks the operation type definition.
func (o *OperationType) Validate() error {
	if strings.TrimSpace(o.Code) == "" {
		return fmt.Errorf("operation type code is required")
	}
	if !o.AvailableSign.IsValid() {
		return fmt.Errorf("operation type %s: invalid available sign %q", o.Code, o.AvailableSign)
	}
	if !o.BlockedSign.IsValid() {
		return fmt.Errorf("operation type %s: invalid blocked sign %q", o.Code, o.BlockedSign)
	}
	seen := make(map[ExternalTypeMapping]struct{}, len(o.ExternalMappings))
	for _, m := range o.ExternalMappings {
		if !m.Direction.IsValid() {
			return fmt.Errorf("operation type %s: invalid direction %q for code %d", o.Code, m.Direction, m.Code)
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("operation type %s: duplicate mapping %s", o.Code, m)
		}
		seen[m] = struct{}{}
	}
	return nil
}
