package model

import (
	"encoding/json"
	"fmt"
)

// Kind names a catalog collection.
type Kind string

const (
	// KindProtocols holds the actions a user checks in against.
	KindProtocols Kind = "protocols"
	// KindInnerfaces holds the scored skills/attributes.
	KindInnerfaces Kind = "innerfaces"
	// KindStates holds aggregates over innerfaces and other states.
	KindStates Kind = "states"
	// KindQuickActions holds one-tap shortcuts bound to a protocol.
	KindQuickActions Kind = "quickActions"
)

// Kinds lists every catalog kind in persisted layout order.
var Kinds = []Kind{KindProtocols, KindInnerfaces, KindStates, KindQuickActions}

var orderKeys = map[Kind]string{
	KindProtocols:    "protocolOrder",
	KindInnerfaces:   "innerfaceOrder",
	KindStates:       "stateOrder",
	KindQuickActions: "quickActionOrder",
}

// Valid reports whether k is a known catalog kind.
func (k Kind) Valid() bool {
	_, ok := orderKeys[k]
	return ok
}

// CatalogKey returns the storage key holding the catalog rows.
func (k Kind) CatalogKey() string {
	return string(k)
}

// OrderKey returns the storage key holding the explicit order list.
func (k Kind) OrderKey() string {
	return orderKeys[k]
}

// Row is implemented by every catalog row type.
type Row interface {
	RowID() EntityID
	RowName() string
}

// Protocol is an action the user logs. A check-in moves each target
// innerface by Weight in the chosen direction.
type Protocol struct {
	ID          EntityID   `json:"id" validate:"required"`
	Name        string     `json:"name" validate:"required,max=100"`
	Description string     `json:"description,omitempty" validate:"max=500"`
	Icon        string     `json:"icon,omitempty"`
	Color       string     `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Group       string     `json:"group,omitempty"`
	Weight      float64    `json:"weight" validate:"weight"`
	Targets     []EntityID `json:"targets" validate:"targets"`
}

// RowID implements Row.
func (p Protocol) RowID() EntityID { return p.ID }

// RowName implements Row.
func (p Protocol) RowName() string { return p.Name }

// Innerface is a scored attribute. Its derived score starts at InitialScore.
type Innerface struct {
	ID           EntityID `json:"id" validate:"required"`
	Name         string   `json:"name" validate:"required,max=100"`
	Description  string   `json:"description,omitempty" validate:"max=500"`
	Icon         string   `json:"icon,omitempty"`
	Color        string   `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Group        string   `json:"group,omitempty"`
	InitialScore float64  `json:"initialScore" validate:"score"`
}

// RowID implements Row.
func (i Innerface) RowID() EntityID { return i.ID }

// RowName implements Row.
func (i Innerface) RowName() string { return i.Name }

// State aggregates innerfaces and nested states by arithmetic mean.
type State struct {
	ID           EntityID   `json:"id" validate:"required"`
	Name         string     `json:"name" validate:"required,max=100"`
	Description  string     `json:"description,omitempty" validate:"max=500"`
	Icon         string     `json:"icon,omitempty"`
	Color        string     `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Group        string     `json:"group,omitempty"`
	InnerfaceIDs []EntityID `json:"innerfaceIds"`
	StateIDs     []EntityID `json:"stateIds"`
}

// RowID implements Row.
func (s State) RowID() EntityID { return s.ID }

// RowName implements Row.
func (s State) RowName() string { return s.Name }

// References returns the number of innerfaces and states the state averages.
func (s State) References() int {
	return len(s.InnerfaceIDs) + len(s.StateIDs)
}

// QuickAction is a shortcut that checks in a protocol in a fixed direction.
type QuickAction struct {
	ID         EntityID `json:"id" validate:"required"`
	ProtocolID EntityID `json:"protocolId" validate:"required"`
	Direction  int      `json:"direction" validate:"oneof=-1 1"`
	Name       string   `json:"name,omitempty" validate:"max=100"`
	Icon       string   `json:"icon,omitempty"`
	Color      string   `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

// RowID implements Row.
func (q QuickAction) RowID() EntityID { return q.ID }

// RowName implements Row.
func (q QuickAction) RowName() string { return q.Name }

// KindOf returns the catalog kind a row belongs to.
func KindOf(row Row) (Kind, bool) {
	switch row.(type) {
	case Protocol:
		return KindProtocols, true
	case Innerface:
		return KindInnerfaces, true
	case State:
		return KindStates, true
	case QuickAction:
		return KindQuickActions, true
	}
	return "", false
}

// DecodeRow unmarshals raw into the row type of kind.
func DecodeRow(kind Kind, raw []byte) (Row, error) {
	var (
		row Row
		err error
	)
	switch kind {
	case KindProtocols:
		var p Protocol
		err = json.Unmarshal(raw, &p)
		row = p
	case KindInnerfaces:
		var i Innerface
		err = json.Unmarshal(raw, &i)
		row = i
	case KindStates:
		var s State
		err = json.Unmarshal(raw, &s)
		row = s
	case KindQuickActions:
		var q QuickAction
		err = json.Unmarshal(raw, &q)
		row = q
	default:
		return nil, fmt.Errorf("decode row: unknown kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s row: %w", kind, err)
	}
	return row, nil
}
