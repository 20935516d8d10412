package model

import (
	"fmt"
	"slices"
)

// Snapshot is a full point-in-time copy of every catalog, order list and
// the journal.
//
// When a snapshot is pushed to a remote, a nil collection means "leave the
// remote copy unchanged" and a non-nil collection (even an empty one)
// replaces it. This lets partial pushes such as a quick action replacement
// travel through the same contract as a full replace.
type Snapshot struct {
	Protocols        []Protocol     `json:"protocols"`
	Innerfaces       []Innerface    `json:"innerfaces"`
	States           []State        `json:"states"`
	QuickActions     []QuickAction  `json:"quickActions"`
	ProtocolOrder    []EntityID     `json:"protocolOrder"`
	InnerfaceOrder   []EntityID     `json:"innerfaceOrder"`
	StateOrder       []EntityID     `json:"stateOrder"`
	QuickActionOrder []EntityID     `json:"quickActionOrder"`
	Journal          []JournalEntry `json:"journal"`
}

// Order returns the explicit order list for kind.
func (s *Snapshot) Order(kind Kind) []EntityID {
	switch kind {
	case KindProtocols:
		return s.ProtocolOrder
	case KindInnerfaces:
		return s.InnerfaceOrder
	case KindStates:
		return s.StateOrder
	case KindQuickActions:
		return s.QuickActionOrder
	}
	return nil
}

// SetOrder replaces the explicit order list for kind.
func (s *Snapshot) SetOrder(kind Kind, order []EntityID) {
	switch kind {
	case KindProtocols:
		s.ProtocolOrder = order
	case KindInnerfaces:
		s.InnerfaceOrder = order
	case KindStates:
		s.StateOrder = order
	case KindQuickActions:
		s.QuickActionOrder = order
	}
}

// EmptySnapshot returns a snapshot whose collections are all non-nil and
// empty. Pushed to a remote it clears everything.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Protocols:        []Protocol{},
		Innerfaces:       []Innerface{},
		States:           []State{},
		QuickActions:     []QuickAction{},
		ProtocolOrder:    []EntityID{},
		InnerfaceOrder:   []EntityID{},
		StateOrder:       []EntityID{},
		QuickActionOrder: []EntityID{},
		Journal:          []JournalEntry{},
	}
}

// Overlay applies the non-nil collections of patch onto s.
func (s *Snapshot) Overlay(patch Snapshot) {
	if patch.Protocols != nil {
		s.Protocols = patch.Protocols
	}
	if patch.Innerfaces != nil {
		s.Innerfaces = patch.Innerfaces
	}
	if patch.States != nil {
		s.States = patch.States
	}
	if patch.QuickActions != nil {
		s.QuickActions = patch.QuickActions
	}
	for _, kind := range Kinds {
		if order := patch.Order(kind); order != nil {
			s.SetOrder(kind, order)
		}
	}
	if patch.Journal != nil {
		s.Journal = patch.Journal
	}
}

// UpsertRow replaces the row of kind with the same id, or appends it.
func (s *Snapshot) UpsertRow(row Row) error {
	switch r := row.(type) {
	case Protocol:
		s.Protocols = upsert(s.Protocols, r)
	case Innerface:
		s.Innerfaces = upsert(s.Innerfaces, r)
	case State:
		s.States = upsert(s.States, r)
	case QuickAction:
		s.QuickActions = upsert(s.QuickActions, r)
	default:
		return fmt.Errorf("upsert row: unsupported row type %T", row)
	}
	return nil
}

// DeleteRow removes the row of kind with id. Returns false if absent.
func (s *Snapshot) DeleteRow(kind Kind, id EntityID) (bool, error) {
	var removed bool
	switch kind {
	case KindProtocols:
		s.Protocols, removed = remove(s.Protocols, id)
	case KindInnerfaces:
		s.Innerfaces, removed = remove(s.Innerfaces, id)
	case KindStates:
		s.States, removed = remove(s.States, id)
	case KindQuickActions:
		s.QuickActions, removed = remove(s.QuickActions, id)
	default:
		return false, fmt.Errorf("delete row: unknown kind %q", kind)
	}
	return removed, nil
}

func upsert[T Row](rows []T, row T) []T {
	if idx := slices.IndexFunc(rows, func(r T) bool { return r.RowID() == row.RowID() }); idx >= 0 {
		out := slices.Clone(rows)
		out[idx] = row
		return out
	}
	return append(slices.Clip(rows), row)
}

func remove[T Row](rows []T, id EntityID) ([]T, bool) {
	idx := slices.IndexFunc(rows, func(r T) bool { return r.RowID() == id })
	if idx < 0 {
		return rows, false
	}
	return slices.Delete(slices.Clone(rows), idx, idx+1), true
}
