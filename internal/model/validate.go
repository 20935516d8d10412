package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Bounds shared by the engine and the validators.
const (
	// MinScore and MaxScore are the default global clamp for derived scores.
	MinScore = 0.0
	MaxScore = 10.0

	// MinWeight and MaxWeight bound the per-check-in delta of a protocol.
	MinWeight = 0.01
	MaxWeight = 1.0

	// MinTargets and MaxTargets bound how many innerfaces a protocol moves.
	MinTargets = 1
	MaxTargets = 10
)

// entityValidate is the validator instance for catalog rows.
// Initialized in init() with the custom bound validators.
var entityValidate *validator.Validate

func init() {
	entityValidate = validator.New()

	_ = entityValidate.RegisterValidation("weight", func(fl validator.FieldLevel) bool {
		w := fl.Field().Float()
		return w >= MinWeight && w <= MaxWeight
	})
	_ = entityValidate.RegisterValidation("targets", func(fl validator.FieldLevel) bool {
		n := fl.Field().Len()
		return n >= MinTargets && n <= MaxTargets
	})
	_ = entityValidate.RegisterValidation("score", func(fl validator.FieldLevel) bool {
		s := fl.Field().Float()
		return s >= MinScore && s <= MaxScore
	})
}

// FieldError describes one failed constraint.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError is returned when an entity or journal entry has a bad shape.
// Validation errors are reported to the caller and never enter the sync queue.
type ValidationError struct {
	Entity string
	Fields []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s (%s)", f.Field, f.Rule)
	}
	return fmt.Sprintf("invalid %s: %s", e.Entity, strings.Join(parts, ", "))
}

// IsValidationError returns true if the error is a ValidationError.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateProtocol checks name, weight bounds and target count.
func ValidateProtocol(p Protocol) error {
	return validateStruct("protocol", p)
}

// ValidateInnerface checks name and initial score bounds.
func ValidateInnerface(i Innerface) error {
	return validateStruct("innerface", i)
}

// ValidateState checks name and that the state does not list itself.
func ValidateState(s State) error {
	if err := validateStruct("state", s); err != nil {
		return err
	}
	for _, id := range s.StateIDs {
		if id == s.ID {
			return &ValidationError{Entity: "state", Fields: []FieldError{{Field: "StateIDs", Rule: "self-reference"}}}
		}
	}
	return nil
}

// ValidateQuickAction checks the protocol binding and direction.
func ValidateQuickAction(q QuickAction) error {
	return validateStruct("quick action", q)
}

// ValidateRow dispatches to the validator for the row's concrete type.
func ValidateRow(row Row) error {
	switch r := row.(type) {
	case Protocol:
		return ValidateProtocol(r)
	case Innerface:
		return ValidateInnerface(r)
	case State:
		return ValidateState(r)
	case QuickAction:
		return ValidateQuickAction(r)
	default:
		return fmt.Errorf("validate: unsupported row type %T", row)
	}
}

// ValidateJournalEntry checks the invariants every journal entry must hold.
func ValidateJournalEntry(e JournalEntry) error {
	var fields []FieldError
	if e.ID == "" {
		fields = append(fields, FieldError{Field: "ID", Rule: "required"})
	}
	if !e.Type.Valid() {
		fields = append(fields, FieldError{Field: "Type", Rule: "oneof"})
	}
	if e.Timestamp.IsZero() {
		fields = append(fields, FieldError{Field: "Timestamp", Rule: "required"})
	}
	if e.Type == EntryProtocolCheckin && len(e.Changes) == 0 {
		fields = append(fields, FieldError{Field: "Changes", Rule: "required"})
	}
	if len(fields) > 0 {
		return &ValidationError{Entity: "journal entry", Fields: fields}
	}
	return nil
}

func validateStruct(entity string, v any) error {
	err := entityValidate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %s: %w", entity, err)
	}
	fields := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = FieldError{Field: fe.Field(), Rule: fe.Tag()}
	}
	return &ValidationError{Entity: entity, Fields: fields}
}
