package utils

import (
	"errors"
	"fmt"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

// Shortage describes one (item, location) that cannot cover a required quantity.
type Shortage struct {
	ItemId     int             `json:"item_id"`
	ItemName   string          `json:"item_name,omitempty"`
	LocationId int             `json:"location_id"`
	Required   decimal.Decimal `json:"required"`
	Available  decimal.Decimal `json:"available"`
}

// ValidationError: bad input, illegal transition, insufficient stock or an ineligible promo.
// Nothing was mutated.
type ValidationError struct {
	Reason    string     `json:"reason"`
	Shortages []Shortage `json:"shortages,omitempty"`
}

func (e *ValidationError) Error() string {
	if len(e.Shortages) == 0 {
		return e.Reason
	}
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("item %d at location %d: required %s, available %s",
			s.ItemId, s.LocationId, s.Required.String(), s.Available.String()))
	}
	return e.Reason + " (" + strings.Join(parts, "; ") + ")"
}

// ConflictError: another request already moved the entity out of the expected state.
type ConflictError struct {
	Entity   string `json:"entity"`
	EntityId int    `json:"entity_id"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d changed concurrently: expected %s, found %s", e.Entity, e.EntityId, e.Expected, e.Actual)
}

// InternalError wraps an unexpected store or system failure.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *InternalError) Unwrap() error { return e.Err }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

func NewShortageError(reason string, shortages []Shortage) error {
	return &ValidationError{Reason: reason, Shortages: shortages}
}

func NewConflictError(entity string, id int, expected string, actual string) error {
	return &ConflictError{Entity: entity, EntityId: id, Expected: expected, Actual: actual}
}

// Internal wraps err unless it already belongs to the taxonomy. A nil err stays nil.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsValidation(err) || IsConflict(err) || IsInternal(err) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrorRecordNotFound) {
		return &ValidationError{Reason: op + ": record not found"}
	}
	return &InternalError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsInternal(err error) bool {
	var i *InternalError
	return errors.As(err, &i)
}

func AsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	ok := errors.As(err, &v)
	return v, ok
}

func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
