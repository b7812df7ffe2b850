package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Address is the shipping or billing snapshot copied onto an order at
// checkout. Later edits to the customer's address book never reach it.
type Address struct {
	Name       string  `json:"name,omitempty"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postal_code" validate:"required"`
	Country    string  `json:"country" validate:"required,len=2"`
	Phone      string  `json:"phone,omitempty"`
}

// Normalized trims every field and upper-cases the country code.
func (a Address) Normalized() Address {
	out := Address{
		Name:       strings.TrimSpace(a.Name),
		Line1:      strings.TrimSpace(a.Line1),
		City:       strings.TrimSpace(a.City),
		State:      strings.TrimSpace(a.State),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:      strings.TrimSpace(a.Phone),
	}
	if a.Line2 != nil {
		if line2 := strings.TrimSpace(*a.Line2); line2 != "" {
			out.Line2 = &line2
		}
	}
	return out
}

// Validate reports every missing required field at once.
func (a Address) Validate() error {
	var errs error
	required := []struct{ field, value string }{
		{"line1", a.Line1},
		{"city", a.City},
		{"postal_code", a.PostalCode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = multierr.Append(errs, fmt.Errorf("address: %s is required", r.field))
		}
	}
	if c := strings.TrimSpace(a.Country); c != "" && len(c) != 2 {
		errs = multierr.Append(errs, errors.New("address: country must be a two-letter code"))
	}
	return errs
}

// Value stores the normalized address as a JSON document.
func (a Address) Value() (driver.Value, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(a.Normalized())
	if err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}
	return string(b), nil
}

func (a *Address) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*a = Address{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("address: cannot scan %T", value)
	}
	if err := json.Unmarshal(raw, a); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	return nil
}
