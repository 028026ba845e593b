package validation

import (
	"fmt"
	"strings"
	"unicode"

	"price-comparator-api/internal/models"
	"price-comparator-api/internal/units"
)

// ValidationError reports a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// SanitizeString trims surrounding whitespace and strips control characters.
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// ValidateBasketRequest sanitizes the id list in place and rejects empty
// requests and blank ids.
func ValidateBasketRequest(req *models.OptimizeBasketRequest) error {
	if len(req.ProductIDs) == 0 {
		return &ValidationError{Field: "product_ids", Message: "must not be empty"}
	}
	for i := range req.ProductIDs {
		req.ProductIDs[i] = SanitizeString(req.ProductIDs[i])
		if req.ProductIDs[i] == "" {
			return &ValidationError{Field: "product_ids", Message: fmt.Sprintf("id at index %d is blank", i)}
		}
	}
	return nil
}

// ValidateCreateAlert sanitizes and checks an alert creation payload.
func ValidateCreateAlert(req *models.CreateAlertRequest) error {
	req.ProductID = SanitizeString(req.ProductID)
	req.StoreID = SanitizeString(req.StoreID)

	if req.ProductID == "" {
		return &ValidationError{Field: "product_id", Message: "is required"}
	}
	if req.StoreID == "" {
		return &ValidationError{Field: "store_id", Message: "is required"}
	}
	if !req.TargetPrice.IsPositive() {
		return &ValidationError{Field: "target_price", Message: "must be positive"}
	}
	return nil
}

// ParseDateParam parses an optional 2006-01-02 query parameter, defaulting
// to the current UTC day when absent.
func ParseDateParam(field, value string) (models.Date, error) {
	value = SanitizeString(value)
	if value == "" {
		return models.Today(), nil
	}
	date, err := models.ParseDate(value)
	if err != nil {
		return models.Date{}, &ValidationError{Field: field, Message: "must be formatted as YYYY-MM-DD"}
	}
	return date, nil
}

// ParseUnitParam parses an optional unit query parameter. Empty means "keep
// the product's native unit".
func ParseUnitParam(field, value string) (units.Unit, error) {
	value = SanitizeString(value)
	if value == "" {
		return "", nil
	}
	unit, err := units.Parse(value)
	if err != nil {
		return "", &ValidationError{Field: field, Message: err.Error()}
	}
	return unit, nil
}
