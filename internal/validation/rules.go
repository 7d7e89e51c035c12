package validation

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mmeshcher/quickorder/internal/model"
)

// ErrInvalidDetails возвращается, если запись по услуге нарушает допустимую форму.
var ErrInvalidDetails = errors.New("invalid service details")

var cardTypes = []string{"New", "Duplicate", "Renewal"}

// Максимальное число документов, прикладываемых к записи.
const (
	maxCardDocuments          = 2
	maxQualificationDocuments = 3
)

// Validate проверяет допустимые значения полей записи. Полнота записи не проверяется.
func Validate(category model.Category, d model.Details) error {
	switch category {
	case model.CategoryCards:
		if v, ok := d.Lookup("cardType"); ok && v != nil && v != "" {
			s, isString := v.(string)
			if !isString || !slices.Contains(cardTypes, s) {
				return fmt.Errorf("%w: cardType must be one of %v", ErrInvalidDetails, cardTypes)
			}
		}
		return validateDocuments(d, maxCardDocuments)

	case model.CategoryQualifications:
		return validateDocuments(d, maxQualificationDocuments)
	}

	return nil
}

func validateDocuments(d model.Details, limit int) error {
	v, ok := d.Lookup("verificationDocuments")
	if !ok || v == nil {
		return nil
	}

	var n int
	switch docs := v.(type) {
	case []string:
		n = len(docs)
	case []any:
		for _, doc := range docs {
			if _, isString := doc.(string); !isString {
				return fmt.Errorf("%w: verificationDocuments must contain strings", ErrInvalidDetails)
			}
		}
		n = len(docs)
	default:
		return fmt.Errorf("%w: verificationDocuments must be a list", ErrInvalidDetails)
	}

	if n > limit {
		return fmt.Errorf("%w: at most %d verification documents allowed, got %d", ErrInvalidDetails, limit, n)
	}
	return nil
}
