package itemgen

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var fractionPattern = regexp.MustCompile(`^-?\d+/\d+$`)

const maxTextAnswerLen = 200

// AnswerFormatValidator checks that a short answer matches its declared
// answer type. Other kinds are not checked.
type AnswerFormatValidator struct{}

func (v *AnswerFormatValidator) Name() string { return "answer-format" }

func (v *AnswerFormatValidator) Validate(item *Item, _ Input) *ValidationError {
	if item.Kind != KindShortAnswer {
		return nil
	}

	var err error
	switch item.AnswerType {
	case AnswerTypeInteger:
		err = validateInteger(item.Answer)
	case AnswerTypeDecimal:
		err = validateDecimal(item.Answer)
	case AnswerTypeFraction:
		err = validateFraction(item.Answer)
	case AnswerTypeText:
		if len(strings.TrimSpace(item.Answer)) > maxTextAnswerLen {
			err = fmt.Errorf("longer than %d characters", maxTextAnswerLen)
		}
	default:
		return &ValidationError{
			Validator: v.Name(),
			Message:   fmt.Sprintf("answer_type must be integer, decimal, fraction or text, got %q", item.AnswerType),
			Retryable: true,
		}
	}
	if err != nil {
		return &ValidationError{
			Validator: v.Name(),
			Message:   fmt.Sprintf("invalid %s answer %q: %s", item.AnswerType, item.Answer, err),
			Retryable: true,
		}
	}
	return nil
}

// validateInteger checks that s is a valid integer string with no leading zeros.
func validateInteger(s string) error {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("not a valid integer")
	}
	if strconv.FormatInt(n, 10) != s {
		return fmt.Errorf("has leading zeros")
	}
	return nil
}

// validateDecimal checks that s is a valid decimal string with no trailing zeros.
func validateDecimal(s string) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("not a valid decimal")
	}
	normalized := strconv.FormatFloat(f, 'f', -1, 64)
	if normalized != s {
		return fmt.Errorf("has trailing zeros or is not normalized (expected %q)", normalized)
	}
	return nil
}

// validateFraction checks that s matches a/b, the denominator is positive
// and the fraction is in lowest terms.
func validateFraction(s string) error {
	if !fractionPattern.MatchString(s) {
		return fmt.Errorf("does not match fraction pattern a/b")
	}
	parts := strings.SplitN(s, "/", 2)
	num, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid numerator")
	}
	den, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid denominator")
	}
	if den <= 0 {
		return fmt.Errorf("denominator must be positive")
	}
	if num < 0 {
		num = -num
	}
	if gcd(num, den) != 1 {
		return fmt.Errorf("fraction is not in lowest terms")
	}
	return nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
