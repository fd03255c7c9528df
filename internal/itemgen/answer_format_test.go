package itemgen

import "testing"

func shortAnswer(t AnswerType, answer string) *Item {
	return &Item{
		Kind:       KindShortAnswer,
		Stem:       "How many moons does Mars have?",
		Answer:     answer,
		AnswerType: t,
		Difficulty: DifficultyEasy,
	}
}

func TestAnswerFormat_Integer(t *testing.T) {
	v := &AnswerFormatValidator{}

	for _, a := range []string{"42", "0", "-5", "1000"} {
		if err := v.Validate(shortAnswer(AnswerTypeInteger, a), Input{}); err != nil {
			t.Errorf("expected %q to be valid integer, got: %v", a, err)
		}
	}
	for _, a := range []string{"3.5", "abc", "3/4", "007", ""} {
		if err := v.Validate(shortAnswer(AnswerTypeInteger, a), Input{}); err == nil {
			t.Errorf("expected %q to be invalid integer", a)
		}
	}
}

func TestAnswerFormat_Decimal(t *testing.T) {
	v := &AnswerFormatValidator{}

	for _, a := range []string{"3.5", "0.75", "-2.1", "0", "100"} {
		if err := v.Validate(shortAnswer(AnswerTypeDecimal, a), Input{}); err != nil {
			t.Errorf("expected %q to be valid decimal, got: %v", a, err)
		}
	}
	for _, a := range []string{"abc", "3.50"} {
		if err := v.Validate(shortAnswer(AnswerTypeDecimal, a), Input{}); err == nil {
			t.Errorf("expected %q to be invalid decimal", a)
		}
	}
}

func TestAnswerFormat_Fraction(t *testing.T) {
	v := &AnswerFormatValidator{}

	for _, a := range []string{"3/4", "-1/2", "7/2"} {
		if err := v.Validate(shortAnswer(AnswerTypeFraction, a), Input{}); err != nil {
			t.Errorf("expected %q to be valid fraction, got: %v", a, err)
		}
	}
	for _, a := range []string{"2/4", "3/0", "3", "a/b", "1/-2"} {
		if err := v.Validate(shortAnswer(AnswerTypeFraction, a), Input{}); err == nil {
			t.Errorf("expected %q to be invalid fraction", a)
		}
	}
}

func TestAnswerFormat_TextAndUnknown(t *testing.T) {
	v := &AnswerFormatValidator{}

	if err := v.Validate(shortAnswer(AnswerTypeText, "two"), Input{}); err != nil {
		t.Fatalf("expected text answer to pass, got %v", err)
	}
	if err := v.Validate(shortAnswer("roman", "II"), Input{}); err == nil {
		t.Fatal("expected unknown answer type to fail")
	}
}

func TestAnswerFormat_IgnoresOtherKinds(t *testing.T) {
	v := &AnswerFormatValidator{}
	item := validItem()
	item.AnswerType = "whatever"
	if err := v.Validate(item, Input{}); err != nil {
		t.Fatalf("expected nil for multiple choice, got %v", err)
	}
}
