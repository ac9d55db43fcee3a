package validator

import "testing"

type registerPayload struct {
	FullName    string `json:"fullName" validate:"required"`
	PhoneNumber string `json:"phoneNumber" validate:"required,numeric"`
	Password    string `json:"password" validate:"required,min=8"`
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(&registerPayload{PhoneNumber: "abc", Password: "short"})
	if err == nil {
		t.Fatal("expected validation failure")
	}

	failures, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}

	fields := map[string]bool{}
	for _, failure := range failures {
		fields[failure.Field] = true
	}

	for _, want := range []string{"fullName", "phoneNumber", "password"} {
		if !fields[want] {
			t.Fatalf("expected failure for %q, got %v", want, fields)
		}
	}
}

func TestValidateStructPassesValidPayload(t *testing.T) {
	err := ValidateStruct(&registerPayload{
		FullName:    "Jane Tan",
		PhoneNumber: "6598765432",
		Password:    "correct-horse",
	})
	if err != nil {
		t.Fatalf("expected payload to validate, got %v", err)
	}
}
