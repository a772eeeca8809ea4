package resolver

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

// Create and Update validate required fields before touching the store, so
// a zero-value Service exercises the guard clauses without a database.

func TestService_Create_RejectsEmptyAliasName(t *testing.T) {
	s := &Service{}
	_, err := s.Create(context.Background(), CreateParams{
		AliasName:         "",
		ProviderID:        uuid.New(),
		ProviderModelName: "gpt-4o-mini",
	})
	if err == nil {
		t.Fatal("expected an error for an empty alias_name")
	}
}

func TestService_Create_RejectsEmptyProviderModelName(t *testing.T) {
	s := &Service{}
	_, err := s.Create(context.Background(), CreateParams{
		AliasName:         "gpt-4o",
		ProviderID:        uuid.New(),
		ProviderModelName: "",
	})
	if err == nil {
		t.Fatal("expected an error for an empty provider_model_name")
	}
}

func TestService_Update_RejectsEmptyProviderModelName(t *testing.T) {
	s := &Service{}
	empty := ""
	_, err := s.Update(context.Background(), uuid.New(), UpdateParams{
		ProviderModelName: &empty,
	})
	if err == nil {
		t.Fatal("expected an error when provider_model_name is set to empty")
	}
}

