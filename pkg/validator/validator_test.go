package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type createKeyRequest struct {
	Name   string   `json:"name" validate:"required,min=3"`
	Scopes []string `json:"scopes" validate:"required,min=1"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(createKeyRequest{
		Name:   "ci-pipeline",
		Scopes: []string{"read:events"},
	})
	require.NoError(t, err)
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(createKeyRequest{Name: "x"})
	require.Error(t, err)

	failures, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, failures, 2)

	fields := map[string]bool{}
	for _, f := range failures {
		fields[f.Field] = true
	}
	require.True(t, fields["name"])
	require.True(t, fields["scopes"])
	require.Contains(t, err.Error(), "name failed on min=3")
}
