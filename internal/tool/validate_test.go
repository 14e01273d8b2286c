package tool

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolhost/internal/domain"
)

func TestValidate(t *testing.T) {
	desc := domain.ToolDescriptor{
		Name: "fs.read_file",
		Parameters: ToolParameters(map[string]Param{
			"path":      {Type: "string", Description: "file path"},
			"max_chars": {Type: "integer", Description: "limit", Minimum: Min(1)},
			"mode":      {Type: "string", Enum: []string{"text", "bytes"}},
		}, []string{"path"}),
	}

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"path": "a.txt"}, false},
		{"valid with int", map[string]any{"path": "a.txt", "max_chars": 10}, false},
		{"missing required", map[string]any{}, true},
		{"nil args", nil, true},
		{"wrong type", map[string]any{"path": 12}, true},
		{"below minimum", map[string]any{"path": "a", "max_chars": 0}, true},
		{"bad enum", map[string]any{"path": "a", "mode": "hex"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(desc, tt.args)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidArguments))

			var te *domain.ToolError
			require.True(t, errors.As(err, &te))
			assert.NotEmpty(t, te.Details)
		})
	}
}

func TestValidate_FallbackRequiredKeys(t *testing.T) {
	// "type": 5 cannot be parsed as a schema, so only required keys are checked.
	desc := domain.ToolDescriptor{
		Name:       "x.tool",
		Parameters: json.RawMessage(`{"type": 5, "required": ["a", "b"]}`),
	}

	err := Validate(desc, map[string]any{"a": 1})
	require.Error(t, err)
	var te *domain.ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, domain.KindInvalidArguments, te.Kind)
	assert.Equal(t, []string{`missing required argument "b"`}, te.Details)

	assert.NoError(t, Validate(desc, map[string]any{"a": 1, "b": "anything"}))
}

func TestValidate_EmptySchemaAcceptsAnything(t *testing.T) {
	desc := domain.ToolDescriptor{Name: "x.tool"}
	assert.NoError(t, Validate(desc, map[string]any{"whatever": true}))
}
