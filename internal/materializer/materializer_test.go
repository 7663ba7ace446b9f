package materializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sberrors "github.com/r3e-labs/intentsandbox/infrastructure/errors"
)

func TestMaterialize_SimpleSubstitution(t *testing.T) {
	out, err := Materialize(`print({message})`, map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, `print("hi")`, out)
}

func TestMaterialize_MissingParameterFailsBeforeCommit(t *testing.T) {
	out, err := Materialize(`print({message})`, map[string]any{})
	require.Error(t, err)
	assert.Empty(t, out)

	se := sberrors.As(err)
	require.NotNil(t, se)
	assert.Equal(t, sberrors.CodeMissingParameter, se.Code)
}

func TestMaterialize_UnknownParametersAreIgnored(t *testing.T) {
	out, err := Materialize(`print({message})`, map[string]any{
		"message": "hi",
		"unused":  "value",
	})
	require.NoError(t, err)
	assert.Equal(t, `print("hi")`, out)
}

func TestMaterialize_RepeatedPlaceholder(t *testing.T) {
	out, err := Materialize(`{x} + {x}`, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, `1 + 1`, out)
}

func TestMaterialize_NumericAndBooleanValues(t *testing.T) {
	out, err := Materialize(`f({n}, {ok})`, map[string]any{"n": 42, "ok": true})
	require.NoError(t, err)
	assert.Equal(t, `f(42, true)`, out)
}

func TestMaterialize_NoPlaceholders(t *testing.T) {
	out, err := Materialize(`print("static")`, map[string]any{"anything": 1})
	require.NoError(t, err)
	assert.Equal(t, `print("static")`, out)
}
