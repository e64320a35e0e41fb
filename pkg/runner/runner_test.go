package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecRunner(t *testing.T) {
	r := NewExecRunner(zap.NewNop())

	out, err := r.Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestExecRunnerFailureCarriesStderr(t *testing.T) {
	r := NewExecRunner(nil)

	_, err := r.Run(context.Background(), "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)

	var runErr *Error
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, []string{"sh", "-c", "echo broken >&2; exit 3"}, runErr.Command)
	assert.Contains(t, err.Error(), "broken")
}

func TestFake(t *testing.T) {
	boom := errors.New("boom")
	f := NewFake().
		On("v1\n", "helm", "version").
		Fail(boom, "kubectl", "apply")

	out, err := f.Run(context.Background(), "helm", "version")
	require.NoError(t, err)
	assert.Equal(t, "v1\n", string(out))

	_, err = f.Run(context.Background(), "kubectl", "apply")
	assert.ErrorIs(t, err, boom)

	_, err = f.Run(context.Background(), "gcloud")
	assert.Error(t, err)

	assert.Equal(t, [][]string{{"helm", "version"}, {"kubectl", "apply"}, {"gcloud"}}, f.Calls())
}
