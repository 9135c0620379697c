package lint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePass(t *testing.T) {
	t.Parallel()

	v := &Validator{Cmd: "sh", Args: []string{"-c", "cat \"$0\""}}
	result, err := v.Validate(context.Background(), "share/metainfo/org.test.App.metainfo.xml", []byte("<component/>"))
	require.NoError(t, err)
	assert.True(t, result.Passed())
	assert.Equal(t, "<component/>", result.Stdout)
}

func TestValidateKeepsFileName(t *testing.T) {
	t.Parallel()

	v := &Validator{Cmd: "sh", Args: []string{"-c", "basename \"$0\""}}
	result, err := v.Validate(context.Background(), "share/appdata/org.test.App.appdata.xml", nil)
	require.NoError(t, err)
	assert.Equal(t, "org.test.App.appdata.xml\n", result.Stdout)
}

func TestValidateFailureIsAResult(t *testing.T) {
	t.Parallel()

	v := &Validator{Cmd: "sh", Args: []string{"-c", "echo tag invalid; echo details >&2; exit 3"}}
	result, err := v.Validate(context.Background(), "org.test.App.metainfo.xml", []byte("<component/>"))
	require.NoError(t, err)
	assert.False(t, result.Passed())
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "tag invalid\n", result.Stdout)
	assert.Equal(t, "details\n", result.Stderr)
}

func TestValidateMissingToolIsAnError(t *testing.T) {
	t.Parallel()

	v := &Validator{Cmd: "/nonexistent/appstream-util"}
	result, err := v.Validate(context.Background(), "org.test.App.metainfo.xml", nil)
	require.Error(t, err)
	assert.Nil(t, result)
}

func TestValidateTimeout(t *testing.T) {
	t.Parallel()

	v := &Validator{Cmd: "sh", Args: []string{"-c", "sleep 10"}, Timeout: 1}
	result, err := v.Validate(context.Background(), "org.test.App.metainfo.xml", nil)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "timed out")
}
