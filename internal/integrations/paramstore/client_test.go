package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	out      *ssm.GetParameterOutput
	err      error
	lastName string
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if in != nil && in.Name != nil {
		f.lastName = *in.Name
	}
	return f.out, f.err
}

func paramOutput(value string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: &value}}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestGetParameter_HappyPath(t *testing.T) {
	api := &fakeSSM{out: paramOutput("secret-value")}
	c, err := New(api)
	require.NoError(t, err)

	got, err := c.GetParameter(context.Background(), " /trainer-agent/channel-secret ")
	require.NoError(t, err)
	require.Equal(t, "secret-value", got)
	require.Equal(t, "/trainer-agent/channel-secret", api.lastName)
}

func TestGetParameter_EmptyName(t *testing.T) {
	c, err := New(&fakeSSM{out: paramOutput("x")})
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "  ")
	require.Error(t, err)
}

func TestGetParameter_APIError(t *testing.T) {
	c, err := New(&fakeSSM{err: errors.New("throttled")})
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "/trainer-agent/channel-secret")
	require.Error(t, err)
	require.Contains(t, err.Error(), "throttled")
}

func TestGetParameter_MissingValue(t *testing.T) {
	c, err := New(&fakeSSM{out: &ssm.GetParameterOutput{}})
	require.NoError(t, err)
	_, err = c.GetParameter(context.Background(), "/trainer-agent/channel-secret")
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing value")
}

func TestJoin(t *testing.T) {
	cases := []struct {
		prefix, key, want string
	}{
		{"/trainer-agent", "channel-secret", "/trainer-agent/channel-secret"},
		{"/trainer-agent/", "channel-secret", "/trainer-agent/channel-secret"},
		{" /trainer-agent ", "/channel-secret", "/trainer-agent/channel-secret"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Join(tc.prefix, tc.key), "prefix=%q key=%q", tc.prefix, tc.key)
	}
}
