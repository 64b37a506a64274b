package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ SecretProvider = (*SSMProvider)(nil)
	_ SecretProvider = (*EnvVarProvider)(nil)
)

type mockSSMClient struct {
	batches [][]string
	values  map[string]string
	invalid []string
	err     error
}

func (m *mockSSMClient) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	m.batches = append(m.batches, in.Names)
	if m.err != nil {
		return nil, m.err
	}
	out := &ssm.GetParametersOutput{InvalidParameters: m.invalid}
	for _, name := range in.Names {
		if v, ok := m.values[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		}
	}
	return out, nil
}

func TestSSMProvider_BatchesByTen(t *testing.T) {
	client := &mockSSMClient{values: map[string]string{}}
	keys := make([]string, 23)
	for i := range keys {
		keys[i] = fmt.Sprintf("/p/%d", i)
		client.values[keys[i]] = fmt.Sprintf("v%d", i)
	}

	got, err := newSSMProviderWithClient("ap-south-1", client).GetParametersBatch(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, got, 23)
	require.Len(t, client.batches, 3)
	assert.Len(t, client.batches[0], 10)
	assert.Len(t, client.batches[2], 3)
}

func TestSSMProvider_Errors(t *testing.T) {
	_, err := newSSMProviderWithClient("r", &mockSSMClient{err: errors.New("denied")}).
		GetParametersBatch(context.Background(), []string{"/a"})
	assert.ErrorContains(t, err, "denied")

	_, err = newSSMProviderWithClient("r", &mockSSMClient{invalid: []string{"/a"}}).
		GetParametersBatch(context.Background(), []string{"/a"})
	assert.ErrorContains(t, err, "not found")
}

func TestSSMProvider_EmptyKeys(t *testing.T) {
	got, err := NewSSMProvider("us-east-1").GetParametersBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEnvVarProvider(t *testing.T) {
	t.Setenv("GREETBOT_TEST_SECRET", "s3cret")

	got, err := NewEnvVarProvider().GetParametersBatch(context.Background(), []string{"GREETBOT_TEST_SECRET", "GREETBOT_NOT_SET"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"GREETBOT_TEST_SECRET": "s3cret"}, got)
}
