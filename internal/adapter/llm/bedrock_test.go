package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/config"
)

type fakeBedrockStream struct {
	events chan types.ConverseStreamOutput
	err    error
	closed bool
}

func newFakeBedrockStream(err error, events ...types.ConverseStreamOutput) *fakeBedrockStream {
	ch := make(chan types.ConverseStreamOutput, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return &fakeBedrockStream{events: ch, err: err}
}

func (f *fakeBedrockStream) Events() <-chan types.ConverseStreamOutput { return f.events }
func (f *fakeBedrockStream) Close() error                              { f.closed = true; return nil }
func (f *fakeBedrockStream) Err() error                                { return f.err }

func textEvent(s string) types.ConverseStreamOutput {
	return &types.ConverseStreamOutputMemberContentBlockDelta{
		Value: types.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(0),
			Delta:             &types.ContentBlockDeltaMemberText{Value: s},
		},
	}
}

func stopEvent() types.ConverseStreamOutput {
	return &types.ConverseStreamOutputMemberMessageStop{
		Value: types.MessageStopEvent{StopReason: types.StopReasonEndTurn},
	}
}

type bedrockAPIError struct {
	code, message string
}

func (e *bedrockAPIError) Error() string                 { return e.code + ": " + e.message }
func (e *bedrockAPIError) ErrorCode() string             { return e.code }
func (e *bedrockAPIError) ErrorMessage() string          { return e.message }
func (e *bedrockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func collectDeltas(ch <-chan Delta) []Delta {
	var out []Delta
	for d := range ch {
		out = append(out, d)
	}
	return out
}

func TestBedrockStream(t *testing.T) {
	stream := newFakeBedrockStream(nil, textEvent("Hel"), textEvent("lo"), stopEvent(), textEvent("ignored"))
	var got *bedrockruntime.ConverseStreamInput
	p := newBedrockProvider("aws", "anthropic.claude-3-5-sonnet", func(_ context.Context, in *bedrockruntime.ConverseStreamInput) (bedrockStream, error) {
		got = in
		return stream, nil
	}, quietLogger())

	ch, err := p.ChatStream(context.Background(), ChatRequest{
		Messages: []ChatMessage{{Role: domain.PromptRoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	deltas := collectDeltas(ch)

	require.Len(t, deltas, 3)
	assert.Equal(t, "Hel", deltas[0].Content)
	assert.Equal(t, "lo", deltas[1].Content)
	assert.True(t, deltas[2].Done)
	assert.True(t, stream.closed)
	assert.Equal(t, "anthropic.claude-3-5-sonnet", aws.ToString(got.ModelId))
}

func TestBedrockStreamErrorMidway(t *testing.T) {
	stream := newFakeBedrockStream(&bedrockAPIError{code: "ThrottlingException", message: "slow down"}, textEvent("par"))
	p := newBedrockProvider("aws", "m", func(context.Context, *bedrockruntime.ConverseStreamInput) (bedrockStream, error) {
		return stream, nil
	}, quietLogger())

	ch, err := p.ChatStream(context.Background(), ChatRequest{})
	require.NoError(t, err)
	deltas := collectDeltas(ch)

	require.Len(t, deltas, 2)
	assert.Equal(t, "par", deltas[0].Content)
	assert.ErrorIs(t, deltas[1].Err, domain.ErrRateLimit)
	assert.False(t, deltas[1].Done)
}

func TestBedrockOpenError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"throttled", &bedrockAPIError{code: "ThrottlingException", message: "rate"}, domain.ErrRateLimit},
		{"denied", &bedrockAPIError{code: "AccessDeniedException", message: "no"}, domain.ErrAuthInvalid},
		{"too long", &bedrockAPIError{code: "ValidationException", message: "input is too long"}, domain.ErrContextOverflow},
		{"server", &bedrockAPIError{code: "ServiceUnavailableException", message: "down"}, domain.ErrServerFailure},
		{"canceled", context.Canceled, domain.ErrRequestCanceled},
		{"other", errors.New("dial tcp: no route"), domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newBedrockProvider("aws", "m", func(context.Context, *bedrockruntime.ConverseStreamInput) (bedrockStream, error) {
				return nil, tt.err
			}, quietLogger())
			_, err := p.ChatStream(context.Background(), ChatRequest{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestToBedrockInput(t *testing.T) {
	in := toBedrockInput(ChatRequest{
		Model:       "m",
		Temperature: 0.5,
		Messages: []ChatMessage{
			{Role: domain.PromptRoleSystem, Content: "be brief"},
			{Role: domain.PromptRoleUser, Content: "first"},
			{Role: domain.PromptRoleSystem, Content: "notes"},
			{Role: domain.PromptRoleUser, Content: "second"},
			{Role: domain.PromptRoleAssistant, Content: "answer"},
		},
	})

	require.Len(t, in.System, 2)
	require.Len(t, in.Messages, 2)
	assert.Equal(t, types.ConversationRoleUser, in.Messages[0].Role)
	text, ok := in.Messages[0].Content[0].(*types.ContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, "first\n\nsecond", text.Value)
	assert.Equal(t, types.ConversationRoleAssistant, in.Messages[1].Role)
	assert.Equal(t, int32(defaultBedrockMaxTokens), aws.ToInt32(in.InferenceConfig.MaxTokens))
	assert.InDelta(t, 0.5, aws.ToFloat32(in.InferenceConfig.Temperature), 1e-6)
}

func TestServiceStreamsFromBedrock(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(newBedrockProvider("aws", "m", func(context.Context, *bedrockruntime.ConverseStreamInput) (bedrockStream, error) {
		return newFakeBedrockStream(nil, textEvent("Hi"), textEvent(" there"), stopEvent()), nil
	}, quietLogger())))
	svc := NewService(reg, ServiceConfig{DefaultProvider: "aws"}, quietLogger())

	chunks := drain(svc.GenerateFromAI(context.Background(), []domain.PromptFragment{{Role: domain.PromptRoleUser, Text: "hello"}}, domain.AIConfig{}))

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Equal(t, domain.StreamDone, last.Status)
	assert.Equal(t, "Hi there", last.Content)
}

func TestNewFromConfigBedrock(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", t.TempDir()+"/none")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", t.TempDir()+"/none")

	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "aws"
	cfg.LLM.Providers = []config.ProviderConfig{{Name: "aws", Type: "bedrock", Model: "m", Region: "eu-west-1"}}
	svc, err := NewFromConfig(cfg, quietLogger())
	require.NoError(t, err)

	s, err := svc.registry.Get("aws")
	require.NoError(t, err)
	assert.Equal(t, "aws", s.Name())
}
