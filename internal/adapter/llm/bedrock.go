package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/trace"

	"tidgi-agent/internal/domain"
	"tidgi-agent/internal/infra/config"
	"tidgi-agent/internal/infra/tracer"
)

var _ Streamer = (*BedrockProvider)(nil)

const defaultBedrockMaxTokens = 4096

// bedrockStream is the part of *bedrockruntime.ConverseStreamEventStream
// the provider reads.
type bedrockStream interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

type bedrockOpener func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (bedrockStream, error)

// BedrockProvider streams completions through the AWS Bedrock Converse API.
// Credentials come from the default AWS chain.
type BedrockProvider struct {
	name   string
	model  string
	open   bedrockOpener
	logger *slog.Logger
}

// NewBedrockProvider creates a provider for cfg.Region, defaulting to us-east-1.
func NewBedrockProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)

	return newBedrockProvider(cfg.Name, cfg.Model, func(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (bedrockStream, error) {
		out, err := client.ConverseStream(ctx, in)
		if err != nil {
			return nil, err
		}
		return out.GetStream(), nil
	}, logger), nil
}

func newBedrockProvider(name, model string, open bedrockOpener, logger *slog.Logger) *BedrockProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &BedrockProvider{name: name, model: model, open: open, logger: logger}
}

// Name implements Streamer.
func (p *BedrockProvider) Name() string { return p.name }

// ChatStream implements Streamer.
func (p *BedrockProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan Delta, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.stream_start",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
			tracer.IntAttr("llm.messages", len(req.Messages)),
		),
	)
	defer span.End()

	stream, err := p.open(ctx, toBedrockInput(req))
	if err != nil {
		err = mapBedrockError(err)
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	p.logger.Debug("llm stream opened", "provider", p.name, "model", req.Model)

	ch := make(chan Delta, 16)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(d Delta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for evt := range stream.Events() {
			switch e := evt.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				if text, ok := e.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && text.Value != "" {
					if !send(Delta{Content: text.Value}) {
						return
					}
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				send(Delta{Done: true})
				return
			}
		}
		if err := stream.Err(); err != nil {
			send(Delta{Err: mapBedrockError(err)})
		}
	}()
	return ch, nil
}

// toBedrockInput moves system messages into the system blocks and joins
// consecutive turns of the same role, which Converse rejects.
func toBedrockInput(req ChatRequest) *bedrockruntime.ConverseStreamInput {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultBedrockMaxTokens
	}
	in := &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(req.Model),
		InferenceConfig: &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))},
	}
	if req.Temperature > 0 {
		in.InferenceConfig.Temperature = aws.Float32(float32(req.Temperature))
	}
	if req.TopP > 0 {
		in.InferenceConfig.TopP = aws.Float32(float32(req.TopP))
	}

	var (
		role  types.ConversationRole
		parts []string
	)
	flush := func() {
		if len(parts) == 0 {
			return
		}
		in.Messages = append(in.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: strings.Join(parts, "\n\n")}},
		})
		parts = nil
	}

	for _, m := range req.Messages {
		var r types.ConversationRole
		switch m.Role {
		case domain.PromptRoleSystem:
			in.System = append(in.System, &types.SystemContentBlockMemberText{Value: m.Content})
			continue
		case domain.PromptRoleAssistant:
			r = types.ConversationRoleAssistant
		default:
			r = types.ConversationRoleUser
		}
		if r != role {
			flush()
			role = r
		}
		parts = append(parts, m.Content)
	}
	flush()
	return in
}

func mapBedrockError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.ErrorMessage()
		switch code := apiErr.ErrorCode(); {
		case code == "ThrottlingException" || code == "TooManyRequestsException":
			return fmt.Errorf("%w: %s", domain.ErrRateLimit, msg)
		case code == "AccessDeniedException" || code == "UnrecognizedClientException":
			return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, msg)
		case code == "ValidationException" && strings.Contains(msg, "too long"):
			return fmt.Errorf("%w: %s", domain.ErrContextOverflow, msg)
		case code == "ModelNotReadyException" || code == "ServiceUnavailableException" ||
			code == "InternalServerException":
			return fmt.Errorf("%w: %s", domain.ErrServerFailure, msg)
		}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrRequestCanceled, err)
	}
	return fmt.Errorf("%w: bedrock: %v", domain.ErrProviderError, err)
}
