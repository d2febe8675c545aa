package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sony/gobreaker"
)

const bedrockMaxTokens = 256

// bedrockInvoker is the seam between BedrockProvider and the SDK.
type bedrockInvoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// BedrockProvider adjudicates via AWS Bedrock's Claude-on-Bedrock model
// family, as the managed-cloud alternative to the direct Anthropic API.
type BedrockProvider struct {
	invoker bedrockInvoker
	breaker *gobreaker.CircuitBreaker
}

// NewBedrockProvider resolves AWS credentials/region via the default SDK
// chain and builds a provider targeting modelID.
func NewBedrockProvider(ctx context.Context, region, modelID string) (*BedrockProvider, error) {
	if modelID == "" {
		return nil, fmt.Errorf("bedrock provider: model ID is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock provider: failed to load AWS config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(cfg)
	return newBedrockProvider(&sdkBedrockInvoker{client: client, modelID: modelID}), nil
}

func newBedrockProvider(inv bedrockInvoker) *BedrockProvider {
	return &BedrockProvider{
		invoker: inv,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "bedrock-adjudicator",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Name identifies this provider in the chain and in logs.
func (p *BedrockProvider) Name() string { return "bedrock" }

// IsAvailable reports whether the breaker currently admits requests.
func (p *BedrockProvider) IsAvailable(ctx context.Context) bool {
	return p.breaker.State() != gobreaker.StateOpen
}

// Generate asks the model to adjudicate prompt, routed through the breaker.
func (p *BedrockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.invoker.Invoke(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("bedrock provider: %w", err)
	}
	return result.(string), nil
}

type bedrockRequestBody struct {
	AnthropicVersion string               `json:"anthropic_version"`
	MaxTokens        int                  `json:"max_tokens"`
	Messages         []bedrockRequestTurn `json:"messages"`
}

type bedrockRequestTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponseBody struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type sdkBedrockInvoker struct {
	client  *bedrockruntime.Client
	modelID string
}

func (s *sdkBedrockInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(bedrockRequestBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        bedrockMaxTokens,
		Messages:         []bedrockRequestTurn{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	out, err := s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(s.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", err
	}

	var parsed bedrockResponseBody
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("empty response content")
	}
	return parsed.Content[0].Text, nil
}
