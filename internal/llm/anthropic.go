package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// AnthropicConfig configures the Anthropic client.
type AnthropicConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey string
	// UseAWSBedrock routes calls through AWS Bedrock instead of the API.
	UseAWSBedrock bool
	// AWSRegion is the Bedrock region (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name.
	AWSProfile string
	// DefaultMaxTokens applies when a request does not set MaxTokens.
	DefaultMaxTokens int64
}

// AnthropicClient implements Client over the Anthropic SDK, with token
// tracking across calls.
type AnthropicClient struct {
	inner            anthropic.Client
	model            anthropic.Model
	defaultMaxTokens int64

	mu          sync.Mutex
	totalInput  int64
	totalOutput int64
}

// NewAnthropicClient creates a Client for the Anthropic API or Bedrock.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := cfg.DefaultMaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicClient{
		inner:            anthropic.NewClient(opts...),
		model:            model,
		defaultMaxTokens: maxTokens,
	}, nil
}

// translateModelForBedrock converts standard model names to Bedrock
// cross-region inference profile format (us.anthropic.{model}-v1:0).
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	if strings.HasPrefix(string(model), "us.anthropic") {
		return model
	}
	return anthropic.Model("us.anthropic." + string(model) + "-v1:0")
}

// IsConfigured always returns true: construction fails otherwise.
func (c *AnthropicClient) IsConfigured() bool { return true }

// Generate performs one Messages call and normalizes failures into
// *GenerateError with a retryability flag.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := c.inner.Messages.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, normalizeAPIError(ctx, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	c.mu.Lock()
	c.totalInput += resp.Usage.InputTokens
	c.totalOutput += resp.Usage.OutputTokens
	c.mu.Unlock()

	return &GenerateResponse{
		Text: text.String(),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
	}, nil
}

// buildParams translates a GenerateRequest into SDK call parameters.
// A zero temperature is left unset so the provider picks its default.
func (c *AnthropicClient) buildParams(req GenerateRequest) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.defaultMaxTokens
	}

	prompt := req.Task
	if req.Context != "" {
		prompt = req.Context + "\n\n" + req.Task
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

// TotalUsage reports cumulative token consumption across calls.
func (c *AnthropicClient) TotalUsage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Usage{InputTokens: c.totalInput, OutputTokens: c.totalOutput}
}

// normalizeAPIError converts SDK failures into *GenerateError.
// Cancellation and deadline failures are not retryable from the
// caller's perspective; rate limits and server errors are.
func normalizeAPIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &GenerateError{Message: ctx.Err().Error()}
	}

	msg := err.Error()
	retryable := strings.Contains(msg, "429") ||
		strings.Contains(msg, "529") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "overloaded")
	return &GenerateError{Message: msg, Retryable: retryable}
}
