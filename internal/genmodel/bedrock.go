package genmodel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// bedrockModels maps this package's tier/model names onto concrete
// Bedrock model ids, mirroring the teacher's script/nova.go novaModels
// table, extended with the "legacy-fallback" tier.
var bedrockModels = map[string]string{
	"legacy-fallback": "us.amazon.nova-2-lite-v1:0",
	"nova-lite":       "us.amazon.nova-2-lite-v1:0",
}

// BedrockBackend calls models through AWS Bedrock's Converse API, one
// client per region (Bedrock is genuinely region-partitioned, unlike the
// direct Anthropic API AnthropicBackend wraps), caching clients across
// calls since Policy retries the same region repeatedly.
type BedrockBackend struct {
	mu      sync.Mutex
	clients map[string]*bedrockruntime.Client
}

func NewBedrockBackend() *BedrockBackend {
	return &BedrockBackend{clients: make(map[string]*bedrockruntime.Client)}
}

func (b *BedrockBackend) clientFor(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.clients[region]; ok {
		return c, nil
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("genmodel: load AWS config for %s: %w", region, err)
	}
	client := bedrockruntime.NewFromConfig(cfg)
	b.clients[region] = client
	return client, nil
}

func (b *BedrockBackend) Call(ctx context.Context, region, model, prompt string) (string, Outcome, error) {
	modelID, ok := bedrockModels[model]
	if !ok {
		return "", OutcomeModelUnavailable, errModelUnavailable(model)
	}

	client, err := b.clientFor(ctx, region)
	if err != nil {
		return "", OutcomeRegionUnavailable, err
	}

	resp, err := client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(modelID),
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			},
		},
	})
	if err != nil {
		return "", classifyBedrockError(err), err
	}

	text := extractBedrockText(resp)
	if text == "" {
		return "", OutcomeTransient, errEmptyResponse
	}
	return text, OutcomeSuccess, nil
}

func extractBedrockText(resp *bedrockruntime.ConverseOutput) string {
	if resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			return tb.Value
		}
	}
	return ""
}

func classifyBedrockError(err error) Outcome {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "region") || strings.Contains(msg, "endpoint"):
		return OutcomeRegionUnavailable
	case strings.Contains(msg, "validationexception") && strings.Contains(msg, "model"):
		return OutcomeModelUnavailable
	case strings.Contains(msg, "throttl") || strings.Contains(msg, "timeout") || strings.Contains(msg, "servererror"):
		return OutcomeTransient
	default:
		return OutcomeTransient
	}
}
