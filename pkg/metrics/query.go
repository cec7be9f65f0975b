package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// ConversationMetrics is the aggregated token usage for one conversation.
type ConversationMetrics struct {
	ConvID           string `json:"conv_id"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	TotalTokens      int64  `json:"total_tokens"`
	Steps            int64  `json:"steps"`
}

// QueryService reads back agent_* metrics from a running Prometheus
// server, for conversations whose runtime already pushed them via
// PrometheusRecorder.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService connects to the Prometheus server at prometheusURL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("metrics: create prometheus client: %w", err)
	}
	return &QueryService{client: client, queryAPI: v1.NewAPI(client)}, nil
}

func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("metrics: query %q: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetConversationMetrics retrieves aggregated token and step counts for
// a single conversation across every persona that has spoken in it.
func (q *QueryService) GetConversationMetrics(ctx context.Context, convID string) (*ConversationMetrics, error) {
	m := &ConversationMetrics{ConvID: convID}

	prompt, err := q.scalar(ctx, fmt.Sprintf(`sum(agent_tokens_total{conv_id=%q, type="prompt"})`, convID))
	if err != nil {
		return nil, err
	}
	m.PromptTokens = int64(prompt)

	completion, err := q.scalar(ctx, fmt.Sprintf(`sum(agent_tokens_total{conv_id=%q, type="completion"})`, convID))
	if err != nil {
		return nil, err
	}
	m.CompletionTokens = int64(completion)
	m.TotalTokens = m.PromptTokens + m.CompletionTokens

	steps, err := q.scalar(ctx, fmt.Sprintf(`sum(agent_steps_total{conv_id=%q})`, convID))
	if err != nil {
		return nil, err
	}
	m.Steps = int64(steps)

	return m, nil
}

// MemoryPressure retrieves the current working-context fullness ratio
// for a conversation (spec.md's "memory pressure warning" threshold).
func (q *QueryService) MemoryPressure(ctx context.Context, convID string) (float64, error) {
	return q.scalar(ctx, fmt.Sprintf(`agent_memory_pressure_ratio{conv_id=%q}`, convID))
}
