package limiter

import (
	"context"

	"codegen/pkg/agent/llm"
	"codegen/pkg/config"
	"codegen/pkg/logx"
	"codegen/pkg/utils"
)

// Middleware gates each call on the run budget and the model's token bucket,
// then charges the reported usage to the run.
func Middleware(l *Limiter) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if l == nil || !l.Enabled() {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				runID := logx.RunID(ctx)
				if err := l.CheckBudget(runID); err != nil {
					return llm.CompletionResponse{}, err
				}
				model := next.GetModelName()
				if err := l.Wait(ctx, model, estimatePrompt(req)); err != nil {
					return llm.CompletionResponse{}, err
				}

				resp, err := next.Complete(ctx, req)
				if err == nil {
					l.Spend(runID, config.CalculateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens))
				}
				return resp, err
			},
			next.GetModelName,
		)
	}
}

func estimatePrompt(req llm.CompletionRequest) int {
	n := 0
	for i := range req.Messages {
		n += utils.CountTokensSimple(req.Messages[i].Content)
	}
	return n
}
