package ollama

import (
	"context"
	"errors"

	"github.com/kirillkom/tanya-lalin/internal/core/domain"
)

const answerTemperature = 0.3

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateAnswer(ctx context.Context, question string, results []domain.FusedResult, history []domain.Message) (string, error) {
	if len(results) == 0 {
		return domain.NoRelevantChunksAnswer, nil
	}

	var answer string
	err := g.client.execute(ctx, "ollama_generate", func(callCtx context.Context) error {
		out, genErr := g.client.generateText(callCtx, answerSystemPrompt, buildAnswerPrompt(question, results, history), answerTemperature)
		if genErr != nil {
			return genErr
		}
		answer = out
		return nil
	})
	if err != nil {
		return "", wrapTemporaryIfNeeded("generate answer", err)
	}
	if answer == "" {
		return "", domain.WrapError(domain.ErrTemporary, "generate answer", errors.New("empty response"))
	}
	return answer, nil
}
