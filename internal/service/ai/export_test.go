package ai

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
)

// UseChatModel routes every NewCompleter call in the test to m.
func UseChatModel(t *testing.T, m model.BaseChatModel) {
	t.Helper()
	orig := chatModelFactory
	chatModelFactory = func(ctx context.Context, s ProviderSettings) (model.BaseChatModel, error) {
		return m, nil
	}
	t.Cleanup(func() { chatModelFactory = orig })
}
