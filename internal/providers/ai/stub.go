package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// stubProvider returns deterministic URLs derived from the prompt so local
// development and tests run without an API key or network.
type stubProvider struct{}

func NewStubProvider() Provider {
	return &stubProvider{}
}

func (p *stubProvider) GenerateImage(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(req.Prompt) + strings.Join(req.ReferenceImages, "|")))
	return &GenerateResult{
		URL: "https://images.genpire.dev/stub/" + hex.EncodeToString(sum[:8]) + ".png",
	}, nil
}
