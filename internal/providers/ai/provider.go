package ai

import "context"

// GenerateRequest describes one image to produce. ReferenceImages carry the
// sketch/logo/front-view URLs that condition the generation.
type GenerateRequest struct {
	Prompt          string
	ReferenceImages []string
	Size            string
}

type GenerateResult struct {
	URL string
}

// Provider is the external image generation backend. Implementations must
// honor ctx cancellation; the caller wraps every call in a deadline.
type Provider interface {
	GenerateImage(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
