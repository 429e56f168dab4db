package llm

import "context"

// DocumentAnalyzer turns a document image plus instructions into raw text.
// Implementations report failures as common.AppError values wrapping one of
// ErrInvalidInput, ErrProviderUnavailable, ErrProviderTimeout or
// ErrProviderEmptyResult.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, image []byte, instructions string) (string, error)
}

// AnalyzerFunc adapts a function to DocumentAnalyzer.
type AnalyzerFunc func(ctx context.Context, image []byte, instructions string) (string, error)

func (f AnalyzerFunc) Analyze(ctx context.Context, image []byte, instructions string) (string, error) {
	return f(ctx, image, instructions)
}
