package config

import (
	"context"
	"log/slog"
)

// loggerKey is used to store the logger in a command context.
type loggerKey struct{}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() any {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// documentKey is used to store the loaded Document in a command context.
type documentKey struct{}

// WithDocument returns a copy of ctx carrying doc.
func WithDocument(ctx context.Context, doc *Document) context.Context {
	return context.WithValue(ctx, documentKey{}, doc)
}

// GetDocument retrieves the Document stored by WithDocument, or nil.
func GetDocument(ctx context.Context) *Document {
	if ctx == nil {
		return nil
	}
	doc, _ := ctx.Value(documentKey{}).(*Document)
	return doc
}
