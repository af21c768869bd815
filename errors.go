package kgchat

import "errors"

var (
	// ErrConversationNotFound is returned when a conversation ID does not exist.
	ErrConversationNotFound = errors.New("kgchat: conversation not found")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("kgchat: invalid configuration")

	// ErrUnsupportedFormat is returned for unrecognized file formats.
	ErrUnsupportedFormat = errors.New("kgchat: unsupported document format")

	// ErrParsingFailed is returned when document parsing fails.
	ErrParsingFailed = errors.New("kgchat: parsing failed")

	// ErrEmptyQuery is returned when a chat query is blank.
	ErrEmptyQuery = errors.New("kgchat: empty query")

	// ErrInvalidGraph is returned when an imported graph is malformed.
	ErrInvalidGraph = errors.New("kgchat: invalid graph")

	// ErrEmbeddingUnavailable is returned by node search when no embedding
	// provider is configured.
	ErrEmbeddingUnavailable = errors.New("kgchat: embedding provider not configured")
)
