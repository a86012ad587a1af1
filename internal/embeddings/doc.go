// Package embeddings provides embedding generation via multiple providers.
//
// Supports Ollama and TEI (HTTP services) and FastEmbed (local ONNX, CGO
// builds only). NewProvider selects the provider at runtime and derives the
// vector dimension from the model name unless one is configured. Input text
// is truncated to MaxInputChars runes before it is sent.
package embeddings
