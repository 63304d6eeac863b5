// Package embeddings turns changeset text into vectors.
//
// Three providers are available: Ollama and OpenAI-compatible servers
// through langchaingo, and FastEmbed running ONNX models in process (cgo
// builds only). NewProvider picks one from config.EmbeddingsConfig.
package embeddings
