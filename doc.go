// Package kbrag implements a retrieval-augmented generation service: ingest
// markdown/PDF/text documents, chunk and embed them, and answer queries by
// fusing local vector search, keyword search, and optional live web search
// through an LLM generation step.
//
// # Pipeline
//
// Extractor -> Chunker -> Embedder -> VectorIndex, fed by ingestion.
// Queries run TwoStepRetriever + KeywordIndex + optional web tiers through
// HybridRetriever's reciprocal-rank fusion, then Generator, with an
// optional SemanticCache in front. Orchestrator wires every stage and
// implements the ingest/query workflows; internal/httpapi exposes them over
// HTTP.
//
// # Running the service
//
//	kbragd serve --config config.yaml
//
// See cmd/kbragd for the CLI entrypoint and internal/config for the
// configuration shape.
package kbrag
