// Package engine orchestrates the full question-answering pipeline:
// query analysis, multi-channel retrieval fan-out, weighted re-ranking,
// an adaptive confidence gate, and bounded answer synthesis.
//
// The engine does not own transports or models. Retrieval is performed
// through the Store interface, embeddings and completions through
// ModelClient, and question parsing through Analyzer, so the pipeline is
// testable against in-memory fakes.
package engine
