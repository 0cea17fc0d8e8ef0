// Package types provides shared domain types for the askcode retrieval engine.
//
// # Core Types
//
// Fragment represents one indexed unit of source code with the metadata the
// ingestion pipeline attaches to it (signature, parent chain, tags, call
// relations, embed type and version):
//
//	frag := types.Fragment{
//	    FilePath:  "internal/net/balancer.py",
//	    StartLine: 40,
//	    EndLine:   96,
//	    Signature: "load_balance",
//	    EmbedType: types.EmbedDef,
//	}
//
// ChannelResult tags a fragment with the retrieval channel that produced it
// and, for vector channels, the similarity distance. Use the WithDistance and
// NoDistance constructors so the reranker can distinguish the two cases
// without sentinel values.
//
// ScoredFragment is the post-merge form: deduplicated by the
// (FilePath, StartLine, EndLine, EmbedType) key and carrying the composite
// FinalScore, which is always >= 0.
package types
