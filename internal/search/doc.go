// Package search implements two-stage retrieval: a brute-force dense
// Retriever selects candidates, a Reranker reorders them with a pairwise
// relevance scorer, and Engine ties both together with per-stage timing.
package search
