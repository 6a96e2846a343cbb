// Package eval measures ranking quality against relevance judgments and
// reports stage latency across candidate-set sizes.
package eval

// RecallAtK returns 1.0 when any of the first k ranked ids is relevant and
// 0.0 otherwise. It is a per-query hit indicator: averaged over queries it
// gives the hit rate, not the fraction of relevant documents found.
func RecallAtK(rankedIDs []string, relevant []string, k int) float64 {
	if k <= 0 || len(relevant) == 0 {
		return 0
	}
	want := make(map[string]struct{}, len(relevant))
	for _, id := range relevant {
		want[id] = struct{}{}
	}
	for _, id := range rankedIDs[:min(k, len(rankedIDs))] {
		if _, ok := want[id]; ok {
			return 1
		}
	}
	return 0
}
