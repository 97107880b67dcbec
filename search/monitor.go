package search

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	AfterQueryEmbedding(dimensions int)
	AfterVectorQuery(ids []string)
	Hit(hit *Hit)
	Finish(results []*Hit)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)              {}
func (n *noopMonitor) AfterQueryEmbedding(_ int)   {}
func (n *noopMonitor) AfterVectorQuery(_ []string) {}
func (n *noopMonitor) Hit(_ *Hit)                  {}
func (n *noopMonitor) Finish(_ []*Hit)             {}
