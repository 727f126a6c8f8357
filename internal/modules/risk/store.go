package risk

import "sort"

// DefaultHistoryCap is one year of trading days.
const DefaultHistoryCap = 252

// ReturnStore keeps a rolling window of daily returns per asset.
//
// The store is not synchronized. The Engine owns the only instance and guards
// every access with its lock.
type ReturnStore struct {
	cap    int
	series map[string][]float64
}

// NewReturnStore creates an empty store. A non-positive cap falls back to
// DefaultHistoryCap.
func NewReturnStore(capacity int) *ReturnStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &ReturnStore{
		cap:    capacity,
		series: make(map[string][]float64),
	}
}

// Append adds a return to the end of the asset's series, evicting the oldest
// entry once the series is at capacity.
func (s *ReturnStore) Append(asset string, value float64) {
	rets := s.series[asset]
	if len(rets) < s.cap {
		s.series[asset] = append(rets, value)
		return
	}

	// Shift in place so the backing array never grows past cap
	copy(rets, rets[1:])
	rets[len(rets)-1] = value
}

// Returns returns a copy of the asset's series in insertion (oldest-first)
// order. Unknown assets yield an empty slice.
func (s *ReturnStore) Returns(asset string) []float64 {
	rets := s.series[asset]
	out := make([]float64, len(rets))
	copy(out, rets)
	return out
}

// Len returns the number of stored returns for asset.
func (s *ReturnStore) Len(asset string) int {
	return len(s.series[asset])
}

// Cap returns the per-asset capacity.
func (s *ReturnStore) Cap() int {
	return s.cap
}

// CommonLength returns the shortest series length across assets. An asset
// that has never been seen counts as length zero.
func (s *ReturnStore) CommonLength(assets []string) int {
	if len(assets) == 0 {
		return 0
	}

	minLen := -1
	for _, asset := range assets {
		l := len(s.series[asset])
		if minLen < 0 || l < minLen {
			minLen = l
		}
	}
	return minLen
}

// Assets returns the tracked asset ids, sorted.
func (s *ReturnStore) Assets() []string {
	assets := make([]string, 0, len(s.series))
	for asset := range s.series {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// head returns the first n entries of the asset's series without copying.
// Callers must hold the engine lock and must not retain the slice.
func (s *ReturnStore) head(asset string, n int) []float64 {
	return s.series[asset][:n]
}
