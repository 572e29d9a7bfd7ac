package opt

import "sync"

type runKey struct {
	Tenant    string
	Component string
	Algo      string
}

var (
	mu       sync.Mutex
	runStore = map[runKey]Metrics{}
)

// RecordMetrics keeps the latest run metrics per tenant/component/algorithm
// for the admin surface.
func RecordMetrics(tenant, component, algo string, m Metrics) {
	mu.Lock()
	runStore[runKey{Tenant: tenant, Component: component, Algo: algo}] = m
	mu.Unlock()
}

// GetMetrics returns the recorded metrics for a tenant/component keyed by
// algorithm.
func GetMetrics(tenant, component string) map[string]Metrics {
	mu.Lock()
	defer mu.Unlock()
	out := map[string]Metrics{}
	for k, v := range runStore {
		if k.Tenant == tenant && k.Component == component {
			out[k.Algo] = v
		}
	}
	return out
}
