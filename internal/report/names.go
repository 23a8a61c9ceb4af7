package report

import (
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// nameCache memoizes demangled symbols; reports name the same function once
// per match.
type nameCache struct {
	mu    sync.RWMutex
	names map[string]string
	hits  int
}

var names = &nameCache{names: make(map[string]string)}

// Demangle returns the demangled form of a symbol, or the symbol itself when
// it is not mangled. Results are cached.
func Demangle(mangled string) string {
	names.mu.RLock()
	if cached, ok := names.names[mangled]; ok {
		names.mu.RUnlock()
		names.mu.Lock()
		names.hits++
		names.mu.Unlock()
		return cached
	}
	names.mu.RUnlock()

	demangled := demangle.Filter(mangled, demangle.NoClones)

	names.mu.Lock()
	names.names[mangled] = demangled
	names.mu.Unlock()
	return demangled
}

// DemangleStats returns the number of cached symbols and cache hits.
func DemangleStats() (symbols, hits int) {
	names.mu.RLock()
	defer names.mu.RUnlock()
	return len(names.names), names.hits
}
