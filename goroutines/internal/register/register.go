// Package register keeps a registry of named goroutines.Pool(s) so that every
// pool traced under a name has a unique one.
package register

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Named is anything that can be registered.
type Named interface {
	GetName() string
}

var registry = map[string]Named{}
var mu = sync.RWMutex{}

// Register registers a name for a pool in the registry. Pools with an empty
// name are not registered.
func Register(p Named) error {
	mu.Lock()
	defer mu.Unlock()

	name := p.GetName()
	if name == "" {
		return nil
	}

	if _, ok := registry[name]; ok {
		return fmt.Errorf("name %q already taken", name)
	}

	registry[name] = p
	return nil
}

// Unregister removes the pool from the registry.
func Unregister(p Named) {
	mu.Lock()
	defer mu.Unlock()

	name := p.GetName()
	if registry[name] == p {
		delete(registry, name)
	}
}

// Registered returns true if name is in the registry.
func Registered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := registry[name]
	return ok
}

var numOrHyphen = regexp.MustCompile(`[0-9-\s]`)

// ValidateBaseName returns an error if the name contains numbers, spaces or hyphens.
func ValidateBaseName(name string) error {
	if numOrHyphen.MatchString(name) {
		return fmt.Errorf("pool name %q cannot contain numbers, spaces or hyphens", name)
	}
	return nil
}

// NewName takes the current name of the pool and returns the next candidate:
// "name" becomes "name-1", "name-1" becomes "name-2" and so on.
func NewName(name string) string {
	base, num, found := cutLast(name, "-")
	if !found {
		return name + "-1"
	}

	n, err := strconv.Atoi(num)
	if err != nil {
		panic(fmt.Sprintf("register is broken, name %s is invalid", name))
	}
	return fmt.Sprintf("%s-%d", base, n+1)
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
