// Copyright 2024 The jinif authors. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package jinif

import "fmt"

// NoSuperclass is the sentinel GetSuperClass returns for a class recorded
// with no superclass, i.e. java/lang/Object itself.
const NoSuperclass = "0"

// ClassPath is the abstract oracle the frame computer (§4.J) consults for
// reference-type joins. The core depends only on this interface; §4.O
// supplies a concrete, file-backed implementation as an outer layer.
type ClassPath interface {
	// CommonSuperClass returns the least common superclass of two JVM
	// internal class names. Implementations may load classes on demand.
	CommonSuperClass(nameA, nameB string) (string, error)

	// IsAssignableFrom reports whether sub is sup or a (transitive) subtype
	// of sup.
	IsAssignableFrom(sub, sup string) (bool, error)
}

// HierarchyCache is an in-memory map from class name to super-class name,
// populated incrementally as classes are parsed (§4.L). It re-architects the
// teacher's style of small, explicit map[key]value lookup tables (e.g. the
// ImageDirectoryEntry -> string table in pe.go's String method) into a
// mutation-capable cache, and re-architects the spec's file-scope global
// hierarchy table into an explicit value the host constructs and owns.
//
// HierarchyCache is not internally synchronized: per §5, a cache shared
// across goroutines must be serialized by the caller.
type HierarchyCache struct {
	super map[string]string
}

// NewHierarchyCache creates an empty cache.
func NewHierarchyCache() *HierarchyCache {
	return &HierarchyCache{super: make(map[string]string)}
}

// AddClass extracts the (this, super) pair from a parsed ClassFile's header
// and records it. Calling AddClass again for the same class name overwrites
// the previously recorded superclass.
func (h *HierarchyCache) AddClass(cf *ClassFile) error {
	name, err := cf.Pool.GetClassName(cf.ThisClass)
	if err != nil {
		return fmt.Errorf("jinif: resolving this_class: %w", err)
	}
	super := NoSuperclass
	if cf.SuperClass != 0 {
		super, err = cf.Pool.GetClassName(cf.SuperClass)
		if err != nil {
			return fmt.Errorf("jinif: resolving super_class: %w", err)
		}
	}
	h.super[name] = super
	return nil
}

// GetSuperClass returns the recorded superclass of name, or NoSuperclass
// ("0") when name is unknown to the cache or was recorded with no
// superclass.
func (h *HierarchyCache) GetSuperClass(name string) string {
	if s, ok := h.super[name]; ok {
		return s
	}
	return NoSuperclass
}

// IsDefined reports whether name has been recorded in the cache.
func (h *HierarchyCache) IsDefined(name string) bool {
	_, ok := h.super[name]
	return ok
}

// ClassLoader resolves a class name to its parsed bytes on behalf of
// CachingClassPath, the way an agent-provided resource loader resolves a
// class the hierarchy cache has not seen yet (§4.L).
type ClassLoader func(name string) (*ClassFile, error)

// CachingClassPath is the default, in-core ClassPath: a HierarchyCache
// backed by a lazy ClassLoader. It walks superclass chains one hop at a
// time, loading and caching classes on demand, and falls back to
// java/lang/Object whenever the loader cannot resolve a name — the same
// fallback §4.I requires of Join.
type CachingClassPath struct {
	cache  *HierarchyCache
	loader ClassLoader
}

// NewCachingClassPath builds a ClassPath over cache, consulting loader for
// any class name not yet present in cache. cache may be nil, in which case a
// fresh one is created.
func NewCachingClassPath(cache *HierarchyCache, loader ClassLoader) *CachingClassPath {
	if cache == nil {
		cache = NewHierarchyCache()
	}
	return &CachingClassPath{cache: cache, loader: loader}
}

// Cache exposes the underlying hierarchy cache, e.g. so a host can
// pre-populate it before frame computation runs.
func (c *CachingClassPath) Cache() *HierarchyCache { return c.cache }

func (c *CachingClassPath) ensureLoaded(name string) {
	if c.cache.IsDefined(name) || c.loader == nil || name == "java/lang/Object" {
		return
	}
	cf, err := c.loader(name)
	if err != nil {
		return
	}
	_ = c.cache.AddClass(cf)
}

func (c *CachingClassPath) ancestors(name string) []string {
	chain := []string{name}
	seen := map[string]bool{name: true}
	cur := name
	for {
		c.ensureLoaded(cur)
		super := c.cache.GetSuperClass(cur)
		if super == NoSuperclass || super == "" || seen[super] {
			break
		}
		chain = append(chain, super)
		seen[super] = true
		cur = super
	}
	return chain
}

// CommonSuperClass implements ClassPath by walking both ancestor chains and
// returning the first name that appears in both, falling back to
// java/lang/Object when the chains never intersect (e.g. an interface on one
// side).
func (c *CachingClassPath) CommonSuperClass(nameA, nameB string) (string, error) {
	if nameA == nameB {
		return nameA, nil
	}
	chainA := c.ancestors(nameA)
	inA := make(map[string]bool, len(chainA))
	for _, n := range chainA {
		inA[n] = true
	}
	for _, n := range c.ancestors(nameB) {
		if inA[n] {
			return n, nil
		}
	}
	return "java/lang/Object", nil
}

// IsAssignableFrom reports whether sub's ancestor chain contains sup.
func (c *CachingClassPath) IsAssignableFrom(sub, sup string) (bool, error) {
	if sub == sup {
		return true, nil
	}
	for _, n := range c.ancestors(sub) {
		if n == sup {
			return true, nil
		}
	}
	return false, nil
}
