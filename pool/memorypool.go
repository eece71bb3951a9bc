// File: pool/memorypool.go
// Package pool implements the hierarchical MemoryPool arena described in
// spec.md §3: destroying a pool destroys its children and runs every
// resource's release callback exactly once.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Grounded on the teacher's manager-per-key pool pattern (pool/bufferpool.go,
// pool/numapool.go in the retrieval pack): a parent owns a registry of
// children keyed by creation order, and release cascades top-down. Unlike
// the teacher's buffer pools (which pool []byte by size class), this pool
// pools *ownership*: every PollSet and SendfileData file-descriptor release
// callback registered under a child pool fires when that child (or any
// ancestor) is destroyed. Sockets themselves are not tracked by any pool.
package pool

import "sync"

// Releasable is anything a MemoryPool can own the teardown of.
type Releasable interface {
	Release()
}

// releaseFunc adapts a plain func() to Releasable.
type releaseFunc func()

func (f releaseFunc) Release() { f() }

// MemoryPool is a node in the arena hierarchy. The zero value is not usable;
// construct with NewRootPool or (*MemoryPool).NewChild.
type MemoryPool struct {
	mu        sync.Mutex
	parent    *MemoryPool
	children  map[*MemoryPool]struct{}
	resources []Releasable
	destroyed bool
}

// NewRootPool creates a pool with no parent. The Endpoint owns exactly one:
// the root pool in spec.md §4.1 step 1.
func NewRootPool() *MemoryPool {
	return &MemoryPool{children: make(map[*MemoryPool]struct{})}
}

// NewChild creates a pool whose lifetime is bounded by its parent's.
// Destroying p later destroys every child transitively.
func (p *MemoryPool) NewChild() *MemoryPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	child := &MemoryPool{parent: p, children: make(map[*MemoryPool]struct{})}
	if p.destroyed {
		// Parent already gone: hand back an already-destroyed child so
		// callers observe a consistent (if useless) pool rather than racing
		// a resource into a parent that will never release it.
		child.destroyed = true
		return child
	}
	p.children[child] = struct{}{}
	return child
}

// Track registers a release callback that fires when this pool (or an
// ancestor) is destroyed. It is the MemoryPool analogue of allocating a
// resource "from" the pool.
func (p *MemoryPool) Track(release func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		release()
		return
	}
	p.resources = append(p.resources, releaseFunc(release))
}

// Destroyed reports whether Destroy has already run on this pool.
func (p *MemoryPool) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// Destroy recursively destroys every child, depth first, then releases every
// resource tracked directly on this pool. Destroy is idempotent.
// If p has a parent, Destroy does not detach p from it — callers that want
// p removed from its parent's child set should let the parent's own Destroy
// reach it, or call DestroyAndDetach.
func (p *MemoryPool) Destroy() {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return
	}
	p.destroyed = true
	children := make([]*MemoryPool, 0, len(p.children))
	for c := range p.children {
		children = append(children, c)
	}
	resources := p.resources
	p.resources = nil
	p.children = nil
	p.mu.Unlock()

	for _, c := range children {
		c.Destroy()
	}
	// Release in reverse registration order, mirroring stack unwind.
	for i := len(resources) - 1; i >= 0; i-- {
		resources[i].Release()
	}
}

// DestroyAndDetach destroys p and removes it from its parent's child set, so
// a long-lived parent doesn't accumulate references to short-lived children
// (e.g. the per-socket pool of a completed Sendfile transfer).
func (p *MemoryPool) DestroyAndDetach() {
	parent := p.parent
	p.Destroy()
	if parent == nil {
		return
	}
	parent.mu.Lock()
	delete(parent.children, p)
	parent.mu.Unlock()
}
