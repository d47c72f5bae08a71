// Package mempool reuses float32 tensor buffers between classifier calls.
// Buffers are grouped by size class so the fixed model input of one model
// is served from the same bucket on every call.
package mempool

import (
	"sync"
	"sync/atomic"
)

const classStep = 1024

// Pool is a set of sync.Pools keyed by size class.
type Pool struct {
	buckets sync.Map // size class -> *sync.Pool
	gets    atomic.Int64
	allocs  atomic.Int64
}

// Stats counts pool activity.
type Stats struct {
	Gets        int64
	Allocations int64
}

// New returns an empty pool.
func New() *Pool { return &Pool{} }

// Default is the process-wide tensor pool.
var Default = New()

// sizeClass rounds n up to a multiple of classStep, with classStep as the floor.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return ((n + classStep - 1) / classStep) * classStep
}

func (p *Pool) bucket(cls int) *sync.Pool {
	if b, ok := p.buckets.Load(cls); ok {
		return b.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
	}
	b, _ := p.buckets.LoadOrStore(cls, &sync.Pool{})
	return b.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// Get returns a buffer of length n. Contents are not zeroed.
func (p *Pool) Get(n int) []float32 {
	if n < 0 {
		n = 0
	}
	p.gets.Add(1)
	cls := sizeClass(n)
	if buf, ok := p.bucket(cls).Get().([]float32); ok && cap(buf) >= cls {
		return buf[:n]
	}
	p.allocs.Add(1)
	return make([]float32, n, cls)
}

// Put hands a buffer back. Buffers whose capacity is not an exact size
// class are dropped so a bucket never serves a short slice.
func (p *Pool) Put(buf []float32) {
	if buf == nil {
		return
	}
	c := cap(buf)
	if c < classStep || c%classStep != 0 {
		return
	}
	p.bucket(c).Put(buf[:c]) //nolint:staticcheck // slices are the pooled value
}

// Stats reports how many buffers were requested and how many had to be allocated.
func (p *Pool) Stats() Stats {
	return Stats{Gets: p.gets.Load(), Allocations: p.allocs.Load()}
}

// GetFloat32 takes a buffer from the Default pool.
func GetFloat32(n int) []float32 { return Default.Get(n) }

// PutFloat32 returns a buffer to the Default pool.
func PutFloat32(buf []float32) { Default.Put(buf) }
