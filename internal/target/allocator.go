package target

import (
	"context"
	"sync"
	"sync/atomic"
)

// Allocator 内存分配适配器。Retain 的分配会一直被持有，用于模拟泄漏。
type Allocator struct {
	mu       sync.Mutex
	retained [][]byte
	limit    int

	allocated atomic.Int64
	held      atomic.Int64
}

// NewAllocator 创建分配器，maxRetained 限制最多保留的块数（<=0 不限制）。
func NewAllocator(maxRetained int) *Allocator {
	return &Allocator{limit: maxRetained}
}

// Execute 处理 Allocate。
func (a *Allocator) Execute(ctx context.Context, op Operation) Result {
	if err := ctx.Err(); err != nil {
		return Fail("canceled", err)
	}
	o, ok := op.(Allocate)
	if !ok {
		return unsupported(op)
	}
	if o.Bytes <= 0 {
		return OK()
	}

	buf := make([]byte, o.Bytes)
	// touch every page so the allocation is resident
	for i := 0; i < len(buf); i += 4096 {
		buf[i] = byte(i)
	}
	a.allocated.Add(int64(o.Bytes))

	if o.Retain {
		a.mu.Lock()
		if a.limit <= 0 || len(a.retained) < a.limit {
			a.retained = append(a.retained, buf)
			a.held.Add(int64(o.Bytes))
		}
		a.mu.Unlock()
	}
	return Result{Success: true, Bytes: int64(o.Bytes)}
}

// Allocated 返回累计分配字节数。
func (a *Allocator) Allocated() int64 {
	return a.allocated.Load()
}

// Retained 返回当前持有的字节数。
func (a *Allocator) Retained() int64 {
	return a.held.Load()
}

// Release 释放所有保留的内存。
func (a *Allocator) Release() {
	a.mu.Lock()
	a.retained = nil
	a.mu.Unlock()
	a.held.Store(0)
}
