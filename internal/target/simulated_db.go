package target

import (
	"context"
	"sync"
	"time"
)

// SimulatedDB 内存模拟数据库：读共享、写独占，并按配置注入耗时。
type SimulatedDB struct {
	mu    sync.RWMutex
	rows  map[any]int64
	read  time.Duration
	write time.Duration
}

// NewSimulatedDB 创建模拟数据库。
func NewSimulatedDB(readLatency, writeLatency time.Duration) *SimulatedDB {
	return &SimulatedDB{
		rows:  make(map[any]int64),
		read:  readLatency,
		write: writeLatency,
	}
}

// Execute 处理 DBQuery，第一个参数作为行主键。
func (d *SimulatedDB) Execute(ctx context.Context, op Operation) Result {
	q, ok := op.(DBQuery)
	if !ok {
		return unsupported(op)
	}
	var key any
	if len(q.Args) > 0 {
		key = q.Args[0]
	}

	if q.Write {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := sleepCtx(ctx, d.write); err != nil {
			return Fail("timeout", err)
		}
		d.rows[key]++
		return OK()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := sleepCtx(ctx, d.read); err != nil {
		return Fail("timeout", err)
	}
	var n int64
	if _, ok := d.rows[key]; ok {
		n = 1
	}
	return Result{Success: true, Bytes: n}
}

// Rows 返回已写入的行数。
func (d *SimulatedDB) Rows() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}
