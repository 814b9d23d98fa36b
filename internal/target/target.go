// Package target 定义被测系统适配器的统一契约及其实现。
//
// 每种操作是一个具体类型（HTTPRequest、CacheGet、DBQuery 等），
// 适配器通过类型分支处理自己支持的操作，不支持的操作返回 ErrUnsupportedOperation。
package target

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnsupportedOperation is returned when an adapter receives an operation kind it does not handle.
	ErrUnsupportedOperation = errors.New("unsupported operation for target")

	// ErrNilTarget is returned when a scenario has no target bound.
	ErrNilTarget = errors.New("target is nil")
)

// Kind 操作类型
type Kind string

const (
	KindHTTP        Kind = "http"
	KindCacheGet    Kind = "cache_get"
	KindCacheSet    Kind = "cache_set"
	KindCacheDelete Kind = "cache_delete"
	KindDBQuery     Kind = "db_query"
	KindAllocate    Kind = "allocate"
	KindNoop        Kind = "noop"
)

// Operation 是发送给适配器的操作。只有本包内的类型实现该接口。
type Operation interface {
	Kind() Kind
	operation()
}

// HTTPRequest 一次 HTTP 请求
type HTTPRequest struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
	// ExpectStatus 为 0 时 2xx/3xx 视为成功
	ExpectStatus int
	// JSONPath 非空时要求响应体中该路径存在
	JSONPath string
}

// CacheGet 读取缓存
type CacheGet struct {
	Key string
}

// CacheSet 写入缓存
type CacheSet struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// CacheDelete 删除缓存
type CacheDelete struct {
	Key string
}

// DBQuery 执行一条 SQL
type DBQuery struct {
	SQL   string
	Args  []any
	Write bool
}

// Allocate 分配内存，Retain 为 true 时保留引用
type Allocate struct {
	Bytes  int
	Retain bool
}

// Noop 空操作
type Noop struct{}

func (HTTPRequest) Kind() Kind { return KindHTTP }
func (CacheGet) Kind() Kind    { return KindCacheGet }
func (CacheSet) Kind() Kind    { return KindCacheSet }
func (CacheDelete) Kind() Kind { return KindCacheDelete }
func (DBQuery) Kind() Kind     { return KindDBQuery }
func (Allocate) Kind() Kind    { return KindAllocate }
func (Noop) Kind() Kind        { return KindNoop }

func (HTTPRequest) operation() {}
func (CacheGet) operation()    {}
func (CacheSet) operation()    {}
func (CacheDelete) operation() {}
func (DBQuery) operation()     {}
func (Allocate) operation()    {}
func (Noop) operation()        {}

// Result 操作结果
type Result struct {
	Success bool
	// Latency 为 0 时由调用方测量的耗时为准
	Latency time.Duration
	Status  string
	Err     error
	Bytes   int64
	// Hit 仅对缓存读取有意义
	Hit bool
}

// ErrorKind 返回用于指标分类的错误类型。
func (r Result) ErrorKind() string {
	if r.Success {
		return ""
	}
	switch {
	case r.Err == nil && r.Status != "":
		return r.Status
	case errors.Is(r.Err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(r.Err, context.Canceled):
		return "canceled"
	case errors.Is(r.Err, ErrUnsupportedOperation):
		return "unsupported"
	case r.Status != "":
		return r.Status
	default:
		return "error"
	}
}

// Target 被测系统适配器
type Target interface {
	Execute(ctx context.Context, op Operation) Result
}

// Func 将函数适配为 Target
type Func func(ctx context.Context, op Operation) Result

// Execute 调用函数本身。
func (f Func) Execute(ctx context.Context, op Operation) Result {
	return f(ctx, op)
}

// Fail 构造失败结果
func Fail(status string, err error) Result {
	return Result{Success: false, Status: status, Err: err}
}

// OK 构造成功结果
func OK() Result {
	return Result{Success: true}
}

func unsupported(op Operation) Result {
	return Fail("unsupported", fmt.Errorf("%w: %s", ErrUnsupportedOperation, op.Kind()))
}

// sleepCtx 等待 d 或 ctx 结束
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
