package target

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/valyala/fasthttp"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPConfig HTTP 适配器配置
type HTTPConfig struct {
	BaseURL         string
	Timeout         time.Duration
	MaxConnsPerHost int
	Headers         map[string]string
}

// HTTPTarget 基于 fasthttp 的 HTTP 适配器
type HTTPTarget struct {
	cfg    HTTPConfig
	client *fasthttp.Client
	paths  sync.Map // expression -> jp.Expr
}

// NewHTTPTarget 创建 HTTP 适配器。
func NewHTTPTarget(cfg HTTPConfig) (*HTTPTarget, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("http target: base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = 1000
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &HTTPTarget{
		cfg: cfg,
		client: &fasthttp.Client{
			MaxConnsPerHost:        cfg.MaxConnsPerHost,
			MaxIdleConnDuration:    90 * time.Second,
			ReadTimeout:            cfg.Timeout,
			WriteTimeout:           cfg.Timeout,
			DisablePathNormalizing: true,
		},
	}, nil
}

// Execute 执行 HTTP 请求。
func (t *HTTPTarget) Execute(ctx context.Context, op Operation) Result {
	r, ok := op.(HTTPRequest)
	if !ok {
		return unsupported(op)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	method := r.Method
	if method == "" {
		method = fasthttp.MethodGet
	}
	req.Header.SetMethod(method)
	req.SetRequestURI(t.cfg.BaseURL + "/" + strings.TrimLeft(r.Path, "/"))
	for k, v := range t.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if len(r.Body) > 0 {
		req.SetBody(r.Body)
	}

	// 统一使用 DoDeadline，取 ctx 截止时间与配置超时中较早者
	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) || time.Now().After(deadline) {
			return Fail("timeout", fmt.Errorf("http %s %s: %w", method, r.Path, context.DeadlineExceeded))
		}
		return Fail("connection", fmt.Errorf("http %s %s: %w", method, r.Path, err))
	}

	status := resp.StatusCode()
	body := resp.Body()
	res := Result{Bytes: int64(len(body)) + int64(len(req.Body()))}
	if !statusOK(status, r.ExpectStatus) {
		res.Status = fmt.Sprintf("http_%d", status)
		return res
	}
	if r.JSONPath != "" {
		if err := t.assertPath(body, r.JSONPath); err != nil {
			res.Status = "assertion"
			res.Err = err
			return res
		}
	}
	res.Success = true
	return res
}

// Close 关闭空闲连接。
func (t *HTTPTarget) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTarget) assertPath(body []byte, expression string) error {
	var expr jp.Expr
	if cached, ok := t.paths.Load(expression); ok {
		expr = cached.(jp.Expr)
	} else {
		parsed, err := jp.ParseString(expression)
		if err != nil {
			return fmt.Errorf("invalid JSONPath expression '%s': %w", expression, err)
		}
		t.paths.Store(expression, parsed)
		expr = parsed
	}

	data, err := oj.Parse(body)
	if err != nil {
		return fmt.Errorf("response is not JSON: %w", err)
	}
	if len(expr.Get(data)) == 0 {
		return fmt.Errorf("JSONPath '%s' returned no results", expression)
	}
	return nil
}

func statusOK(status, expect int) bool {
	if expect != 0 {
		return status == expect
	}
	return status >= 200 && status < 400
}
