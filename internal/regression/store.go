package regression

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"yqhp/bench-engine/internal/config"
	"yqhp/bench-engine/pkg/types"
)

// ErrNoBaseline 基线不存在
var ErrNoBaseline = errors.New("no baseline available")

// Store 基线存储
type Store interface {
	Load() (*Baseline, error)
	Save(b *Baseline) error
}

// FileStore 以 JSON 文件保存基线，.gz 后缀使用 gzip，.zst 后缀使用 zstd。
type FileStore struct {
	path string
}

// NewFileStore 创建文件基线存储。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path 返回文件路径。
func (s *FileStore) Path() string {
	return s.path
}

// Load 读取基线，文件不存在时返回 ErrNoBaseline。
func (s *FileStore) Load() (*Baseline, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoBaseline
		}
		return nil, fmt.Errorf("读取基线失败: %w", err)
	}

	data, err := decompress(s.path, raw)
	if err != nil {
		return nil, fmt.Errorf("解压基线失败: %w", err)
	}

	var b Baseline
	if err := sonic.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("解析基线失败: %w", err)
	}
	if b.Version > BaselineVersion {
		return nil, fmt.Errorf("不支持的基线版本 %d", b.Version)
	}
	if b.Scenarios == nil {
		b.Scenarios = map[string]ScenarioBaseline{}
	}
	return &b, nil
}

// Save 原子写入基线：先写临时文件再重命名。
func (s *FileStore) Save(b *Baseline) error {
	data, err := sonic.Marshal(b)
	if err != nil {
		return fmt.Errorf("序列化基线失败: %w", err)
	}
	data, err = compress(s.path, data)
	if err != nil {
		return fmt.Errorf("压缩基线失败: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建基线目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".baseline-*")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入基线失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入基线失败: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func compress(path string, data []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case strings.HasSuffix(path, ".zst"):
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return data, nil
	}
}

func decompress(path string, data []byte) ([]byte, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(256*1024*1024))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}

// ShouldUpdate 按更新策略判断是否用本次结果刷新基线。
func ShouldUpdate(policy string, result *types.SuiteResult) bool {
	if result == nil {
		return false
	}
	switch policy {
	case config.UpdateOnSuccess:
		return result.OverallResults.Success
	case config.UpdateNoRegression:
		return result.OverallResults.Success && !result.RegressionAnalysis.HasRegressions()
	default:
		return false
	}
}
