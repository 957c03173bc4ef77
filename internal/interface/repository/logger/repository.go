package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gateway/internal/domain"
)

// Config はロガーの設定.
type Config struct {
	Level    string // debug, info, warn, error
	Format   string // console, json
	Dir      string // 空の場合はファイルに出力しない
	Filename string
	Rotation *RotationConfig
}

// Repository はロガーのリポジトリ実装.
// プロセス全体で一つ作成し、各コンポーネントへ domain.Logger として渡す.
type Repository struct {
	log  logr.Logger
	zap  *zap.Logger
	file *rotatingFile
	done chan struct{}
}

// Verify interface implementation.
var _ domain.Logger = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成.
func New(cfg Config) (*Repository, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	encoder, err := newEncoder(cfg.Format)
	if err != nil {
		return nil, err
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}

	r := &Repository{done: make(chan struct{})}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return nil, err
		}
		if cfg.Filename == "" {
			cfg.Filename = "gateway.log"
		}
		if cfg.Rotation == nil {
			cfg.Rotation = DefaultRotationConfig()
		}

		file, err := openRotatingFile(filepath.Join(cfg.Dir, cfg.Filename), cfg.Rotation)
		if err != nil {
			return nil, err
		}
		r.file = file

		// ファイルには常にJSONで出力する
		fileEncoder, _ := newEncoder("json")
		cores = append(cores, zapcore.NewCore(fileEncoder, file, level))

		// ログクリーンアップを定期的に実行
		go r.periodicCleanup()
	}

	r.zap = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
	r.log = zapr.NewLogger(r.zap)
	return r, nil
}

// NewFromLogr は既存のlogr.Loggerを包むRepositoryを作成する. テストで testr と組み合わせて使う.
func NewFromLogr(l logr.Logger) *Repository {
	return &Repository{log: l, done: make(chan struct{})}
}

func newEncoder(format string) (zapcore.Encoder, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000")
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"

	switch strings.ToLower(format) {
	case "", "console":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg), nil
	case "json":
		return zapcore.NewJSONEncoder(encCfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// Info はINFOレベルのログを記録.
func (r *Repository) Info(msg string, fields map[string]interface{}) {
	r.log.Info(msg, keysAndValues(fields)...)
}

// Error はERRORレベルのログを記録.
func (r *Repository) Error(
	msg string, err error, fields map[string]interface{},
) {
	r.log.Error(err, msg, keysAndValues(fields)...)
}

// Debug はDEBUGレベルのログを記録.
func (r *Repository) Debug(msg string, fields map[string]interface{}) {
	r.log.V(1).Info(msg, keysAndValues(fields)...)
}

// Logr は下層のlogr.Loggerを返す.
func (r *Repository) Logr() logr.Logger {
	return r.log
}

// keysAndValues はフィールドをキー順に並べたlogr形式の可変長引数に変換.
func keysAndValues(fields map[string]interface{}) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		kv = append(kv, k, fields[k])
	}
	return kv
}

// periodicCleanup は定期的に古いログファイルを削除.
func (r *Repository) periodicCleanup() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			cleanOldLogs(r.file.path, r.file.config, now)
		case <-r.done:
			return
		}
	}
}

// Close はロガーのリソースを解放.
func (r *Repository) Close() error {
	select {
	case <-r.done:
		return nil
	default:
		close(r.done)
	}

	if r.zap != nil {
		_ = r.zap.Sync()
	}
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
