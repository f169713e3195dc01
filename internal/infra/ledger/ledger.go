// Package ledger 持久化缓存文件的创建序号。
//
// 候选 remote 文件的扫描顺序只依赖这里分配的 Seq：
// 同一个路径重复登记返回同一个 Seq；新路径拿到当前最大值 + 1。
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/John-Robertt/zmt/internal/domain"

	_ "modernc.org/sqlite"
)

var (
	_ domain.Sequencer = (*Ledger)(nil)
	_ domain.Sequencer = (*Memory)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_files (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	path       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

// Ledger 是基于 sqlite 的 Sequencer。
type Ledger struct {
	db *sql.DB
}

// Open 打开（必要时创建）ledger 数据库。path 为 ":memory:" 时只在进程内有效。
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &domain.Error{Code: domain.ErrCodeIOFailed, Path: path, Err: err}
	}
	// 单连接：:memory: 库在多连接下各自独立。
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &domain.Error{Code: domain.ErrCodeIOFailed, Path: path, Err: fmt.Errorf("初始化 schema 失败：%w", err)}
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Assign 返回 name 的创建序号；首次登记时分配新序号。
func (l *Ledger) Assign(ctx context.Context, name string) (int64, error) {
	key := filepath.Clean(name)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	err = tx.QueryRowContext(ctx, `SELECT seq FROM cache_files WHERE path = ?`, key).Scan(&seq)
	switch {
	case err == nil:
		return seq, nil
	case err != sql.ErrNoRows:
		return 0, fmt.Errorf("查询 ledger 失败：%w", err)
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO cache_files (path) VALUES (?)`, key)
	if err != nil {
		return 0, fmt.Errorf("写入 ledger 失败：%w", err)
	}
	seq, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return seq, nil
}

// Memory 是进程内 Sequencer（dry-run 与测试使用）。
type Memory struct {
	mu   sync.Mutex
	next int64
	seen map[string]int64
}

func NewMemory() *Memory {
	return &Memory{seen: map[string]int64{}}
}

func (m *Memory) Assign(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = map[string]int64{}
	}
	key := filepath.Clean(name)
	if s, ok := m.seen[key]; ok {
		return s, nil
	}
	m.next++
	m.seen[key] = m.next
	return m.next, nil
}
