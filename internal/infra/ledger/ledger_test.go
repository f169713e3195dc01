package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_AssignIsStableAndMonotonic(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	require.NoError(t, err)

	a, err := l.Assign(ctx, "/r/A_1_100000_1024.cac")
	require.NoError(t, err)
	b, err := l.Assign(ctx, "/r/A_1_100000_1024_rw0-5.cac")
	require.NoError(t, err)
	again, err := l.Assign(ctx, "/r/A_1_100000_1024.cac")
	require.NoError(t, err)

	assert.Less(t, a, b)
	assert.Equal(t, a, again)
	require.NoError(t, l.Close())

	// 重新打开后序号保持
	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()

	b2, err := l2.Assign(ctx, "/r/A_1_100000_1024_rw0-5.cac")
	require.NoError(t, err)
	assert.Equal(t, b, b2)

	c, err := l2.Assign(ctx, "/r/B_1_100000_1024.cac")
	require.NoError(t, err)
	assert.Greater(t, c, b)
}

func TestLedger_InMemory(t *testing.T) {
	l, err := Open(":memory:")
	require.NoError(t, err)
	defer l.Close()

	s1, err := l.Assign(context.Background(), "x.cac")
	require.NoError(t, err)
	s2, err := l.Assign(context.Background(), "y.cac")
	require.NoError(t, err)
	assert.Equal(t, int64(1), s1)
	assert.Equal(t, int64(2), s2)
}

func TestMemory_Assign(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, _ := m.Assign(ctx, "a.cac")
	b, _ := m.Assign(ctx, "b.cac")
	a2, _ := m.Assign(ctx, "./a.cac")
	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(2), b)
	assert.Equal(t, a, a2)
}
