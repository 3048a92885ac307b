package store

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends 返回需要跑通同一组用例的存储实现。
// 设置 ORDERS_TEST_REDIS_ADDR 后同时测试 Redis。
func backends(t *testing.T) map[string]Store {
	t.Helper()
	out := map[string]Store{BackendMemory: NewMemory()}
	if addr := os.Getenv("ORDERS_TEST_REDIS_ADDR"); addr != "" {
		r := NewRedis(Config{Backend: BackendRedis, Addr: addr, Prefix: fmt.Sprintf("test:%s:", t.Name())})
		if err := r.Ping(context.Background()); err != nil {
			t.Fatalf("redis ping: %v", err)
		}
		out[BackendRedis] = r
	}
	return out
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, st := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Cleanup(func() {
				keys, _ := st.Keys(ctx)
				for _, k := range keys {
					_ = st.Delete(ctx, k)
				}
				_ = st.Close()
			})

			_, err := st.Load(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)
			require.ErrorIs(t, st.Delete(ctx, "missing"), ErrNotFound)

			require.NoError(t, st.Save(ctx, "b", []byte{1, 2, 3}))
			require.NoError(t, st.Save(ctx, "a", []byte{9}))
			require.NoError(t, st.Save(ctx, "b", []byte{4, 5}))

			got, err := st.Load(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, []byte{4, 5}, got)

			keys, err := st.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, keys)

			require.NoError(t, st.Delete(ctx, "a"))
			keys, err = st.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, keys)
		})
	}
}

func TestMemoryCopiesData(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	data := []byte{1, 2}
	require.NoError(t, m.Save(ctx, "k", data))
	data[0] = 7

	got, err := m.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got)

	got[1] = 8
	again, _ := m.Load(ctx, "k")
	assert.Equal(t, []byte{1, 2}, again)
}

func TestOpen(t *testing.T) {
	st, err := Open(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	st, err = Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	_, err = Open(Config{Backend: BackendRedis})
	assert.Error(t, err)

	st, err = Open(Config{Backend: BackendRedis, Addr: "127.0.0.1:0", Prefix: "x:"})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, st)
	assert.NoError(t, st.Close())

	_, err = Open(Config{Backend: "etcd"})
	assert.Error(t, err)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, "order:", escapeGlob("order:"))
	assert.Equal(t, `a\*b\?\[c\]\\`, escapeGlob(`a*b?[c]\`))
}
