package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-lifecycle-go/internal/store"
	"order-lifecycle-go/order"
)

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	p := order.NewLimit(order.Buy, 2, 4500).Post("order_id=100500")
	p.AddTransaction(order.NewTransaction(1, 4500))
	p.AddTransaction(order.NewTransaction(1, 4510))
	filled, err := order.Marshal[order.Limit](p.Fill(0, 4.5))
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, "a", filled))

	rejected, err := order.Marshal[order.Market](order.NewMarket(order.Sell, 1).Reject("market closed"))
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, "b", rejected))

	// 券商返回的多行错误文本
	multiline, err := order.Marshal[order.Limit](order.NewLimit(order.Buy, 1, 10).Reject("broker said:\nnot enough money"))
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, "c", multiline))

	posted, err := order.Marshal[order.Limit](order.NewLimit(order.Sell, 3, 11).Post("id\r\n7"))
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, "d", posted))
}

func TestExportOrders(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)

	var out bytes.Buffer
	n, err := exportOrders(context.Background(), st, &out, false, true)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t,
		"a\tlimit;filled;Buy;2;4500;order_id=100500;1x4500|1x4510;0;2;9010;4.5\n"+
			"b\tmarket;rejected;Sell;1;market closed\n"+
			"c\tlimit;rejected;Buy;1;10;broker said:\\nnot enough money\n"+
			"d\tlimit;posted;Sell;3;11;id\\r\\n7;\n",
		out.String())
}

func TestExportDisplay(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)

	var out bytes.Buffer
	_, err := exportOrders(context.Background(), st, &out, true, false)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "LimitOrder=Filled Buy 2x4500"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "MarketOrder=Rejected Sell 1"), lines[1])
	assert.Equal(t, `LimitOrder=Rejected Buy 1x10 meta="broker said:\nnot enough money"`, lines[2])
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemory()
	seed(t, src)

	var out bytes.Buffer
	_, err := exportOrders(ctx, src, &out, false, true)
	require.NoError(t, err)

	dst := store.NewMemory()
	n, err := importOrders(ctx, dst, strings.NewReader(out.String()+"\n"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	for _, key := range []string{"a", "b", "c", "d"} {
		want, err := src.Load(ctx, key)
		require.NoError(t, err)
		got, err := dst.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}
}

func TestImportGeneratesKeys(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	n, err := importOrders(ctx, st, strings.NewReader("limit;new;Buy;2;4500\nmarket;new;Sell;3\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	keys, _ := st.Keys(ctx)
	assert.Len(t, keys, 2)
}

func TestImportRejectsBadLines(t *testing.T) {
	st := store.NewMemory()
	n, err := importOrders(context.Background(), st, strings.NewReader("limit;new;Buy;2;4500\nstop;new;Buy;1\n"))
	assert.Equal(t, 1, n)
	require.Error(t, err)
	assert.ErrorIs(t, err, order.ErrMalformed)
	assert.Contains(t, err.Error(), "line 2")
}

func TestSplitKey(t *testing.T) {
	key, rest := splitKey("k1\tlimit;new;Buy;1;1")
	assert.Equal(t, "k1", key)
	assert.Equal(t, "limit;new;Buy;1;1", rest)

	// 拒单原因里的制表符不当作键分隔
	key, rest = splitKey("market;rejected;Sell;1;a\tb")
	assert.NotEqual(t, "market;rejected;Sell;1;a", key)
	assert.Equal(t, "market;rejected;Sell;1;a\tb", rest)
}
