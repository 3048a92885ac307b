package order

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExportLines(t *testing.T) {
	limits := sampleLimitOrders()
	markets := sampleMarketOrders()

	tests := []struct {
		name string
		line func() (string, error)
		want string
	}{
		{"limit new", func() (string, error) { return Export(limits["new"]) }, "limit;new;Buy;2;4500"},
		{"limit posted", func() (string, error) { return Export(limits["posted"]) }, "limit;posted;Buy;2;4500;order_id=100500;1x4500|1x4510"},
		{"limit filled", func() (string, error) { return Export(limits["filled"]) },
			"limit;filled;Buy;2;4500;order_id=100501;1x4500|1x4510;1735812000000000123;2;9010;4.5"},
		{"limit rejected", func() (string, error) { return Export(limits["rejected"]) }, "limit;rejected;Buy;100;400;not enough money"},
		{"limit canceled", func() (string, error) { return Export(limits["canceled"]) }, "limit;canceled;Sell;3;99.25;order_id=100502;1x99.25"},
		{"market new", func() (string, error) { return Export(markets["new"]) }, "market;new;Buy;7"},
		{"market filled", func() (string, error) { return Export(markets["filled"]) }, "market;filled;Sell;10;m-1;5x320|5x320;-42;10;3200;3.2"},
		{"quoted meta", func() (string, error) { return Export[Market](NewMarket(Sell, 1).Reject(`bad; "lots"`)) },
			`market;rejected;Sell;1;"bad; ""lots"""`},
		{"escaped meta", func() (string, error) { return Export[Limit](NewLimit(Buy, 1, 10).Reject("broker said:\r\nnot enough money")) },
			`limit;rejected;Buy;1;10;broker said:\r\nnot enough money`},
		{"escaped broker id", func() (string, error) { return Export[Limit](NewLimit(Buy, 1, 10).Post(`a\b` + "\n")) },
			`limit;posted;Buy;1;10;a\\b\n;`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.line()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImportRoundTrip(t *testing.T) {
	for name, o := range sampleLimitOrders() {
		t.Run("limit "+name, func(t *testing.T) {
			line, err := Export(o)
			require.NoError(t, err)
			got, err := Import[Limit](line)
			require.NoError(t, err)
			assert.Equal(t, o, got)
		})
	}
	for name, o := range sampleMarketOrders() {
		t.Run("market "+name, func(t *testing.T) {
			line, err := Export(o)
			require.NoError(t, err)
			got, err := Import[Market](line)
			require.NoError(t, err)
			assert.Equal(t, o, got)
		})
	}
}

func TestExportSingleLine(t *testing.T) {
	texts := []string{"a\nb", "a\r\nb", "\r", `trailing\`, `\n literal`, "x;\n\"y\""}
	for _, text := range texts {
		rejected := NewLimit(Buy, 1, 10).Reject(text)
		line, err := Export[Limit](rejected)
		require.NoError(t, err)
		assert.False(t, strings.ContainsAny(line, "\r\n"), "line %q", line)

		got, err := Import[Limit](line)
		require.NoError(t, err)
		assert.Equal(t, LimitOrder(rejected), got)

		posted := NewMarket(Sell, 2).Post(text)
		line, err = Export[Market](posted)
		require.NoError(t, err)
		assert.False(t, strings.ContainsAny(line, "\r\n"), "line %q", line)
		back, err := Import[Market](line)
		require.NoError(t, err)
		assert.Equal(t, MarketOrder(posted), back)
	}
}

func TestImportErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		err  error
	}{
		{"too short", "limit;new;Buy", ErrMalformed},
		{"wrong kind", "market;new;Buy;2", ErrKindMismatch},
		{"unknown state", "limit;pending;Buy;2;10", ErrUnknownState},
		{"bad direction", "limit;new;Hold;2;10", ErrMalformed},
		{"bad lots", "limit;new;Buy;-2;10", ErrMalformed},
		{"missing price", "limit;new;Buy;2", ErrMalformed},
		{"extra field", "limit;new;Buy;2;10;x", ErrMalformed},
		{"bad transaction", "limit;posted;Buy;2;10;id;1@10", ErrMalformed},
		{"operation mismatch", "limit;filled;Buy;2;10;id;1x10|1x10;0;2;21;0", ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import[Limit](tt.line)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := Import[Market]("market;canceled;Buy;2;id;")
	assert.ErrorIs(t, err, ErrUnknownState)
}

func TestExportConsumedPosted(t *testing.T) {
	p := NewLimit(Buy, 1, 1).Post("x")
	Cancel(p)
	_, err := Export[Limit](p)
	assert.ErrorIs(t, err, ErrConsumed)
}

func TestExportRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		o := genLimitOrder(rapid.StringMatching(`[a-zA-Z0-9 ;|"=_.\\\r\n-]*`)).Draw(t, "order")
		line, err := Export(o)
		if err != nil {
			t.Fatalf("export %s: %v", o, err)
		}
		if strings.ContainsAny(line, "\r\n") {
			t.Fatalf("export %q spans lines", line)
		}
		got, err := Import[Limit](line)
		if err != nil {
			t.Fatalf("import %q: %v", line, err)
		}
		if !assert.ObjectsAreEqual(o, got) {
			t.Fatalf("round trip changed order:\n%s\n%s", o, got)
		}
	})
}
