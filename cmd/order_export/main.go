package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"order-lifecycle-go/config"
	"order-lifecycle-go/infrastructure/logger"
	"order-lifecycle-go/internal/store"
	"order-lifecycle-go/order"
)

// 导出/导入存储中的订单。
//
//	order_export -config cfg.yaml            # 每单一行 limit;filled;Buy;...
//	order_export -config cfg.yaml -display   # 每单一行 LimitOrder=Filled Buy ...
//	order_export -config cfg.yaml -keys      # 行首加 "<key>\t"
//	order_export -config cfg.yaml -import orders.txt
func main() {
	cfgPath := flag.String("config", "", "配置文件路径（为空使用默认配置）")
	display := flag.Bool("display", false, "输出可读文本而不是导出格式")
	withKeys := flag.Bool("keys", false, "每行前加订单键和制表符")
	importPath := flag.String("import", "", "从文件导入订单（- 表示标准输入）")
	flag.Parse()

	if err := run(*cfgPath, *importPath, *display, *withKeys); err != nil {
		fmt.Fprintf(os.Stderr, "order_export: %v\n", err)
		os.Exit(1)
	}
}

// run 执行导出或导入，返回前关闭所有资源
func run(cfgPath, importPath string, display, withKeys bool) error {
	cfg := config.Default()
	if cfgPath != "" {
		var err error
		cfg, err = config.LoadWithEnvOverrides(cfgPath)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
	}
	// stdout 只输出订单
	cfg.Log.Outputs = []string{"stderr"}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer log.Close()

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if importPath != "" {
		in := io.Reader(os.Stdin)
		if importPath != "-" {
			f, err := os.Open(importPath)
			if err != nil {
				return fmt.Errorf("无法读取文件: %w", err)
			}
			defer f.Close()
			in = f
		}
		n, err := importOrders(ctx, st, in)
		log.Info("orders imported", zap.Int("count", n))
		if err != nil {
			return fmt.Errorf("导入失败: %w", err)
		}
		return nil
	}

	w := bufio.NewWriter(os.Stdout)
	n, err := exportOrders(ctx, st, w, display, withKeys)
	if ferr := w.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		return fmt.Errorf("导出失败: %w", err)
	}
	log.Info("orders exported", zap.Int("count", n))
	return nil
}

// exportOrders 按键的字典序输出每个订单一行。导出格式保证单行，见 order.Export。
func exportOrders(ctx context.Context, st store.Store, w io.Writer, display, withKeys bool) (int, error) {
	keys, err := st.Keys(ctx)
	if err != nil {
		return 0, err
	}
	for i, key := range keys {
		data, err := st.Load(ctx, key)
		if err != nil {
			return i, err
		}
		line, err := render(data, display)
		if err != nil {
			return i, fmt.Errorf("%s: %w", key, err)
		}
		if withKeys {
			line = key + "\t" + line
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return i, err
		}
	}
	return len(keys), nil
}

func render(data []byte, display bool) (string, error) {
	kind, _, err := order.Peek(data)
	if err != nil {
		return "", err
	}
	if kind == order.KindLimit {
		return renderAs[order.Limit](data, display)
	}
	return renderAs[order.Market](data, display)
}

func renderAs[P order.Pricing](data []byte, display bool) (string, error) {
	o, err := order.Unmarshal[P](data)
	if err != nil {
		return "", err
	}
	if display {
		return o.String(), nil
	}
	return order.Export(o)
}

// importOrders 读取导出格式的行并写入存储。行首带 "<key>\t" 时沿用该键，否则生成新键。
func importOrders(ctx context.Context, st store.Store, r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, record := splitKey(line)
		data, err := parseLine(record)
		if err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := st.Save(ctx, key, data); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		n++
	}
	return n, sc.Err()
}

func splitKey(line string) (string, string) {
	head, _, _ := strings.Cut(line, ";")
	if key, rest, ok := strings.Cut(line, "\t"); ok && len(key) < len(head) {
		return key, rest
	}
	return uuid.NewString(), line
}

func parseLine(line string) ([]byte, error) {
	kind, _, _ := strings.Cut(line, ";")
	switch order.Kind(kind) {
	case order.KindLimit:
		return parseAs[order.Limit](line)
	case order.KindMarket:
		return parseAs[order.Market](line)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", order.ErrMalformed, kind)
	}
}

func parseAs[P order.Pricing](line string) ([]byte, error) {
	o, err := order.Import[P](line)
	if err != nil {
		return nil, err
	}
	return order.Marshal(o)
}
