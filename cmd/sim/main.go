package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"order-lifecycle-go/internal/container"
	"order-lifecycle-go/sim"
)

// 本地模拟：随机生成限价/市价单，经模拟券商走完提交、成交、结算或撤单，
// 订单写入配置的存储（内存或 Redis）。不会连接真实券商。
func main() {
	cfgPath := flag.String("config", "", "配置文件路径（为空使用默认配置）")
	defaults := sim.DefaultRunnerConfig()
	orders := flag.Int("orders", defaults.Orders, "模拟订单数")
	seed := flag.Int64("seed", defaults.Seed, "随机种子")
	mid := flag.Float64("mid", defaults.MidPrice, "基准价格")
	vol := flag.Float64("vol", defaults.Volatility, "价格扰动标准差")
	maxLots := flag.Uint("maxLots", uint(defaults.MaxLots), "单笔最大手数")
	maxParts := flag.Int("maxParts", defaults.MaxParts, "单笔订单最多拆成几笔成交")
	marketRatio := flag.Float64("marketRatio", defaults.MarketRatio, "市价单比例")
	cancelRatio := flag.Float64("cancelRatio", defaults.CancelRatio, "限价单撤单比例")
	rejectRatio := flag.Float64("rejectRatio", defaults.RejectRatio, "券商拒单比例")
	hold := flag.Bool("hold", false, "模拟结束后继续运行（保持 /metrics 与配置热更新），直到收到信号")
	flag.Parse()

	rc := sim.RunnerConfig{
		Orders:      *orders,
		MidPrice:    *mid,
		Volatility:  *vol,
		MaxLots:     uint32(*maxLots),
		MaxParts:    *maxParts,
		MarketRatio: *marketRatio,
		CancelRatio: *cancelRatio,
		RejectRatio: *rejectRatio,
		Seed:        *seed,
	}

	c, err := container.New(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := c.Build(rc); err != nil {
		fmt.Fprintf(os.Stderr, "初始化失败: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "启动失败: %v\n", err)
		os.Exit(1)
	}

	sum, runErr := c.Runner().Run(ctx)
	fmt.Println(sum)
	if runErr == nil && *hold {
		<-ctx.Done()
	}

	if err := c.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "停止失败: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "模拟中断: %v\n", runErr)
		os.Exit(1)
	}
}
