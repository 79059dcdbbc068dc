// stockquery 命令行查询工具。
// 按子命令查询实时行情、批量行情、历史K线、公司信息，或搜索股票代码。
// 预期内的查询失败（代码无效、数据源全部失败等）作为正文输出，退出码为 0。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"stockquery/pkg/config"
	"stockquery/pkg/format"
	"stockquery/pkg/logger"
	"stockquery/pkg/stock"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}

	switch args[0] {
	case "quote":
		return runQuote(args[1:])
	case "quotes":
		return runQuotes(args[1:])
	case "search":
		return runSearch(args[1:])
	case "history":
		return runHistory(args[1:])
	case "info":
		return runInfo(args[1:])
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "stockquery: unknown command %q\n\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `stockquery - 多数据源股票查询工具

用法:
  stockquery quote   [-source S] [-format table] <symbol>
  stockquery quotes  [-source S] [-format table] <symbol> [symbol ...]
  stockquery search  [-market all] [-format table] <query>
  stockquery history [-period daily] [-start YYYY-MM-DD] [-end YYYY-MM-DD] [-count N] [-format json] <symbol>
  stockquery info    [-format json] <symbol>

通用选项:
  -config     配置文件路径 (YAML)
  -log-level  日志级别 (debug, info, warn, error)，覆盖配置文件

代码形态: sh603060, 603060.SS, sz000001, 0700.HK, AAPL
数据源:   sina, tencent, tushare, yfinance, pandas-datareader
`)
}

// commonFlags 各子命令共享的选项
type commonFlags struct {
	configPath *string
	logLevel   *string
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", "", "配置文件路径 (YAML)"),
		logLevel:   fs.String("log-level", "", "日志级别，覆盖配置文件"),
	}
}

// newService 加载配置、初始化日志并构建查询服务。
// 日志输出到标准错误，渲染结果独占标准输出。
func newService(cf *commonFlags) (*stock.Service, error) {
	cfg, err := config.Load(*cf.configPath)
	if err != nil {
		return nil, err
	}
	if *cf.logLevel != "" {
		cfg.SetLogLevel(*cf.logLevel)
	}
	logger.Init(cfg.Logger)

	return stock.New(cfg)
}

func fatal(err error) int {
	fmt.Fprintf(os.Stderr, "stockquery: %v\n", err)
	return 1
}

func runQuote(args []string) int {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	source := fs.String("source", "", "指定数据源，留空按交易所选择默认链路")
	formatName := fs.String("format", "table", "输出格式 (table 或 json)")
	cf := registerCommon(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stockquery quote [-source S] [-format F] <symbol>")
		return 2
	}

	svc, err := newService(cf)
	if err != nil {
		return fatal(err)
	}
	defer svc.Close()

	fmt.Println(svc.GetStockQuote(context.Background(), fs.Arg(0), *source, *formatName))
	return 0
}

func runQuotes(args []string) int {
	fs := flag.NewFlagSet("quotes", flag.ExitOnError)
	source := fs.String("source", "", "指定数据源，留空按交易所选择默认链路")
	formatName := fs.String("format", "table", "输出格式 (table 或 json)")
	cf := registerCommon(fs)
	fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: stockquery quotes [-source S] [-format F] <symbol> [symbol ...]")
		return 2
	}

	svc, err := newService(cf)
	if err != nil {
		return fatal(err)
	}
	defer svc.Close()

	fmt.Println(svc.GetMultipleStockQuotes(context.Background(), fs.Args(), *source, *formatName))
	return 0
}

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	market := fs.String("market", "all", "市场过滤 (all, cn, us, hk)")
	formatName := fs.String("format", "table", "输出格式 (table 或 json)")
	cf := registerCommon(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stockquery search [-market M] [-format F] <query>")
		return 2
	}
	query := fs.Arg(0)

	f, err := format.Parse(*formatName)
	if err != nil {
		fmt.Printf("Failed to search stocks: %v\n", err)
		return 0
	}

	svc, err := newService(cf)
	if err != nil {
		return fatal(err)
	}
	defer svc.Close()

	results, err := svc.Search(query, *market)
	if err != nil {
		fmt.Printf("Failed to search stocks: %v\n", err)
		return 0
	}
	if len(results) == 0 && f == format.FormatTable {
		fmt.Printf("No stocks found related to '%s'\n", query)
		return 0
	}

	out, err := format.SearchResults(results, f)
	if err != nil {
		fmt.Printf("Failed to search stocks: %v\n", err)
		return 0
	}
	fmt.Println(out)
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	period := fs.String("period", "daily", "K线周期 (daily, weekly, monthly)")
	start := fs.String("start", "", "起始日期 YYYY-MM-DD")
	end := fs.String("end", "", "结束日期 YYYY-MM-DD")
	count := fs.Int("count", 0, "最多返回的K线条数，0 取默认值")
	formatName := fs.String("format", "json", "输出格式 (table 或 json)")
	cf := registerCommon(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stockquery history [-period P] [-start D] [-end D] [-count N] [-format F] <symbol>")
		return 2
	}

	f, err := format.Parse(*formatName)
	if err != nil {
		fmt.Printf("Failed to get historical data: %v\n", err)
		return 0
	}

	svc, err := newService(cf)
	if err != nil {
		return fatal(err)
	}
	defer svc.Close()

	rec, err := svc.History(context.Background(), fs.Arg(0), *period, *start, *end, *count)
	if err != nil {
		fmt.Printf("Failed to get historical data: %v\n", err)
		return 0
	}

	out, err := format.History(rec, f)
	if err != nil {
		fmt.Printf("Failed to get historical data: %v\n", err)
		return 0
	}
	fmt.Println(out)
	return 0
}

func runInfo(args []string) int {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	formatName := fs.String("format", "json", "输出格式 (table 或 json)")
	cf := registerCommon(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stockquery info [-format F] <symbol>")
		return 2
	}

	f, err := format.Parse(*formatName)
	if err != nil {
		fmt.Printf("Failed to get company information: %v\n", err)
		return 0
	}

	svc, err := newService(cf)
	if err != nil {
		return fatal(err)
	}
	defer svc.Close()

	rec, err := svc.Company(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Printf("Failed to get company information: %v\n", err)
		return 0
	}

	out, err := format.Company(rec, f)
	if err != nil {
		fmt.Printf("Failed to get company information: %v\n", err)
		return 0
	}
	fmt.Println(out)
	return 0
}
