// quoted 行情查询 HTTP API 服务。
// 将行情、历史、公司信息与搜索操作以 REST 接口对外暴露，
// 可选开启提供商熔断器与 InfluxDB 请求度量落地。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stockquery/pkg/config"
	"stockquery/pkg/format"
	"stockquery/pkg/logger"
	"stockquery/pkg/monitor"
	"stockquery/pkg/provider"
	"stockquery/pkg/provider/core"
	"stockquery/pkg/provider/decorators"
	"stockquery/pkg/stock"
)

var (
	addr           = flag.String("addr", ":8080", "HTTP 监听地址")
	configPath     = flag.String("config", "", "配置文件路径 (YAML)")
	logLevel       = flag.String("log-level", "", "日志级别，覆盖配置文件")
	ginMode        = flag.String("gin-mode", gin.ReleaseMode, "gin 运行模式 (debug, release, test)")
	breakerEnabled = flag.Bool("breaker", true, "为行情数据源启用熔断器")
	influxURL      = flag.String("influx-url", "", "InfluxDB 地址，留空不启用请求度量")
	influxToken    = flag.String("influx-token", "", "InfluxDB 访问令牌")
	influxOrg      = flag.String("influx-org", "stockquery", "InfluxDB 组织")
	influxBucket   = flag.String("influx-bucket", "metrics", "InfluxDB Bucket")
)

// requestTimeout 单个 HTTP 请求内全部抓取（含重试与回退）的时间上限
const requestTimeout = 60 * time.Second

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// QuoteServer 行情 API 服务
type QuoteServer struct {
	svc      *stock.Service
	breakers []*decorators.CircuitBreaker
	recorder *monitor.InfluxRecorder
	logger   *logrus.Logger
	server   *http.Server
	started  time.Time
	requests int64
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quoted: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	logger.Init(cfg.Logger)
	log := logger.WithComponent("quoted")

	gin.SetMode(*ginMode)

	server, err := NewQuoteServer(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to create quote server")
	}
	defer server.Close()

	if err := server.Start(*addr); err != nil {
		log.WithError(err).Fatal("Failed to start quote server")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Quote API server running, press Ctrl+C to stop...")
	<-sigChan

	log.Info("Received stop signal, shutting down gracefully...")
	server.Stop()
	log.Info("Quote API server stopped")
}

// NewQuoteServer 按命令行开关装配查询服务、熔断器与度量记录器
func NewQuoteServer(cfg *config.Config) (*QuoteServer, error) {
	var opts []stock.Option
	var breakers []*decorators.CircuitBreaker

	if *breakerEnabled {
		opts = append(opts, stock.WithRegistryOptions(provider.WithQuoteWrapper(func(qp core.QuoteProvider) core.QuoteProvider {
			cb := decorators.NewCircuitBreaker(qp, nil)
			breakers = append(breakers, cb)
			return cb
		})))
	}

	var recorder *monitor.InfluxRecorder
	if *influxURL != "" {
		rec, err := monitor.NewInfluxRecorder(monitor.InfluxConfig{
			URL:    *influxURL,
			Token:  *influxToken,
			Org:    *influxOrg,
			Bucket: *influxBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("create InfluxDB recorder: %w", err)
		}
		recorder = rec
		opts = append(opts, stock.WithRecorder(rec))
	}

	svc, err := stock.New(cfg, opts...)
	if err != nil {
		if recorder != nil {
			recorder.Close()
		}
		return nil, err
	}

	return &QuoteServer{
		svc:      svc,
		breakers: breakers,
		recorder: recorder,
		logger:   logger.GetLogger(),
		started:  time.Now(),
	}, nil
}

func (s *QuoteServer) Start(addr string) error {
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(s.requestIDMiddleware())
	router.Use(s.accessLogMiddleware())
	router.Use(s.corsMiddleware())

	// Health check
	router.GET("/health", s.healthCheck)

	// 运维统计端点
	router.GET("/stats", s.getStats)

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/quote/:symbol", s.getQuote)
		v1.GET("/quotes", s.getQuotes)
		v1.GET("/search", s.searchStocks)
		v1.GET("/history/:symbol", s.getHistory)
		v1.GET("/info/:symbol", s.getCompanyInfo)
	}

	s.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	s.logger.WithField("addr", addr).Info("Starting quote API server...")

	// Start server in goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Fatal("Failed to start HTTP server")
		}
	}()

	return nil
}

func (s *QuoteServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to gracefully shutdown server")
	}
}

func (s *QuoteServer) Close() {
	if s.svc != nil {
		if err := s.svc.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close query service")
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close InfluxDB recorder")
		}
	}
}

// requestIDMiddleware 为每个请求分配标识，贯穿访问日志与响应头
func (s *QuoteServer) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)

		atomic.AddInt64(&s.requests, 1)
		c.Next()
	}
}

// accessLogMiddleware 结构化访问日志
func (s *QuoteServer) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
			"client":     c.ClientIP(),
		}).Info("request completed")
	}
}

func (s *QuoteServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *QuoteServer) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}

	// 全部熔断器打开说明上游整体不可用
	if len(s.breakers) > 0 {
		open := 0
		for _, cb := range s.breakers {
			if cb.IsOpen() {
				open++
			}
		}
		if open == len(s.breakers) {
			health["status"] = "degraded"
			health["reason"] = "all quote circuit breakers open"
		}
	}

	if health["status"] == "ok" {
		c.JSON(200, health)
	} else {
		c.JSON(503, health)
	}
}

func (s *QuoteServer) getStats(c *gin.Context) {
	stats := gin.H{
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"requests": atomic.LoadInt64(&s.requests),
	}

	if len(s.breakers) > 0 {
		states := make([]map[string]interface{}, 0, len(s.breakers))
		for _, cb := range s.breakers {
			states = append(states, cb.Status())
		}
		stats["circuit_breakers"] = states
	}

	c.JSON(200, stats)
}

func (s *QuoteServer) getQuote(c *gin.Context) {
	f, ok := parseFormat(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	rec, err := s.svc.Quote(ctx, c.Param("symbol"), c.Query("source"))
	if err != nil {
		renderError(c, err)
		return
	}

	out, err := format.Quote(rec, f)
	if err != nil {
		s.renderFailure(c, err)
		return
	}
	writeRendered(c, f, out)
}

func (s *QuoteServer) getQuotes(c *gin.Context) {
	f, ok := parseFormat(c)
	if !ok {
		return
	}

	symbols := splitSymbols(c.Query("symbols"))
	if len(symbols) == 0 {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: "symbols parameter is required, e.g. ?symbols=sh603060,sz000001"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	entries, err := s.svc.QuoteBatch(ctx, symbols, c.Query("source"))
	if err != nil {
		renderError(c, err)
		return
	}

	out, err := format.Quotes(entries, f)
	if err != nil {
		s.renderFailure(c, err)
		return
	}
	writeRendered(c, f, out)
}

func (s *QuoteServer) searchStocks(c *gin.Context) {
	f, ok := parseFormat(c)
	if !ok {
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: "q parameter is required"})
		return
	}

	results, err := s.svc.Search(query, c.DefaultQuery("market", "all"))
	if err != nil {
		renderError(c, err)
		return
	}
	if len(results) == 0 && f == format.FormatTable {
		c.String(200, "No stocks found related to '%s'", query)
		return
	}

	out, err := format.SearchResults(results, f)
	if err != nil {
		s.renderFailure(c, err)
		return
	}
	writeRendered(c, f, out)
}

func (s *QuoteServer) getHistory(c *gin.Context) {
	f, ok := parseFormat(c)
	if !ok {
		return
	}

	count := 0
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(400, ErrorResponse{Error: "bad_request", Message: fmt.Sprintf("invalid count '%s': must be an integer", raw)})
			return
		}
		count = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	rec, err := s.svc.History(ctx, c.Param("symbol"), c.Query("period"), c.Query("start"), c.Query("end"), count)
	if err != nil {
		renderError(c, err)
		return
	}

	out, err := format.History(rec, f)
	if err != nil {
		s.renderFailure(c, err)
		return
	}
	writeRendered(c, f, out)
}

func (s *QuoteServer) getCompanyInfo(c *gin.Context) {
	f, ok := parseFormat(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	rec, err := s.svc.Company(ctx, c.Param("symbol"))
	if err != nil {
		renderError(c, err)
		return
	}

	out, err := format.Company(rec, f)
	if err != nil {
		s.renderFailure(c, err)
		return
	}
	writeRendered(c, f, out)
}

// renderFailure 渲染阶段的失败统一按内部错误返回
func (s *QuoteServer) renderFailure(c *gin.Context, err error) {
	s.logger.WithError(err).Error("Failed to render response")
	c.JSON(500, ErrorResponse{Error: "internal_error", Message: "failed to render response"})
}

// parseFormat 解析 format 查询参数，API 默认返回 JSON
func parseFormat(c *gin.Context) (format.Format, bool) {
	f, err := format.Parse(c.DefaultQuery("format", "json"))
	if err != nil {
		c.JSON(400, ErrorResponse{Error: "bad_request", Message: err.Error()})
		return "", false
	}
	return f, true
}

// writeRendered 按输出格式写响应体，JSON 走 application/json，表格走 text/plain
func writeRendered(c *gin.Context, f format.Format, out string) {
	if f == format.FormatJSON {
		c.Data(200, "application/json; charset=utf-8", []byte(out))
		return
	}
	c.String(200, out)
}

// renderError 将查询错误映射为 HTTP 状态码。
// 输入类错误 400，上游全部失败 502，总体超时 504，凭证缺失 503。
func renderError(c *gin.Context, err error) {
	code := core.CodeOf(err)
	label := string(code)
	status := 500

	switch code {
	case core.CodeInvalidSymbol, core.CodeAmbiguousSymbol, core.CodeUnknownSource, core.CodePermanent:
		status = 400
	case core.CodeCredentialMissing:
		status = 503
	case core.CodeAllSourcesFailed, core.CodeTransient:
		status = 502
	case core.CodeDeadlineExceeded:
		status = 504
	case "":
		status = 400
		label = "bad_request"
	default:
		label = "internal_error"
	}

	c.JSON(status, ErrorResponse{Error: label, Message: err.Error()})
}

// splitSymbols 拆分逗号分隔的代码列表，忽略空白项
func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			symbols = append(symbols, p)
		}
	}
	return symbols
}
