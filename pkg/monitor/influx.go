package monitor

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"stockquery/pkg/logger"
)

// InfluxConfig InfluxDB 度量落地配置
type InfluxConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Token  string `json:"token" mapstructure:"token"`
	Org    string `json:"org" mapstructure:"org"`
	Bucket string `json:"bucket" mapstructure:"bucket"`
}

// InfluxRecorder 将度量写入 InfluxDB。
// 写入走异步批量通道，错误由后台协程记录日志。
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	log      *logrus.Entry
	done     chan struct{}
}

// NewInfluxRecorder 创建 InfluxDB 度量记录器并校验连接
func NewInfluxRecorder(cfg InfluxConfig) (*InfluxRecorder, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		return nil, fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	r := &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		log:      logger.WithComponent("InfluxRecorder"),
		done:     make(chan struct{}),
	}
	go r.drainWriteErrors()

	return r, nil
}

// drainWriteErrors 消费异步写入的错误通道
func (r *InfluxRecorder) drainWriteErrors() {
	errCh := r.writeAPI.Errors()
	for {
		select {
		case <-r.done:
			return
		case err, ok := <-errCh:
			if !ok {
				return
			}
			r.log.WithError(err).Error("InfluxDB write error")
		}
	}
}

// Record 实现 Recorder 接口
func (r *InfluxRecorder) Record(m Metric) {
	point := influxdb2.NewPointWithMeasurement("request_outcome").
		AddTag("operation", m.Operation).
		AddTag("source", string(m.Source)).
		AddTag("state", m.State).
		AddField("request_id", m.RequestID).
		AddField("symbol", m.Symbol).
		AddField("attempts", m.Attempts).
		AddField("fallbacks", m.Fallbacks).
		AddField("duration_ms", m.Duration.Milliseconds()).
		SetTime(m.Timestamp)

	if m.Err != nil {
		point.AddField("error", m.Err.Error())
	}

	r.writeAPI.WritePoint(point)
}

// Close 刷出写入缓冲并关闭客户端
func (r *InfluxRecorder) Close() error {
	r.writeAPI.Flush()
	close(r.done)
	r.client.Close()
	return nil
}

var _ Recorder = (*InfluxRecorder)(nil)
