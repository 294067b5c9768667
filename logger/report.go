package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsProcessor int64
	errorsOther     int64
	warnsProcessor  int64
	warnsOther      int64
	channels        sync.Map // map[string]*channelStat

	statsMu      sync.RWMutex
	statsProvide func() Fields
)

func recordWarn(component string) {
	if strings.Contains(component, "processor") || strings.Contains(component, "intake") {
		atomic.AddInt64(&warnsProcessor, 1)
	} else {
		atomic.AddInt64(&warnsOther, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "processor") || strings.Contains(component, "intake") {
		atomic.AddInt64(&errorsProcessor, 1)
	} else {
		atomic.AddInt64(&errorsOther, 1)
	}
}

// RecordChannelMessage tracks per-queue throughput for the periodic report.
func RecordChannelMessage(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// RegisterStatsProvider installs a callback the periodic report calls to pull
// engine gauges (queue depth, processing/paused flags) without this package
// importing the engine.
func RegisterStatsProvider(fn func() Fields) {
	statsMu.Lock()
	statsProvide = fn
	statsMu.Unlock()
}

// StartReport begins periodic logging of engine and queue statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	statsMu.RLock()
	provide := statsProvide
	statsMu.RUnlock()

	engineStats := Fields{}
	if provide != nil {
		engineStats = provide()
	}

	fields := Fields{
		"errors_processor": atomic.LoadInt64(&errorsProcessor),
		"errors_other":     atomic.LoadInt64(&errorsOther),
		"warns_processor":  atomic.LoadInt64(&warnsProcessor),
		"warns_other":      atomic.LoadInt64(&warnsOther),
		"goroutines":       runtime.NumGoroutine(),
		"channels":         channelData,
	}
	for k, v := range engineStats {
		fields[k] = v
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("Execflow-Goroutines"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(runtime.NumGoroutine()))},
		{MetricName: aws.String("Execflow-ErrorsProcessor"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsProcessor)))},
		{MetricName: aws.String("Execflow-ErrorsOther"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsOther)))},
	}
	if depth, ok := engineStats["queue_depth"].(int); ok {
		data = append(data, cwtypes.MetricDatum{MetricName: aws.String("Execflow-QueueDepth"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(depth))})
	}

	for name, stats := range channelData {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("Execflow-ChannelMessages"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(stats["messages"])),
		})
	}

	publishMetrics(ctx, data)
}
