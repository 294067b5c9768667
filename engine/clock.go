package engine

import "time"

const metricsSampleInterval = 5 * time.Second

func nowMs() int64 {
	return time.Now().UnixMilli()
}
