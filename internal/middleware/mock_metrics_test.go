package middleware

import "github.com/Karans11/ai-news-app/internal/metrics"

// statusCollector はHTTPステータスのみを記録するテスト用コレクター。
type statusCollector struct {
	metrics.Nop
	record func(code int)
}

func (c *statusCollector) RecordHTTPStatus(code int) {
	c.record(code)
}
