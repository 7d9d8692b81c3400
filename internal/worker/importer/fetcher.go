// Package importer は外部のRSS/Atomフィードから記事を定期的に取り込む。
// 取り込んだ記事は自動生成の下書きとしてレビュー待ちに入る。
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Karans11/ai-news-app/internal/ingest"
	"github.com/Karans11/ai-news-app/internal/metrics"
	"github.com/Karans11/ai-news-app/internal/model"
)

// DraftImporter は取り込んだ記事を下書きとして保存する。
type DraftImporter interface {
	ImportDraft(ctx context.Context, payload ingest.DraftPayload) (*model.Article, bool, error)
}

// URLGuard はSSRF検証のインターフェース。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// FetchStats は1ソース分の取り込み件数。
type FetchStats struct {
	Created int
	Skipped int
	Failed  int
}

// Fetcher は個別フィードのHTTPフェッチとパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// gofeedによるパース、DraftImporterによる下書き作成を実行する。
type Fetcher struct {
	importer    DraftImporter
	guard       URLGuard
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	interval    time.Duration
	now         func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// intervalは成功時に次回フェッチまで空ける時間。
func NewFetcher(
	importer DraftImporter,
	guard URLGuard,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	interval time.Duration,
) *Fetcher {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Fetcher{
		importer:    importer,
		guard:       guard,
		metrics:     collector,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		interval:    interval,
		now:         time.Now,
	}
}

// Fetch はソースをフェッチし、新しい記事を下書きとして取り込む。
// 結果に応じてソースのフェッチ状態を更新する。
func (f *Fetcher) Fetch(ctx context.Context, src *Source) (FetchStats, error) {
	var stats FetchStats
	start := time.Now()

	// SSRF検証
	if err := f.guard.ValidateURL(src.URL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_url", src.URL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordImportFailure("ssrf_blocked")
		src.ApplyStop(fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		return stats, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := f.guard.NewSafeClient(f.timeout, f.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return stats, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	req.Header.Set("User-Agent", "AINews/1.0 Feed Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET
	etag, lastModified := src.validators()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", src.URL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordImportFailure("http_error")
		src.ApplyBackoff(f.now(), fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		return stats, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)
	f.metrics.RecordFetchLatency(duration)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("フィードは未変更です（304）",
			slog.String("feed_url", src.URL),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		src.ApplySuccess(f.now(), f.interval)
		return stats, nil

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d により取り込みを停止しました", resp.StatusCode)
		f.logger.Warn("フィードの取り込みを停止します",
			slog.String("feed_url", src.URL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordImportFailure("http_status")
		src.ApplyStop(reason)
		return stats, nil

	case FetchResultBackoff:
		f.logger.Warn("フィードフェッチにバックオフを適用します",
			slog.String("feed_url", src.URL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordImportFailure("http_status")
		src.ApplyBackoff(f.now(), fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode))
		return stats, nil

	case FetchResultOK:
	default:
		f.logger.Warn("予期しないHTTPステータスコード",
			slog.String("feed_url", src.URL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordImportFailure("http_status")
		src.ApplyBackoff(f.now(), fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode))
		return stats, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.metrics.RecordImportFailure("read_error")
		src.ApplyBackoff(f.now(), fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		return stats, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("feed_url", src.URL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordImportFailure("parse_error")
		src.ApplyParseFailure(f.now(), f.interval, err.Error())
		return stats, nil
	}

	src.recordValidators(resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), parsed.Title)

	for _, payload := range convertItems(parsed.Title, parsed.Items) {
		_, created, err := f.importer.ImportDraft(ctx, payload)
		switch {
		case err != nil && model.HasCode(err, model.ErrCodeValidation):
			stats.Failed++
			f.metrics.RecordImportFailure("invalid_item")
			f.logger.Warn("記事の取り込みをスキップしました",
				slog.String("feed_url", src.URL),
				slog.String("original_url", payload.OriginalURL),
				slog.String("error", err.Error()),
			)
		case err != nil:
			stats.Failed++
			f.metrics.RecordImportFailure("store_error")
			f.logger.Error("記事の取り込みに失敗しました",
				slog.String("feed_url", src.URL),
				slog.String("original_url", payload.OriginalURL),
				slog.String("error", err.Error()),
			)
		case created:
			stats.Created++
		default:
			stats.Skipped++
		}
	}

	src.ApplySuccess(f.now(), f.interval)

	f.logger.Info("フィードの取り込みが完了しました",
		slog.String("feed_url", src.URL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("items_created", stats.Created),
		slog.Int("items_skipped", stats.Skipped),
		slog.Int("items_failed", stats.Failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return stats, nil
}

// convertItems はgofeedの記事を取り込みペイロードに変換する。
func convertItems(feedTitle string, items []*gofeed.Item) []ingest.DraftPayload {
	payloads := make([]ingest.DraftPayload, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		p := ingest.DraftPayload{
			Title:       item.Title,
			Summary:     item.Description,
			OriginalURL: item.Link,
			Source:      feedTitle,
			Tags:        ingest.TagList(item.Categories),
		}

		// Descriptionが空の場合はContentを使用
		if p.Summary == "" {
			p.Summary = item.Content
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if p.OriginalURL == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			p.OriginalURL = item.GUID
		}

		if item.Image != nil {
			p.ImageURL = item.Image.URL
		}
		if p.ImageURL == "" {
			for _, enc := range item.Enclosures {
				if enc != nil && strings.HasPrefix(enc.Type, "image/") {
					p.ImageURL = enc.URL
					break
				}
			}
		}

		payloads = append(payloads, p)
	}

	return payloads
}
