// Package refdata は車両参照データ（FIPEテーブル）APIのクライアントを提供する。
// ブランド、モデル、年式、価格情報の取得を含む。リトライは行わない。
package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/autotrackr/internal/metrics"
)

const (
	// DefaultBaseURL はFIPE APIのベースURL。
	DefaultBaseURL = "https://parallelum.com.br/fipe/api/v1"
	// defaultRateLimit は外部APIへの送信ペース（リクエスト/秒）。
	defaultRateLimit = 5
	defaultBurst     = 10
	maxResponseBytes = 4 << 20
)

// StatusError は参照データAPIが200以外を返したことを表す。
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("参照データAPIがステータス %d を返しました（%s）", e.StatusCode, e.Endpoint)
}

// Config はClientの設定。
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	// RateLimit は1秒あたりの送信数。0以下の場合は既定値。
	RateLimit float64
	Burst     int
	Metrics   metrics.MetricsCollector
}

// Client は参照データAPIのクライアント。状態を持たない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	limiter    *rate.Limiter
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, logger *slog.Logger) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(limit), burst),
		metrics:    m,
	}
}

// Brands は乗用車のブランド一覧を取得する。
func (c *Client) Brands(ctx context.Context) ([]Option, error) {
	var out []Option
	if err := c.get(ctx, "brands", "/carros/marcas", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Models はブランドのモデル一覧を取得する。
func (c *Client) Models(ctx context.Context, brandID string) ([]Option, error) {
	var out modelsResponse
	path := "/carros/marcas/" + url.PathEscape(brandID) + "/modelos"
	if err := c.get(ctx, "models", path, &out); err != nil {
		return nil, err
	}
	return out.options(), nil
}

// Years はモデルの年式一覧を取得する。
func (c *Client) Years(ctx context.Context, brandID, modelID string) ([]Option, error) {
	var out []Option
	path := "/carros/marcas/" + url.PathEscape(brandID) + "/modelos/" + url.PathEscape(modelID) + "/anos"
	if err := c.get(ctx, "years", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// VehicleInfo は年式を指定して車両の詳細（価格等）を取得する。
func (c *Client) VehicleInfo(ctx context.Context, brandID, modelID, yearID string) (*VehicleInfo, error) {
	var out VehicleInfo
	path := "/carros/marcas/" + url.PathEscape(brandID) + "/modelos/" + url.PathEscape(modelID) + "/anos/" + url.PathEscape(yearID)
	if err := c.get(ctx, "vehicle_info", path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindBrand は識別子に一致するブランドを返す。見つからない場合はnilを返す。
func (c *Client) FindBrand(ctx context.Context, brandID string) (*Option, error) {
	brands, err := c.Brands(ctx)
	if err != nil {
		return nil, err
	}
	return findOption(brands, brandID), nil
}

// FindModel は識別子に一致するモデルを返す。見つからない場合はnilを返す。
func (c *Client) FindModel(ctx context.Context, brandID, modelID string) (*Option, error) {
	models, err := c.Models(ctx, brandID)
	if err != nil {
		return nil, err
	}
	return findOption(models, modelID), nil
}

func findOption(opts []Option, id string) *Option {
	for i := range opts {
		if opts[i].ID == id {
			return &opts[i]
		}
	}
	return nil
}

// get はGETリクエストを送信し、200の場合のみoutにデコードする。
func (c *Client) get(ctx context.Context, endpoint, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		c.metrics.RecordReferenceRequest(endpoint, false)
		return fmt.Errorf("参照データAPIの送信待機に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "AutoTrackr/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordReferenceLatency(time.Since(start))
	if err != nil {
		c.metrics.RecordReferenceRequest(endpoint, false)
		c.logger.Error("参照データAPIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	c.metrics.RecordReferenceStatus(resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordReferenceRequest(endpoint, false)
		c.logger.Error("参照データAPIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.RecordReferenceRequest(endpoint, false)
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordReferenceRequest(endpoint, false)
		c.logger.Error("参照データAPIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	c.metrics.RecordReferenceRequest(endpoint, true)
	return nil
}
