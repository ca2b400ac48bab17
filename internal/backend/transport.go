package backend

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// 既定値
const (
	DefaultTimeout         = 10 * time.Second
	DefaultMaxRetries      = 2
	defaultInitialInterval = 200 * time.Millisecond
	defaultMaxInterval     = 1 * time.Second
)

var errServerStatus = errors.New("backend: server responded 500")

// RetryTransport はHTTP 500のみを対象に再送するhttp.RoundTripper。
// 通信エラーや500以外のステータスは再送しない。
type RetryTransport struct {
	Base            http.RoundTripper
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// OnRetry は再送のたびに呼ばれる。nilの場合は呼ばれない。
	OnRetry func(req *http.Request, attempt int)
}

// NewHTTPClient は固定タイムアウトと500リトライを備えたhttp.Clientを生成する。
func NewHTTPClient(timeout time.Duration, maxRetries int, onRetry func(req *http.Request, attempt int)) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &RetryTransport{
			MaxRetries: maxRetries,
			OnRetry:    onRetry,
		},
	}
}

// RoundTrip はhttp.RoundTripperインターフェースを実装する。
// 最後の試行も500だった場合はそのレスポンスを返す。
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var resp *http.Response
	attempt := 0

	op := func() error {
		r := req
		if attempt > 0 {
			r = req.Clone(req.Context())
			if req.Body != nil && req.Body != http.NoBody {
				if req.GetBody == nil {
					return backoff.Permanent(errors.New("backend: request body cannot be replayed"))
				}
				body, err := req.GetBody()
				if err != nil {
					return backoff.Permanent(err)
				}
				r.Body = body
			}
		}
		attempt++

		res, err := base.RoundTrip(r)
		if err != nil {
			return backoff.Permanent(err)
		}
		if res.StatusCode == http.StatusInternalServerError && attempt <= t.MaxRetries {
			_, _ = io.Copy(io.Discard, res.Body)
			res.Body.Close()
			if t.OnRetry != nil {
				t.OnRetry(req, attempt)
			}
			return errServerStatus
		}
		resp = res
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(t.newBackOff(), req.Context())); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *RetryTransport) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.InitialInterval
	if bo.InitialInterval <= 0 {
		bo.InitialInterval = defaultInitialInterval
	}
	bo.MaxInterval = t.MaxInterval
	if bo.MaxInterval <= 0 {
		bo.MaxInterval = defaultMaxInterval
	}
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
