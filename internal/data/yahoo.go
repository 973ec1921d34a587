package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"noiseband/internal/logger"
	"noiseband/internal/market"
)

// YahooSource pulls intraday bars from the Yahoo Finance chart API, which
// covers index tickers like ^GSPC that exchange APIs do not.
type YahooSource struct {
	baseURL string
	client  *http.Client
}

func NewYahooSource(proxyURL string) *YahooSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooSource{
		baseURL: "https://query1.finance.yahoo.com",
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (s *YahooSource) Name() string { return "yahoo" }

// Fetch downloads bars and drops rows with missing or non-numeric fields
// before they can reach the core. Timestamps are Unix seconds UTC.
func (s *YahooSource) Fetch(ctx context.Context, req FetchRequest) ([]market.Bar, error) {
	if req.Symbol == "" || req.Interval == "" {
		return nil, fmt.Errorf("symbol/interval are required")
	}
	u, _ := url.Parse(s.baseURL)
	u.Path = "/v8/finance/chart/" + req.Symbol
	q := u.Query()
	q.Set("interval", req.Interval)
	if req.Start > 0 {
		q.Set("period1", strconv.FormatInt(req.Start, 10))
		end := req.End
		if end <= 0 {
			end = time.Now().Unix()
		}
		q.Set("period2", strconv.FormatInt(end, 10))
	} else {
		rng := req.Range
		if rng == "" {
			rng = "14d"
		}
		q.Set("range", rng)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	// Yahoo rejects requests without a browser-looking UA.
	httpReq.Header.Set("User-Agent", "Mozilla/5.0")
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d", resp.StatusCode)
	}
	return parseYahooChart(body)
}

func parseYahooChart(body []byte) ([]market.Bar, error) {
	root := gjson.ParseBytes(body)
	if desc := root.Get("chart.error.description"); desc.Exists() && desc.String() != "" {
		return nil, fmt.Errorf("yahoo api error: %s", desc.String())
	}
	result := root.Get("chart.result.0")
	if !result.Exists() {
		return nil, fmt.Errorf("yahoo: no data returned")
	}
	timestamps := result.Get("timestamp").Array()
	quote := result.Get("indicators.quote.0")
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()

	bars := make([]market.Bar, 0, len(timestamps))
	dropped := 0
	for i, ts := range timestamps {
		if i >= len(opens) || i >= len(highs) || i >= len(lows) || i >= len(closes) {
			dropped++
			continue
		}
		o, h, l, c := opens[i], highs[i], lows[i], closes[i]
		// Null quote entries are Yahoo's way of flagging a missing sample.
		if o.Type == gjson.Null || h.Type == gjson.Null || l.Type == gjson.Null || c.Type == gjson.Null {
			dropped++
			continue
		}
		bars = append(bars, market.Bar{
			Time:  time.Unix(ts.Int(), 0).UTC(),
			Open:  o.Float(),
			High:  h.Float(),
			Low:   l.Float(),
			Close: c.Float(),
		})
	}
	if dropped > 0 {
		logger.Debugf("yahoo: dropped %d incomplete rows", dropped)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("yahoo: no usable rows")
	}
	market.SortBars(bars)
	return bars, nil
}
