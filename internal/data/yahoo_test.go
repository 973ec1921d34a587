package data

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYahooChart(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		body := []byte(`{
			"chart": {
				"result": [{
					"timestamp": [1709301600, 1709303400],
					"indicators": {"quote": [{
						"open":  [100.0, 100.5],
						"high":  [101.0, 101.5],
						"low":   [99.0, 100.0],
						"close": [100.5, 101.25]
					}]}
				}],
				"error": null
			}
		}`)
		bars, err := parseYahooChart(body)
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.Equal(t, time.Unix(1709301600, 0).UTC(), bars[0].Time)
		assert.Equal(t, 100.5, bars[0].Close)
		assert.Equal(t, 101.25, bars[1].Close)
	})

	t.Run("null quote rows are dropped", func(t *testing.T) {
		body := []byte(`{
			"chart": {
				"result": [{
					"timestamp": [1709301600, 1709303400, 1709305200],
					"indicators": {"quote": [{
						"open":  [100.0, null, 102.0],
						"high":  [101.0, null, 103.0],
						"low":   [99.0, null, 101.0],
						"close": [100.5, null, 102.5]
					}]}
				}]
			}
		}`)
		bars, err := parseYahooChart(body)
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.Equal(t, 100.5, bars[0].Close)
		assert.Equal(t, 102.5, bars[1].Close)
	})

	t.Run("api error surfaces its description", func(t *testing.T) {
		body := []byte(`{"chart": {"result": null, "error": {"code": "Not Found", "description": "No data found, symbol may be delisted"}}}`)
		_, err := parseYahooChart(body)
		assert.ErrorContains(t, err, "symbol may be delisted")
	})

	t.Run("empty result fails", func(t *testing.T) {
		_, err := parseYahooChart([]byte(`{"chart": {"result": []}}`))
		assert.Error(t, err)
	})

	t.Run("all rows null fails", func(t *testing.T) {
		body := []byte(`{
			"chart": {
				"result": [{
					"timestamp": [1709301600],
					"indicators": {"quote": [{
						"open": [null], "high": [null], "low": [null], "close": [null]
					}]}
				}]
			}
		}`)
		_, err := parseYahooChart(body)
		assert.ErrorContains(t, err, "no usable rows")
	})
}
