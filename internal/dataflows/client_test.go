package dataflows

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func vendorServer(t *testing.T, wantPath string, wantQuery map[string]string, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("path = %s, want %s", r.URL.Path, wantPath)
		}
		for key, want := range wantQuery {
			if got := r.URL.Query().Get(key); got != want {
				t.Errorf("query %s = %q, want %q", key, got, want)
			}
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer vendor-key" {
			t.Errorf("Authorization = %q", auth)
		}
		_, _ = w.Write([]byte(body))
	}))
}

func TestGetStockData(t *testing.T) {
	srv := vendorServer(t, "/prices", map[string]string{
		"symbol":     "NVDA",
		"start_date": "2024-04-10",
		"end_date":   "2024-05-10",
	}, "ohlcv rows")
	defer srv.Close()

	c := NewClient(NewVendor(srv.URL, "vendor-key", 0), nil, nil, nil)
	got, err := c.GetStockData(context.Background(), "NVDA", "2024-04-10", "2024-05-10")
	if err != nil {
		t.Fatalf("GetStockData: %v", err)
	}
	if got != "ohlcv rows" {
		t.Errorf("body = %q", got)
	}
}

func TestGetIndicators(t *testing.T) {
	srv := vendorServer(t, "/indicators", map[string]string{
		"symbol":         "NVDA",
		"date":           "2024-05-10",
		"look_back_days": "30",
	}, "indicator table")
	defer srv.Close()

	c := NewClient(NewVendor(srv.URL, "vendor-key", 0), nil, nil, nil)
	if _, err := c.GetIndicators(context.Background(), "NVDA", "2024-05-10", 30); err != nil {
		t.Fatalf("GetIndicators: %v", err)
	}
}

func TestFundamentalsEndpoints(t *testing.T) {
	cases := []struct {
		path string
		call func(c *Client) (string, error)
	}{
		{"/fundamentals", func(c *Client) (string, error) {
			return c.GetFundamentals(context.Background(), "NVDA", "2024-05-10")
		}},
		{"/balance-sheet", func(c *Client) (string, error) {
			return c.GetBalanceSheet(context.Background(), "NVDA", "2024-05-10")
		}},
		{"/cashflow", func(c *Client) (string, error) {
			return c.GetCashflow(context.Background(), "NVDA", "2024-05-10")
		}},
		{"/income-statement", func(c *Client) (string, error) {
			return c.GetIncomeStatement(context.Background(), "NVDA", "2024-05-10")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			srv := vendorServer(t, tc.path, map[string]string{
				"symbol": "NVDA",
				"date":   "2024-05-10",
			}, "statement")
			defer srv.Close()

			c := NewClient(nil, NewVendor(srv.URL, "vendor-key", 0), nil, nil)
			if _, err := tc.call(c); err != nil {
				t.Fatalf("%s: %v", tc.path, err)
			}
		})
	}
}

func TestGetGlobalNews(t *testing.T) {
	srv := vendorServer(t, "/global-news", map[string]string{
		"date":           "2024-05-10",
		"look_back_days": "7",
		"limit":          "10",
	}, "headlines")
	defer srv.Close()

	c := NewClient(nil, nil, NewVendor(srv.URL, "vendor-key", 0), nil)
	if _, err := c.GetGlobalNews(context.Background(), "2024-05-10", 7, 10); err != nil {
		t.Fatalf("GetGlobalNews: %v", err)
	}
}

func TestVendorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(NewVendor(srv.URL, "", 0), nil, nil, nil)
	if _, err := c.GetStockData(context.Background(), "NVDA", "a", "b"); err == nil {
		t.Fatal("expected error for non-200 vendor response")
	}

	unconfigured := NewClient(NewVendor("", "", 0), nil, nil, nil)
	if _, err := unconfigured.GetStockData(context.Background(), "NVDA", "a", "b"); err == nil {
		t.Fatal("expected error for unconfigured vendor")
	}
}
