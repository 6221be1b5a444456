package tools

import (
	"context"
	"fmt"

	"tradenerd/internal/dataflows"
	"tradenerd/internal/types"
)

// StaticFor returns the statically declared tool set for a role. Only
// analyst roles carry tools; debate and synthesis roles argue over the
// reports already produced.
func StaticFor(role types.Role, dc *dataflows.Client) []*Descriptor {
	if dc == nil {
		return nil
	}

	switch role {
	case types.RoleMarketAnalyst:
		return []*Descriptor{
			stockDataTool(dc),
			indicatorsTool(dc),
		}
	case types.RoleSocialAnalyst:
		return []*Descriptor{
			socialSentimentTool(dc),
			newsTool(dc),
		}
	case types.RoleNewsAnalyst:
		return []*Descriptor{
			newsTool(dc),
			globalNewsTool(dc),
		}
	case types.RoleFundamentalsAnalyst:
		return []*Descriptor{
			fundamentalsTool(dc),
			balanceSheetTool(dc),
			cashflowTool(dc),
			incomeStatementTool(dc),
		}
	}
	return nil
}

func stockDataTool(dc *dataflows.Client) *Descriptor {
	return &Descriptor{
		Name:        "get_stock_data",
		Description: "Retrieve OHLCV price history for a ticker over a date window",
		Origin:      OriginStatic,
		Available:   true,
		Schema: Schema{
			Required: []string{"symbol", "start_date", "end_date"},
			Properties: map[string]Property{
				"symbol":     {Type: "string", Description: "Ticker symbol, e.g. NVDA"},
				"start_date": {Type: "string", Description: "Window start, YYYY-MM-DD"},
				"end_date":   {Type: "string", Description: "Window end, YYYY-MM-DD"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return dc.GetStockData(ctx, stringArg(args, "symbol"), stringArg(args, "start_date"), stringArg(args, "end_date"))
		},
	}
}

func indicatorsTool(dc *dataflows.Client) *Descriptor {
	return &Descriptor{
		Name:        "get_indicators",
		Description: "Retrieve technical indicator values (moving averages, MACD, RSI, Bollinger bands, ATR, VWMA) for a ticker",
		Origin:      OriginStatic,
		Available:   true,
		Schema: Schema{
			Required: []string{"symbol", "date"},
			Properties: map[string]Property{
				"symbol":         {Type: "string", Description: "Ticker symbol"},
				"date":           {Type: "string", Description: "Analysis date, YYYY-MM-DD"},
				"look_back_days": {Type: "integer", Description: "History window in days", Default: 30},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return dc.GetIndicators(ctx, stringArg(args, "symbol"), stringArg(args, "date"), intArg(args, "look_back_days", 30))
		},
	}
}

func socialSentimentTool(dc *dataflows.Client) *Descriptor {
	return &Descriptor{
		Name:        "get_social_sentiment",
		Description: "Retrieve aggregated social media sentiment for a ticker on a date",
		Origin:      OriginStatic,
		Available:   true,
		Schema: Schema{
			Required: []string{"symbol", "date"},
			Properties: map[string]Property{
				"symbol": {Type: "string", Description: "Ticker symbol"},
				"date":   {Type: "string", Description: "Analysis date, YYYY-MM-DD"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return dc.GetSocialSentiment(ctx, stringArg(args, "symbol"), stringArg(args, "date"))
		},
	}
}

func newsTool(dc *dataflows.Client) *Descriptor {
	return &Descriptor{
		Name:        "get_news",
		Description: "Search company-specific or targeted news over a date window",
		Origin:      OriginStatic,
		Available:   true,
		Schema: Schema{
			Required: []string{"query", "start_date", "end_date"},
			Properties: map[string]Property{
				"query":      {Type: "string", Description: "Search query, usually the ticker or company name"},
				"start_date": {Type: "string", Description: "Window start, YYYY-MM-DD"},
				"end_date":   {Type: "string", Description: "Window end, YYYY-MM-DD"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return dc.GetNews(ctx, stringArg(args, "query"), stringArg(args, "start_date"), stringArg(args, "end_date"))
		},
	}
}

func globalNewsTool(dc *dataflows.Client) *Descriptor {
	return &Descriptor{
		Name:        "get_global_news",
		Description: "Retrieve broad macroeconomic news up to a date",
		Origin:      OriginStatic,
		Available:   true,
		Schema: Schema{
			Required: []string{"date"},
			Properties: map[string]Property{
				"date":           {Type: "string", Description: "Analysis date, YYYY-MM-DD"},
				"look_back_days": {Type: "integer", Description: "History window in days", Default: 7},
				"limit":          {Type: "integer", Description: "Maximum articles", Default: 10},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return dc.GetGlobalNews(ctx, stringArg(args, "date"), intArg(args, "look_back_days", 7), intArg(args, "limit", 10))
		},
	}
}

func fundamentalsTool(dc *dataflows.Client) *Descriptor {
	return fundamentalsDescriptor("get_fundamentals",
		"Retrieve the fundamentals summary for a ticker", dc.GetFundamentals)
}

func balanceSheetTool(dc *dataflows.Client) *Descriptor {
	return fundamentalsDescriptor("get_balance_sheet",
		"Retrieve the most recent balance sheet for a ticker", dc.GetBalanceSheet)
}

func cashflowTool(dc *dataflows.Client) *Descriptor {
	return fundamentalsDescriptor("get_cashflow",
		"Retrieve the most recent cash flow statement for a ticker", dc.GetCashflow)
}

func incomeStatementTool(dc *dataflows.Client) *Descriptor {
	return fundamentalsDescriptor("get_income_statement",
		"Retrieve the most recent income statement for a ticker", dc.GetIncomeStatement)
}

// The four fundamentals tools share one contract: symbol + date in,
// report text out.
func fundamentalsDescriptor(name, description string, fetch func(ctx context.Context, ticker, date string) (string, error)) *Descriptor {
	return &Descriptor{
		Name:        name,
		Description: description,
		Origin:      OriginStatic,
		Available:   true,
		Schema: Schema{
			Required: []string{"symbol", "date"},
			Properties: map[string]Property{
				"symbol": {Type: "string", Description: "Ticker symbol"},
				"date":   {Type: "string", Description: "Analysis date, YYYY-MM-DD"},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return fetch(ctx, stringArg(args, "symbol"), stringArg(args, "date"))
		},
	}
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return fallback
}
