package eodhd

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/priitl/stocks-helper-sub000/date"
	"github.com/shopspring/decimal"
)

const testKey = "test-key"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_token") != testKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/real-time/AAPL.US":
			fmt.Fprintln(w, `{"code":"AAPL.US","timestamp":1718386800,"open":213.85,"close":212.49}`)
		case "/real-time/MC.PA":
			fmt.Fprintln(w, `{"code":"MC.PA","close":[701.2]}`)
		case "/real-time/GONE.US":
			fmt.Fprintln(w, `{"code":"GONE.US","timestamp":"NA","close":"NA"}`)
		case "/splits/AAPL.US":
			if r.URL.Query().Get("from") != "2000-01-01" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			fmt.Fprintln(w, `[{"date":"2014-06-09","split":"7.000000/1.000000"},{"date":"2020-08-31","split":"4/1"}]`)
		case "/splits/ODD.US":
			fmt.Fprintln(w, `[{"date":"2021-01-04","split":"1/2.5"},{"date":"2022-01-04","split":"bogus"}]`)
		case "/eod/AAPL.US":
			fmt.Fprintln(w, `[{"date":"2024-02-13","open":1,"close":185.04},{"date":"2024-02-14","open":1,"close":184.15}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return New(testKey, WithBaseURL(server.URL), WithHTTPClient(server.Client()), WithRateLimit(1000))
}

func TestCurrentPrice(t *testing.T) {
	c := newTestClient(t)
	testCases := []struct {
		ticker  string
		want    decimal.Decimal
		wantOK  bool
		wantErr bool
	}{
		{ticker: "AAPL", want: decimal.RequireFromString("212.49"), wantOK: true},
		{ticker: "MC.PA", want: decimal.RequireFromString("701.2"), wantOK: true},
		{ticker: "GONE"},
		{ticker: "MISSING", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.ticker, func(t *testing.T) {
			got, ok, err := c.CurrentPrice(context.Background(), tc.ticker)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CurrentPrice() error = %v, wantErr %v", err, tc.wantErr)
			}
			if ok != tc.wantOK || !got.Equal(tc.want) {
				t.Errorf("CurrentPrice() = %s, %v, want %s, %v", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestSplits(t *testing.T) {
	c := newTestClient(t)
	splits, err := c.Splits(context.Background(), "AAPL", date.MustParse("2000-01-01"), date.MustParse("2025-01-01"))
	if err != nil {
		t.Fatalf("Splits() error = %v", err)
	}
	type split struct {
		Ticker   string
		Date     string
		From, To int64
		Ratio    string
	}
	var got []split
	for _, sp := range splits {
		got = append(got, split{sp.Ticker, sp.Date.String(), sp.From, sp.To, sp.Ratio.String()})
	}
	want := []split{
		{"AAPL", "2014-06-09", 1, 7, "7"},
		{"AAPL", "2020-08-31", 1, 4, "4"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Splits() mismatch (-want +got):\n%s", diff)
	}
}

func TestSplits_Invalid(t *testing.T) {
	c := newTestClient(t)
	splits, err := c.Splits(context.Background(), "ODD", date.MustParse("2000-01-01"), date.MustParse("2025-01-01"))
	if err == nil {
		t.Error("Splits() error = nil, want the bogus split reported")
	}
	if len(splits) != 1 || splits[0].From != 5 || splits[0].To != 2 {
		t.Errorf("Splits() = %+v, want one 2 for 5 reverse split", splits)
	}
}

func TestDailyCloses(t *testing.T) {
	c := newTestClient(t)
	h, err := c.DailyCloses(context.Background(), "AAPL", date.MustParse("2024-02-13"), date.MustParse("2024-02-14"))
	if err != nil {
		t.Fatalf("DailyCloses() error = %v", err)
	}
	if h.Len() != 2 {
		t.Fatalf("DailyCloses() returned %d days, want 2", h.Len())
	}
	if day, v := h.Latest(); day != date.MustParse("2024-02-14") || !v.Equal(decimal.RequireFromString("184.15")) {
		t.Errorf("Latest() = %s %s", day, v)
	}
}

func Test_simplifyDecimalRatio(t *testing.T) {
	testCases := []struct {
		num, den         string
		wantNum, wantDen int64
	}{
		{"2", "1", 2, 1},
		{"4.000000", "1.000000", 4, 1},
		{"1", "2.5", 2, 5},
		{"1.5", "1", 3, 2},
		{"10", "4", 5, 2},
	}
	for _, tc := range testCases {
		t.Run(tc.num+"/"+tc.den, func(t *testing.T) {
			num, den := simplifyDecimalRatio(decimal.RequireFromString(tc.num), decimal.RequireFromString(tc.den))
			if num != tc.wantNum || den != tc.wantDen {
				t.Errorf("simplifyDecimalRatio() = %d/%d, want %d/%d", num, den, tc.wantNum, tc.wantDen)
			}
		})
	}
}
