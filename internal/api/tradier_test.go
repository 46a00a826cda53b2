package api_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"quote-ingestor/internal/api"
	"quote-ingestor/internal/collector"
	"quote-ingestor/internal/model"
)

func newServer(t *testing.T, handler http.HandlerFunc) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL, "token-123", 2*time.Second, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestClient_QuotesSingleObject(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/markets/quotes" || r.URL.Query().Get("symbols") != "AAPL" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("Authorization") != "Bearer token-123" {
			t.Errorf("missing bearer token")
		}
		writeJSON(w, `{"quotes":{"quote":{"symbol":"AAPL","last":170.25}}}`)
	})

	raw, err := client.Quotes(context.Background(), []string{"AAPL"})
	if err != nil {
		t.Fatalf("Quotes: %v", err)
	}
	objs, err := collector.Normalize(raw)
	if err != nil || len(objs) != 1 {
		t.Fatalf("expected one quote, got %d (%v)", len(objs), err)
	}
}

func TestClient_HTTPErrorIsFetchError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Quotes(context.Background(), []string{"AAPL", "TSLA"})
	var fe *api.FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected FetchError with 503, got %v", err)
	}
}

func TestClient_CreateStreamSession(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/markets/events/session" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
		writeJSON(w, `{"stream":{"url":"https://stream.tradier.com/v1/markets/events","sessionid":"c8638963-a6d4"}}`)
	})

	id, err := client.CreateStreamSession(context.Background())
	if err != nil || id != "c8638963-a6d4" {
		t.Fatalf("CreateStreamSession = %q, %v", id, err)
	}
}

func TestClient_CreateStreamSessionMissingID(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"stream":{}}`)
	})

	if _, err := client.CreateStreamSession(context.Background()); !errors.Is(err, api.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

const marchCalendar = `{"calendar":{"month":3,"year":2024,"days":{"day":[
	{"date":"2024-03-04","status":"open","description":"Market is open","open":{"start":"09:30","end":"16:00"}},
	{"date":"2024-03-29","status":"closed","description":"Good Friday"}
]}}}`

func TestCalendarAdapter_GetSession(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("month") != "03" || r.URL.Query().Get("year") != "2024" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		writeJSON(w, marchCalendar)
	})
	adapter := api.NewCalendarAdapter(client, ny)

	session, err := adapter.GetSession(context.Background(), time.Date(2024, 3, 4, 8, 0, 0, 0, ny))
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.Status != model.SessionOpen {
		t.Fatalf("status = %q", session.Status)
	}
	if !session.Open.Equal(time.Date(2024, 3, 4, 9, 30, 0, 0, ny)) || !session.Close.Equal(time.Date(2024, 3, 4, 16, 0, 0, 0, ny)) {
		t.Fatalf("boundaries = %s - %s", session.Open, session.Close)
	}

	holiday, err := adapter.GetSession(context.Background(), time.Date(2024, 3, 29, 8, 0, 0, 0, ny))
	if err != nil || holiday.IsOpen() {
		t.Fatalf("Good Friday should be closed: %+v, %v", holiday, err)
	}

	if _, err := adapter.GetSession(context.Background(), time.Date(2024, 3, 15, 8, 0, 0, 0, ny)); err == nil {
		t.Fatal("missing day should be an error")
	}
}

func TestClient_OptionChain(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/v1/markets/options/chains" || q.Get("symbol") != "SPY" || q.Get("expiration") != "2024-03-08" {
			t.Errorf("unexpected request %s", r.URL)
		}
		writeJSON(w, `{"options":{"option":{"symbol":"SPY240308C00500000","strike":500}}}`)
	})

	raw, err := client.OptionChain(context.Background(), "SPY", "2024-03-08")
	if err != nil {
		t.Fatalf("OptionChain: %v", err)
	}
	contracts, err := collector.Normalize(raw)
	if err != nil || len(contracts) != 1 {
		t.Fatalf("expected one contract, got %d (%v)", len(contracts), err)
	}
}
