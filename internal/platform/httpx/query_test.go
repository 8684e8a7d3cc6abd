package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func queryContext(target string) echo.Context {
	e := echo.New()
	return e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
}

func TestQueryTime(t *testing.T) {
	c := queryContext("/?from=2024-03-01&to=2024-03-01&at=2024-03-01T10:00:00Z&bad=yesterday")

	from, err := QueryTime(c, "from", false)
	if err != nil || !from.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected from %v (%v)", from, err)
	}
	to, err := QueryTime(c, "to", true)
	if err != nil || to.Day() != 1 || to.Hour() != 23 {
		t.Errorf("expected end of day, got %v (%v)", to, err)
	}
	at, err := QueryTime(c, "at", true)
	if err != nil || at.Hour() != 10 {
		t.Errorf("expected timestamp kept as is, got %v (%v)", at, err)
	}
	if missing, err := QueryTime(c, "missing", false); missing != nil || err != nil {
		t.Errorf("expected nil for missing param, got %v %v", missing, err)
	}
	if _, err := QueryTime(c, "bad", false); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestQueryBool(t *testing.T) {
	c := queryContext("/?read=true&bad=maybe")
	b, err := QueryBool(c, "read")
	if err != nil || b == nil || !*b {
		t.Errorf("expected true, got %v %v", b, err)
	}
	if _, err := QueryBool(c, "bad"); err == nil {
		t.Error("expected error")
	}
	if b, _ := QueryBool(c, "none"); b != nil {
		t.Errorf("expected nil, got %v", *b)
	}
}

func TestQueryList(t *testing.T) {
	c := queryContext("/?status=DRAFT,PENDING&status=SETTLED&status=")
	got := QueryList(c, "status")
	want := []string{"DRAFT", "PENDING", "SETTLED"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
