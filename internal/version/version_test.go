package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"0.4.0", "0.4.0", 0},
		{"0.4.0", "0.10.0", -1},
		{"v1.2.3", "1.2.2", 1},
		{"1.0.0-rc1", "1.0.0", 0},
		{"1", "1.0.1", -1},
	}
	for _, tc := range cases {
		if got := compareVersions(tc.a, tc.b); got != tc.want {
			t.Errorf("compare(%s, %s): expected %d, got %d", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "nwpcycle/") {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		_, _ = w.Write([]byte(`{"tag_name":"v99.0.0","html_url":"https://example.org/r"}`))
	}))
	defer srv.Close()

	info, err := Latest(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !info.UpdateAvailable || info.Latest != "99.0.0" {
		t.Fatalf("expected update to 99.0.0, got %+v", info)
	}
	if !strings.Contains(String(), Version) {
		t.Fatalf("version string should contain %s", Version)
	}
}
