package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testResolver(gateways []string) *Resolver {
	return New(
		WithGateways(gateways),
		WithRetryBase(time.Millisecond),
	)
}

func TestNormalize(t *testing.T) {
	r := New()

	cases := []struct {
		uri        string
		wantPath   string
		wantRemote bool
		wantOK     bool
	}{
		{"", "", false, false},
		{"Qm", "", false, false},
		{"https://example.com/meta.json", "https://example.com/meta.json", true, true},
		{"http://example.com/meta.json", "http://example.com/meta.json", true, true},
		{"ipfs://QmABCDEF123", "QmABCDEF123", false, true},
		{"ipfs://ipfs/QmABCDEF123", "QmABCDEF123", false, true},
		{"ipfs/QmABCDEF123", "QmABCDEF123", false, true},
		{"//QmABCDEF123", "QmABCDEF123", false, true},
		{"ipfs://https://gw.example.com/ipfs/Qm123", "https://gw.example.com/ipfs/Qm123", true, true},
		{"QmABCDEF123", "QmABCDEF123", false, true},
	}

	for _, c := range cases {
		path, remote, ok := r.Normalize(c.uri)
		if path != c.wantPath || remote != c.wantRemote || ok != c.wantOK {
			t.Errorf("Normalize(%q) = (%q, %t, %t), want (%q, %t, %t)",
				c.uri, path, remote, ok, c.wantPath, c.wantRemote, c.wantOK)
		}
	}
}

func TestFetchWithRetry_Ceiling(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gateways := []string{"g1/", "g2/", "g3/", "g4/"}
	r := testResolver(gateways)

	_, err := r.FetchWithRetry(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := attempts.Load(); got != int64(len(gateways)) {
		t.Errorf("attempted %d times, want exactly %d", got, len(gateways))
	}
}

func TestFetchWithRetry_NonRetryableFailsFast(t *testing.T) {
	var attempts atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	r := testResolver([]string{"g1/", "g2/", "g3/"})
	_, err := r.FetchWithRetry(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("non-retryable status retried %d times", got)
	}
}

func TestFetchJSON_GatewayFallbackOrder(t *testing.T) {
	var mu sync.Mutex
	var firstSeen []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gw := req.URL.Path[:4] // "/gN/"
		mu.Lock()
		seen := false
		for _, s := range firstSeen {
			if s == gw {
				seen = true
				break
			}
		}
		if !seen {
			firstSeen = append(firstSeen, gw)
		}
		mu.Unlock()

		if gw == "/g4/" {
			fmt.Fprint(w, `{"name":"from-gateway-4"}`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gateways := []string{
		server.URL + "/g1/",
		server.URL + "/g2/",
		server.URL + "/g3/",
		server.URL + "/g4/",
	}
	r := testResolver(gateways)

	doc := r.FetchJSON(context.Background(), "ipfs://QmTest1234")
	if doc == nil {
		t.Fatal("expected document from gateway 4")
	}
	if doc.Name == nil || *doc.Name != "from-gateway-4" {
		t.Errorf("unexpected document: %+v", doc)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"/g1/", "/g2/", "/g3/", "/g4/"}
	if len(firstSeen) != len(want) {
		t.Fatalf("gateways touched: %v, want %v", firstSeen, want)
	}
	for i := range want {
		if firstSeen[i] != want[i] {
			t.Errorf("gateway order: %v, want %v", firstSeen, want)
			break
		}
	}
}

func TestFetchJSON_DirectURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"name":"Foo","description":"bar"}`)
	}))
	defer server.Close()

	r := testResolver([]string{"unused/"})
	doc := r.FetchJSON(context.Background(), server.URL+"/meta.json")
	if doc == nil {
		t.Fatal("expected document")
	}
	if doc.Name == nil || *doc.Name != "Foo" {
		t.Errorf("unexpected name: %+v", doc.Name)
	}
	if doc.MetadataLink != server.URL+"/meta.json" {
		t.Errorf("metadataLink = %q", doc.MetadataLink)
	}
}

func TestFetchJSON_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}))
	defer server.Close()

	r := testResolver([]string{"unused/"})
	if doc := r.FetchJSON(context.Background(), server.URL+"/meta.json"); doc != nil {
		t.Errorf("malformed JSON must yield nil, got %+v", doc)
	}
}

func TestFetchJSON_AllGatewaysExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r := testResolver([]string{server.URL + "/a/", server.URL + "/b/"})
	if doc := r.FetchJSON(context.Background(), "ipfs://QmDead9999"); doc != nil {
		t.Errorf("expected nil when every gateway fails, got %+v", doc)
	}
}

func TestFetchResource_ContentType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		io.WriteString(w, "png-bytes")
	}))
	defer server.Close()

	r := testResolver([]string{server.URL + "/ipfs/"})
	info := r.FetchResource(context.Background(), "ipfs://QmImage999")
	if info == nil {
		t.Fatal("expected resource info")
	}
	if info.ContentType != "image/png" {
		t.Errorf("contentType = %q", info.ContentType)
	}
	if info.URL != server.URL+"/ipfs/QmImage999" {
		t.Errorf("url = %q", info.URL)
	}
}

func TestFetchJSON_ShortPointerNoRequest(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	r := testResolver([]string{server.URL + "/ipfs/"})
	if doc := r.FetchJSON(context.Background(), "Qm"); doc != nil {
		t.Errorf("expected nil for implausibly short pointer")
	}
	if hits.Load() != 0 {
		t.Errorf("short pointer triggered %d network requests", hits.Load())
	}
}
