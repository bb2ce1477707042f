package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"genclient/internal/domain"
)

type mapFetcher struct {
	mu    sync.Mutex
	files map[string]string
	calls int
}

func (m *mapFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	body, ok := m.files[url]
	if !ok {
		return nil, "", fmt.Errorf("404 for %s", url)
	}
	return []byte(body), "image/png", nil
}

func terminalSnapshot(status domain.JobStatus, items ...domain.GenerationItem) domain.JobSnapshot {
	completed := 0
	for _, it := range items {
		if it.Status == domain.ItemStatusCompleted {
			completed++
		}
	}
	return domain.JobSnapshot{
		Job:   domain.GenerationJob{ID: 9, Status: status, TotalItems: len(items), CompletedItems: completed},
		Items: items,
	}
}

func zipNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestPackageExcludesFailedItems(t *testing.T) {
	fetcher := &mapFetcher{files: map[string]string{}}
	var items []domain.GenerationItem
	labels := []string{"Front", "Left side", "Right side", "Back", "Top"}
	for i, label := range labels {
		url := fmt.Sprintf("https://cdn.example.com/%d.png", i)
		fetcher.files[url] = "png-" + label
		items = append(items, domain.GenerationItem{ID: int64(i + 1), Status: domain.ItemStatusCompleted, Label: label, ResultURL: url})
	}
	items = append(items, domain.GenerationItem{ID: 6, Status: domain.ItemStatusFailed, Label: "Bottom", ErrorMessage: "provider timeout"})

	p, _ := NewPackager(Options{Fetcher: fetcher, Concurrency: 2})
	res, err := p.Package(context.Background(), terminalSnapshot(domain.JobStatusPartial, items...))
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	want := []string{"01-front.png", "02-left-side.png", "03-right-side.png", "04-back.png", "05-top.png"}
	got := zipNames(t, res.Data)
	if len(got) != len(want) {
		t.Fatalf("archive entries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] || res.Files[i] != want[i] {
			t.Fatalf("entry %d = %s, want %s", i, got[i], want[i])
		}
	}
	if fetcher.calls != 5 {
		t.Fatalf("fetches = %d, want 5", fetcher.calls)
	}
	if res.Name != "job-9.zip" {
		t.Fatalf("name = %s", res.Name)
	}
}

func TestPackageToleratesFetchFailures(t *testing.T) {
	fetcher := &mapFetcher{files: map[string]string{
		"https://cdn.example.com/a.png": "a",
		"https://cdn.example.com/c.png": "c",
	}}
	snap := terminalSnapshot(domain.JobStatusCompleted,
		domain.GenerationItem{ID: 1, Status: domain.ItemStatusCompleted, Label: "a", ResultURL: "https://cdn.example.com/a.png"},
		domain.GenerationItem{ID: 2, Status: domain.ItemStatusCompleted, Label: "b", ResultURL: "https://cdn.example.com/b.png"},
		domain.GenerationItem{ID: 3, Status: domain.ItemStatusCompleted, Label: "c", ResultURL: "https://cdn.example.com/c.png"},
	)
	p, _ := NewPackager(Options{Fetcher: fetcher})
	res, err := p.Package(context.Background(), snap)
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	got := zipNames(t, res.Data)
	if len(got) != 2 || got[0] != "01-a.png" || got[1] != "03-c.png" {
		t.Fatalf("unexpected entries %v", got)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].ItemID != 2 {
		t.Fatalf("unexpected skipped %+v", res.Skipped)
	}
}

func TestPackageFailsWhenNothingFetched(t *testing.T) {
	p, _ := NewPackager(Options{Fetcher: &mapFetcher{files: map[string]string{}}})
	snap := terminalSnapshot(domain.JobStatusCompleted,
		domain.GenerationItem{ID: 1, Status: domain.ItemStatusCompleted, ResultURL: "https://cdn.example.com/x.png"},
	)
	if _, err := p.Package(context.Background(), snap); !errors.Is(err, domain.ErrOperationFailed) {
		t.Fatalf("expected operation failure, got %v", err)
	}
}

func TestPackageRequiresTerminalJobWithOutput(t *testing.T) {
	tests := []struct {
		name string
		snap domain.JobSnapshot
	}{
		{
			name: "still processing",
			snap: terminalSnapshot(domain.JobStatusProcessing,
				domain.GenerationItem{ID: 1, Status: domain.ItemStatusCompleted, ResultURL: "https://x/1.png"},
				domain.GenerationItem{ID: 2, Status: domain.ItemStatusProcessing}),
		},
		{
			name: "failed without output",
			snap: terminalSnapshot(domain.JobStatusFailed,
				domain.GenerationItem{ID: 1, Status: domain.ItemStatusFailed}),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &mapFetcher{}
			p, _ := NewPackager(Options{Fetcher: fetcher})
			if _, err := p.Package(context.Background(), tc.snap); !errors.Is(err, domain.ErrNotReady) {
				t.Fatalf("expected ErrNotReady, got %v", err)
			}
			if fetcher.calls != 0 {
				t.Fatalf("fetched %d items for an unready job", fetcher.calls)
			}
		})
	}
}

func TestEntryName(t *testing.T) {
	tests := []struct {
		index, total int
		label, ext   string
		want         string
	}{
		{1, 3, "Front View", ".png", "01-front-view.png"},
		{7, 120, "Café  Crème!!", ".jpg", "007-cafe-creme.jpg"},
		{2, 5, "../../etc/passwd", ".png", "02-etc-passwd.png"},
		{3, 5, "日本", ".mp4", "03-item.mp4"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			if got := EntryName(tc.index, tc.total, tc.label, tc.ext); got != tc.want {
				t.Fatalf("EntryName() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestExtensionFor(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name        string
		contentType string
		data        []byte
		url         string
		want        string
	}{
		{"header wins", "image/jpeg", png, "https://x/a.webp", ".jpg"},
		{"sniffed when generic", "application/octet-stream", png, "https://x/a", ".png"},
		{"url fallback", "", nil, "https://x/clip.MP4?sig=1", ".mp4"},
		{"unknown", "", nil, "https://x/blob", ".bin"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := extensionFor(tc.contentType, tc.data, tc.url); got != tc.want {
				t.Fatalf("extensionFor() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/webp")
		_, _ = w.Write([]byte("RIFF0000WEBP"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(0)
	data, ct, err := f.Fetch(context.Background(), srv.URL+"/ok")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "RIFF0000WEBP" || ct != "image/webp" {
		t.Fatalf("unexpected response %q %q", data, ct)
	}
	if _, _, err := f.Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}
	f.MaxBytes = 4
	if _, _, err := f.Fetch(context.Background(), srv.URL+"/ok"); err == nil {
		t.Fatal("expected size limit error")
	}
}
