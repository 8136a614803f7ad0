package acquisition

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStrategyFor(t *testing.T) {
	cases := map[int64]Strategy{
		1024:                  StrategyInMemory,
		largeFileThreshold:    StrategyChunked,
		largeFileThreshold + 1: StrategyChunked,
		streamingThreshold:    StrategyStreaming,
		streamingThreshold + 1: StrategyStreaming,
	}
	for size, want := range cases {
		if got := StrategyFor(size); got != want {
			t.Errorf("StrategyFor(%d) = %v, want %v", size, got, want)
		}
	}
}

func TestWalk_SkipsExcludedAndOversizedFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "main.go"), "package main\n")
	mustWrite(t, filepath.Join(root, "photo.png"), "not really a png")
	if err := os.MkdirAll(filepath.Join(root, "node_modules", "dep"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(root, "node_modules", "dep", "index.js"), "console.log(1)")
	oversized := make([]byte, defaultMaxFileSize+1)
	if err := os.WriteFile(filepath.Join(root, "huge.go"), oversized, 0o644); err != nil {
		t.Fatal(err)
	}

	var visited []string
	var skipped []SkipNotice
	stats, err := Walk(root, WalkOptions{}, Visitor{
		OnFile: func(u FileUnit, _ []byte) error {
			visited = append(visited, u.RelPath)
			return nil
		},
		OnSkip: func(n SkipNotice) { skipped = append(skipped, n) },
	})
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if len(visited) != 1 || visited[0] != "main.go" {
		t.Errorf("expected only main.go to be visited, got %v", visited)
	}
	if stats.Visited != 1 {
		t.Errorf("expected 1 visited file, got %d", stats.Visited)
	}

	var sawLarge bool
	for _, s := range skipped {
		if s.RelPath == "huge.go" && s.Reason == "large-file-skipped" {
			sawLarge = true
		}
	}
	if !sawLarge {
		t.Error("expected huge.go to be reported as large-file-skipped")
	}
}

func TestWalk_ChunkedFileCarriesOverlap(t *testing.T) {
	root := t.TempDir()
	content := make([]byte, largeFileThreshold+10)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	if err := os.WriteFile(filepath.Join(root, "big.go"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	var chunks []Chunk
	stats, err := Walk(root, WalkOptions{ChunkSize: 4 * 1024 * 1024, ChunkOverlap: 64}, Visitor{
		OnChunk: func(_ FileUnit, c Chunk) error {
			chunks = append(chunks, c)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Walk returned error: %v", err)
	}
	if stats.Chunked != 1 {
		t.Errorf("expected 1 chunked file, got %d", stats.Chunked)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		if chunks[i].ByteOffset >= chunks[i-1].ByteOffset+len(chunks[i-1].Data) {
			t.Errorf("chunk %d doesn't overlap with previous chunk", i)
		}
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
