// Package download implements the Orchestrator's download stage: it
// invokes the external video-downloader tool (out of scope per
// spec.md's non-goals — the tool itself is an opaque collaborator) and
// fetches lightweight page metadata ahead of the download so a job can
// report a title before the media file lands on disk.
//
// Grounded on the teacher's internal/ingest/url.go dual-fallback HTTP
// fetch (direct GET with go-readability, then Jina Reader) for metadata,
// and internal/procrunner for the external tool invocation.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"github.com/apresai/dubcast/internal/apierr"
	"github.com/apresai/dubcast/internal/procrunner"
)

const maxMetadataBytes = 2 << 20 // 2MB, mirrors the teacher's ingest cap

// Metadata is the lightweight page information fetched ahead of the
// actual media download.
type Metadata struct {
	Title  string
	Source string
}

// FetchMetadata resolves a human-readable title for sourceURL without
// downloading the media itself, using the teacher's direct-fetch +
// Jina Reader fallback.
func FetchMetadata(ctx context.Context, sourceURL string) (Metadata, error) {
	if title, err := directTitle(ctx, sourceURL); err == nil {
		return Metadata{Title: title, Source: sourceURL}, nil
	}
	if title, err := jinaTitle(ctx, sourceURL); err == nil {
		return Metadata{Title: title, Source: sourceURL}, nil
	}
	return Metadata{Title: sourceURL, Source: sourceURL}, nil
}

func directTitle(ctx context.Context, source string) (string, error) {
	parsed, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("download: invalid url %s: %w", source, err)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; dubcast/1.0)")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: metadata fetch HTTP %d", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxMetadataBytes), parsed)
	if err != nil {
		return "", err
	}
	if article.Title == "" {
		return "", fmt.Errorf("download: no title extracted")
	}
	return article.Title, nil
}

func jinaTitle(ctx context.Context, source string) (string, error) {
	client := &http.Client{Timeout: 15 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://r.jina.ai/"+source, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-Timeout", "15")
	if key := os.Getenv("JINA_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: jina fetch HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return "", err
	}
	lines := strings.SplitN(strings.TrimSpace(string(body)), "\n", 2)
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", fmt.Errorf("download: jina returned empty content")
	}
	return strings.TrimPrefix(strings.TrimSpace(lines[0]), "Title: "), nil
}

// Options configures the external downloader tool invocation.
type Options struct {
	ToolPath string // path to the external video-downloader binary
	Deadline time.Duration
}

// DefaultOptions resolves the downloader tool from PATH, matching the
// teacher's convention of invoking external binaries by bare name.
func DefaultOptions() Options {
	return Options{ToolPath: "yt-dlp", Deadline: 20 * time.Minute}
}

// Fetch invokes the external video-downloader tool to save sourceURL's
// media into destDir, returning the resulting file path. A failed tool
// run or a missing output file is apierr.KindUpstream (SourceUnavailable,
// per spec.md §7); failing to list destDir afterwards is
// apierr.KindInternal. This package does not classify the external
// tool's own retry policy.
func Fetch(ctx context.Context, sourceURL, destDir string, opts Options) (string, error) {
	if opts.ToolPath == "" {
		opts = DefaultOptions()
	}

	outputTemplate := filepath.Join(destDir, "source.%(ext)s")
	_, err := procrunner.Run(ctx, opts.Deadline, opts.ToolPath,
		"-o", outputTemplate,
		"--no-playlist",
		sourceURL,
	)
	if err != nil {
		return "", apierr.New(apierr.KindUpstream, "download", "video download failed", err)
	}

	entries, err := os.ReadDir(destDir)
	if err != nil {
		return "", apierr.New(apierr.KindInternal, "download", "read download dir", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "source.") {
			return filepath.Join(destDir, e.Name()), nil
		}
	}
	return "", apierr.New(apierr.KindUpstream, "download", "downloader produced no output file", nil)
}
