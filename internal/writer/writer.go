// Package writer turns a test plan into a buildable Go test project:
// a deterministic scaffold (go.mod, testutil) plus LLM-generated test
// files produced chunk by chunk.
package writer

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"testforge/internal/config"
	"testforge/internal/filestore"
	"testforge/internal/llm"
	"testforge/internal/logging"
	"testforge/internal/plan"
)

// Result summarizes one write pass.
type Result struct {
	Files          []string
	FallbackChunks int
	TotalChunks    int
}

// Writer generates the test project for a plan.
type Writer struct {
	client llm.Client
	store  *filestore.Store
	cfg    *config.Config
}

// New creates a writer over the given file store.
func New(client llm.Client, store *filestore.Store, cfg *config.Config) *Writer {
	return &Writer{client: client, store: store, cfg: cfg}
}

// Write renders the plan into the store as a complete Go test project.
// The store is cleared first so a rewrite of the same plan produces a
// byte-identical tree. Chunk codegen runs concurrently but files are
// persisted sequentially in chunk order.
func (w *Writer) Write(ctx context.Context, p *plan.TestPlan, basePackage string) (*Result, error) {
	if p == nil || len(p.Items) == 0 {
		return nil, fmt.Errorf("test plan has no items")
	}
	if basePackage == "" {
		basePackage = "apitest"
	}

	timer := logging.StartTimer(logging.CategoryWriter, "write project")

	if err := w.store.Clear(); err != nil {
		return nil, fmt.Errorf("failed to reset project directory: %w", err)
	}

	result := &Result{}

	if err := w.store.WriteFile("go.mod", goModContent(basePackage)); err != nil {
		return nil, err
	}
	if err := w.store.WriteFile("testutil/client.go", testutilContent(p.BaseURL)); err != nil {
		return nil, err
	}
	result.Files = append(result.Files, "go.mod", "testutil/client.go")

	ordered := plan.SortByDependencies(p.Items)
	chunks := Chunk(ordered, w.cfg.Writer.ChunkSize)
	result.TotalChunks = len(chunks)
	logging.Writer("generating %d test files from %d plan items", len(chunks), len(ordered))

	contents := make([]string, len(chunks))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	limit := w.cfg.Writer.MaxConcurrentChunks
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, chunk := range chunks {
		g.Go(func() error {
			content, fallback := w.generateChunk(gctx, chunk)
			mu.Lock()
			contents[i] = content
			if fallback {
				result.FallbackChunks++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	used := map[string]bool{"go.mod": true, "testutil/client.go": true}
	for i, chunk := range chunks {
		name := chunkFileName(chunk, used)
		content := strings.ReplaceAll(contents[i], testutilImportPlaceholder, basePackage+"/testutil")
		if err := w.store.WriteFile(name, content); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, name)
	}

	logging.Writer("wrote %d files, %d/%d chunks used the deterministic fallback",
		len(result.Files), result.FallbackChunks, result.TotalChunks)
	timer.StopWithInfo()
	return result, nil
}

// generateChunk asks the LLM for one chunk's test file and validates
// the response. Any unusable response degrades to the deterministic
// fallback; codegen never fails the write phase.
func (w *Writer) generateChunk(ctx context.Context, chunk []plan.TestPlanItem) (content string, fallback bool) {
	opts := llm.Options{
		Temperature: w.cfg.Planner.Temperature,
		MaxTokens:   w.cfg.Planner.MaxTokens,
	}

	response, err := w.client.CompleteWithSystem(ctx, codegenSystemPrompt, buildChunkPrompt(chunk), opts)
	if err != nil {
		logging.WriterWarn("chunk codegen call failed, using deterministic fallback: %v", err)
		return fallbackChunkContent(chunk), true
	}

	source := extractGoSource(response)
	if reason := validateChunkSource(source, chunk); reason != "" {
		logging.WriterWarn("chunk codegen response rejected (%s), using deterministic fallback", reason)
		return fallbackChunkContent(chunk), true
	}
	return source, false
}

// validateChunkSource checks a generated file for the structural
// contract: apitest package clause and one function per plan item with
// the exact planned name. Returns a rejection reason, or "" when valid.
func validateChunkSource(source string, chunk []plan.TestPlanItem) string {
	if source == "" {
		return "no Go source in response"
	}
	if !strings.HasPrefix(strings.TrimSpace(stripLeadingComments(source)), "package apitest") {
		return "wrong package clause"
	}
	for _, item := range chunk {
		if !regexp.MustCompile(`func\s+` + regexp.QuoteMeta(item.Name) + `\s*\(`).MatchString(source) {
			return fmt.Sprintf("missing test function %s", item.Name)
		}
	}
	return ""
}

// stripLeadingComments skips leading line comments before the package
// clause.
func stripLeadingComments(source string) string {
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		return strings.Join(lines[i:], "\n")
	}
	return ""
}

// chunkFileName derives a file name from the dominant path root of the
// chunk's items, for example /items/{id} -> items_test.go. Collisions
// get a numeric suffix so every chunk lands in its own file.
func chunkFileName(chunk []plan.TestPlanItem, used map[string]bool) string {
	counts := make(map[string]int)
	for _, item := range chunk {
		counts[pathRoot(item.Path)]++
	}
	roots := make([]string, 0, len(counts))
	for r := range counts {
		roots = append(roots, r)
	}
	sort.Slice(roots, func(a, b int) bool {
		if counts[roots[a]] != counts[roots[b]] {
			return counts[roots[a]] > counts[roots[b]]
		}
		return roots[a] < roots[b]
	})

	base := "api"
	if len(roots) > 0 && roots[0] != "" {
		base = roots[0]
	}

	name := base + "_test.go"
	for n := 2; used[name]; n++ {
		name = fmt.Sprintf("%s_%d_test.go", base, n)
	}
	used[name] = true
	return name
}

// pathRoot extracts the first concrete path segment, sanitized to a
// file-name-safe identifier.
func pathRoot(path string) string {
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		var sb strings.Builder
		for _, r := range strings.ToLower(seg) {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				sb.WriteRune(r)
			} else {
				sb.WriteRune('_')
			}
		}
		return sb.String()
	}
	return ""
}
