package knowledge

import (
	"bufio"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tidgi-agent/internal/domain"
)

// IndexStats summarises an IndexDir run.
type IndexStats struct {
	Indexed int
	Skipped int
}

// IndexDir indexes every .tid and .md file under dir into workspace using
// up to workers goroutines. System tiddlers (titles starting with "$:/")
// and empty notes are skipped. The first failing file aborts the run.
func (x *Index) IndexDir(ctx context.Context, dir, workspace string, workers int) (IndexStats, error) {
	if workers <= 0 {
		workers = 1
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(path) {
		case ".tid", ".md":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return IndexStats{}, domain.NewDomainError("Index.IndexDir", domain.ErrInvalidInput, err.Error())
	}

	var indexed, skipped atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, ok, err := readDocument(path, dir)
			if err != nil {
				return err
			}
			if !ok {
				skipped.Add(1)
				return nil
			}
			doc.Workspace = workspace
			doc.ID = workspace + ":" + doc.Source
			if err := x.Put(ctx, doc); err != nil {
				return err
			}
			indexed.Add(1)
			return nil
		})
	}
	err = g.Wait()

	stats := IndexStats{Indexed: int(indexed.Load()), Skipped: int(skipped.Load())}
	x.logger.Info("knowledge indexed", "dir", dir, "workspace", workspace,
		"indexed", stats.Indexed, "skipped", stats.Skipped)
	return stats, err
}

// readDocument parses one note. ok is false for notes that should not be
// indexed.
func readDocument(path, root string) (Document, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, false, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	var title, body string
	if filepath.Ext(path) == ".tid" {
		title, body = parseTiddler(string(data))
	} else {
		title, body = parseMarkdown(string(data))
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if strings.HasPrefix(title, "$:/") || strings.TrimSpace(body) == "" {
		return Document{}, false, nil
	}
	return Document{
		Title:     title,
		Body:      body,
		Source:    filepath.ToSlash(rel),
		UpdatedAt: info.ModTime().Truncate(time.Second),
	}, true, nil
}

// parseTiddler splits a .tid file into its title field and body. Fields are
// "name: value" lines up to the first blank line.
func parseTiddler(s string) (title, body string) {
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var b strings.Builder
	inHeader := true
	for sc.Scan() {
		line := sc.Text()
		if inHeader {
			if strings.TrimSpace(line) == "" {
				inHeader = false
				continue
			}
			if k, v, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(k) == "title" {
				title = strings.TrimSpace(v)
			}
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return title, strings.TrimSpace(b.String())
}

// parseMarkdown takes the first level-one heading as the title.
func parseMarkdown(s string) (title, body string) {
	for _, line := range strings.Split(s, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			title = strings.TrimSpace(t)
			break
		}
	}
	return title, strings.TrimSpace(s)
}
