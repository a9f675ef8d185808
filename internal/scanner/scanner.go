package scanner

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"ragrep/internal/gitignore"
)

const gitignoreCacheSize = 256

// Scanner walks a project root, filtering to the closed extension set
// and the ignore rules spec.md §4.4 defines.
type Scanner struct {
	root        string
	dataDirName string

	toolIgnore *gitignore.Matcher // parsed from <root>/<dataDirName>/ignore; nil if absent

	cacheMu        sync.RWMutex
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner rooted at root. dataDirName is the store's data
// directory (e.g. ".data"), always excluded from the walk; its "ignore"
// file, if present, is loaded as the tool-specific ignore list.
func New(root, dataDirName string) (*Scanner, error) {
	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Scanner{root: root, dataDirName: dataDirName, gitignoreCache: cache}
	s.loadToolIgnore()
	return s, nil
}

func (s *Scanner) loadToolIgnore() {
	path := filepath.Join(s.root, s.dataDirName, "ignore")
	if _, err := os.Stat(path); err != nil {
		s.toolIgnore = nil
		return
	}
	m := gitignore.New()
	if err := m.AddFromFile(path, ""); err != nil {
		slog.Warn("failed to parse tool ignore file", "path", path, "error", err)
		return
	}
	s.toolIgnore = m
}

// InvalidateIgnoreCache drops cached .gitignore matchers and reloads the
// tool-specific ignore file. Call after either changes on disk.
func (s *Scanner) InvalidateIgnoreCache() {
	s.cacheMu.Lock()
	s.gitignoreCache.Purge()
	s.cacheMu.Unlock()
	s.loadToolIgnore()
}

// Scan streams every indexable file under the root. The channel is
// closed when the walk completes; a walk-level error is sent as a
// Result with Err set rather than aborting the whole scan.
func (s *Scanner) Scan(ctx context.Context) <-chan Result {
	results := make(chan Result, 64)

	go func() {
		defer close(results)

		absRoot, err := filepath.Abs(s.root)
		if err != nil {
			results <- Result{Err: err}
			return
		}

		walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return nil
			}

			relPath, relErr := filepath.Rel(absRoot, path)
			if relErr != nil || relPath == "." {
				return nil
			}
			relPath = filepath.ToSlash(relPath)

			if d.IsDir() {
				if s.shouldSkipDir(relPath, d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}

			if !SupportedExtension(filepath.Ext(relPath)) {
				return nil
			}
			if s.ShouldIgnore(relPath) {
				return nil
			}

			select {
			case results <- Result{File: &SourceFile{Path: relPath, AbsPath: path}}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})

		if walkErr != nil && walkErr != context.Canceled {
			select {
			case results <- Result{Err: walkErr}:
			case <-ctx.Done():
			}
		}
	}()

	return results
}

func (s *Scanner) shouldSkipDir(relPath, base string) bool {
	if relPath == s.dataDirName || strings.HasPrefix(relPath, s.dataDirName+"/") {
		return true
	}
	return strings.HasPrefix(base, ".")
}

// ShouldIgnore reports whether relPath (forward-slash, root-relative) is
// excluded by the merged .gitignore + tool ignore rules, or lies under a
// hidden directory or the data directory. Shared by the full walk and
// the Watcher's live event filter, which checks single paths outside a
// WalkDir traversal.
func (s *Scanner) ShouldIgnore(relPath string) bool {
	if relPath == s.dataDirName || strings.HasPrefix(relPath, s.dataDirName+"/") {
		return true
	}
	dir := filepath.Dir(relPath)
	if dir != "." {
		for _, part := range strings.Split(dir, "/") {
			if strings.HasPrefix(part, ".") {
				return true
			}
		}
	}
	if s.toolIgnore != nil && s.toolIgnore.Match(relPath, false) {
		return true
	}
	return s.isGitignored(relPath)
}

func (s *Scanner) isGitignored(relPath string) bool {
	if m := s.getGitignoreMatcher("."); m != nil && m.Match(relPath, false) {
		return true
	}

	dir := filepath.Dir(relPath)
	if dir == "." {
		return false
	}
	relDir := "."
	for _, part := range strings.Split(dir, "/") {
		if relDir == "." {
			relDir = part
		} else {
			relDir = relDir + "/" + part
		}
		if m := s.getGitignoreMatcher(relDir); m != nil && m.Match(relPath, false) {
			return true
		}
	}
	return false
}

// getGitignoreMatcher returns the compiled matcher for the .gitignore
// file directly inside relDir ("." for root), or nil if none exists.
// Results, including negative ones, are cached by directory.
func (s *Scanner) getGitignoreMatcher(relDir string) *gitignore.Matcher {
	s.cacheMu.RLock()
	if m, ok := s.gitignoreCache.Get(relDir); ok {
		s.cacheMu.RUnlock()
		return m
	}
	s.cacheMu.RUnlock()

	dirOnDisk := s.root
	base := ""
	if relDir != "." {
		dirOnDisk = filepath.Join(s.root, relDir)
		base = relDir
	}

	var matcher *gitignore.Matcher
	gitignorePath := filepath.Join(dirOnDisk, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		m := gitignore.New()
		if err := m.AddFromFile(gitignorePath, base); err == nil {
			matcher = m
		}
	}

	s.cacheMu.Lock()
	s.gitignoreCache.Add(relDir, matcher)
	s.cacheMu.Unlock()
	return matcher
}
