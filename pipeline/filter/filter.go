// Package filter provides file filtering for pipeline operations.
//
// Filters include or exclude files based on glob patterns, size, and age.
// Patterns are compiled with gobwas/glob: `*` matches within a path
// segment, `**` matches across segments.
//
// Basic usage:
//
//	f := filter.New(
//	    filter.Include("*.log"),
//	    filter.Exclude("*.tmp"),
//	    filter.MaxSize(100 * filter.MB),
//	)
//
//	if f.Match(fileInfo) {
//	    // File passes filter
//	}
package filter

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Filter determines whether files should be included in pipeline operations.
type Filter struct {
	rules []rule
}

type ruleType int

const (
	ruleInclude ruleType = iota
	ruleExclude
	ruleMinSize
	ruleMaxSize
	ruleMinAge
	ruleMaxAge
)

type rule struct {
	ruleType ruleType
	g        glob.Glob     // compiled pattern for include/exclude
	size     int64         // for min/max size
	duration time.Duration // for min/max age
}

// FileInfo contains the information needed for filtering.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Option configures a Filter.
type Option func(*Filter)

// New creates a new Filter with the given options.
func New(opts ...Option) *Filter {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Include adds an include pattern.
// Files matching any include pattern are included (unless excluded).
// Panics if the pattern does not compile; use FromFile for untrusted input.
func Include(pattern string) Option {
	g := glob.MustCompile(pattern, '/')
	return func(f *Filter) {
		f.rules = append(f.rules, rule{
			ruleType: ruleInclude,
			g:        g,
		})
	}
}

// Exclude adds an exclude pattern.
// Files matching any exclude pattern are excluded.
// Exclude rules take precedence over include rules.
// Panics if the pattern does not compile; use FromFile for untrusted input.
func Exclude(pattern string) Option {
	g := glob.MustCompile(pattern, '/')
	return func(f *Filter) {
		f.rules = append(f.rules, rule{
			ruleType: ruleExclude,
			g:        g,
		})
	}
}

// MinSize sets the minimum file size filter.
// Files smaller than this are excluded.
func MinSize(size int64) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{
			ruleType: ruleMinSize,
			size:     size,
		})
	}
}

// MaxSize sets the maximum file size filter.
// Files larger than this are excluded.
func MaxSize(size int64) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{
			ruleType: ruleMaxSize,
			size:     size,
		})
	}
}

// MinAge sets the minimum file age filter.
// Files newer than this are excluded.
// Age is calculated as time since modification.
func MinAge(d time.Duration) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{
			ruleType: ruleMinAge,
			duration: d,
		})
	}
}

// MaxAge sets the maximum file age filter.
// Files older than this are excluded.
// Age is calculated as time since modification.
func MaxAge(d time.Duration) Option {
	return func(f *Filter) {
		f.rules = append(f.rules, rule{
			ruleType: ruleMaxAge,
			duration: d,
		})
	}
}

// FromFile loads filter rules from a file.
// Each line is a pattern. Lines starting with + are includes,
// lines starting with - are excludes. Empty lines and lines
// starting with # are ignored. Invalid patterns are reported
// with their line number.
//
// Example file:
//
//	# Include log files
//	+ *.log
//	# Exclude temp files
//	- *.tmp
//	- *.bak
func FromFile(filePath string) (Option, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var opts []Option
	lineNo := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var pattern string
		ruleT := ruleExclude
		switch {
		case strings.HasPrefix(line, "+ "):
			pattern = strings.TrimPrefix(line, "+ ")
			ruleT = ruleInclude
		case strings.HasPrefix(line, "- "):
			pattern = strings.TrimPrefix(line, "- ")
		default:
			// Bare lines default to exclude
			pattern = line
		}

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("filter: %s:%d: invalid pattern %q: %w", filePath, lineNo, pattern, err)
		}

		r := rule{ruleType: ruleT, g: g}
		opts = append(opts, func(f *Filter) {
			f.rules = append(f.rules, r)
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return func(f *Filter) {
		for _, opt := range opts {
			opt(f)
		}
	}, nil
}

// Match returns true if the file passes the filter.
//
// The filtering logic:
//  1. If there are include patterns and the file doesn't match any, exclude it
//  2. If the file matches any exclude pattern, exclude it
//  3. If the file fails size or age constraints, exclude it
//  4. Otherwise, include the file
func (f *Filter) Match(fi FileInfo) bool {
	if f == nil || len(f.rules) == 0 {
		return true
	}

	// Check if there are any include rules
	hasIncludes := false
	matchesInclude := false
	for _, r := range f.rules {
		if r.ruleType == ruleInclude {
			hasIncludes = true
			if matchPattern(r.g, fi.Path) {
				matchesInclude = true
			}
		}
	}

	// If there are include patterns and none match, exclude
	if hasIncludes && !matchesInclude {
		return false
	}

	// Check exclude patterns and constraints
	for _, r := range f.rules {
		switch r.ruleType {
		case ruleExclude:
			if matchPattern(r.g, fi.Path) {
				return false
			}
		case ruleMinSize:
			if fi.Size < r.size {
				return false
			}
		case ruleMaxSize:
			if fi.Size > r.size {
				return false
			}
		case ruleMinAge:
			if time.Since(fi.ModTime) < r.duration {
				return false
			}
		case ruleMaxAge:
			if time.Since(fi.ModTime) > r.duration {
				return false
			}
		}
	}

	return true
}

// MatchPath is a convenience method that matches by path only.
func (f *Filter) MatchPath(p string) bool {
	return f.Match(FileInfo{Path: p})
}

// IsEmpty returns true if the filter has no rules.
func (f *Filter) IsEmpty() bool {
	return f == nil || len(f.rules) == 0
}

// matchPattern matches a compiled pattern against a path.
// It tries both the full path and just the filename, so "*.log"
// matches files at any depth.
func matchPattern(g glob.Glob, p string) bool {
	if g.Match(p) {
		return true
	}
	return g.Match(path.Base(p))
}

// Common file size constants for convenience.
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
	TB = 1024 * GB
)
