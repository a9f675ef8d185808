// Package scanner discovers indexable source files under a project root,
// honoring the merged ignore rules spec.md §4.4 requires: repository
// .gitignore semantics plus a tool-specific ignore file, always excluding
// hidden directories and the store's own data directory.
package scanner

// SourceFile is a discovered file eligible for chunking.
type SourceFile struct {
	// Path is root-relative, forward-slash separated.
	Path string
	// AbsPath is the file's absolute path on disk.
	AbsPath string
}

// Result is streamed from Scan; exactly one of File or Err is set.
type Result struct {
	File *SourceFile
	Err  error
}

// chunkableExtensions is the closed extension set spec.md §3 defines;
// anything else is ignored regardless of ignore rules.
var chunkableExtensions = map[string]bool{
	".rs": true,
	".py": true,
	".js": true,
	".ts": true,
}

// SupportedExtension reports whether ext (including the leading dot) is
// in the closed set of indexable extensions.
func SupportedExtension(ext string) bool {
	return chunkableExtensions[ext]
}
