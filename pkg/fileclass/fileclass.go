// Package fileclass classifies files by extension so the walker can skip
// media and opaque binary formats before they reach the read-strategy
// selector, without needing to sniff file contents.
package fileclass

import (
	"path/filepath"
	"strings"
)

// SkippedExtensions lists extensions that are never worth scanning: they
// cannot contain a plaintext secret in any form the pattern engine matches.
var SkippedExtensions = []string{
	// multimedia/containers
	"mp4", "avi", "mpeg", "mpg", "mov", "wmv", "m4p", "swf", "mp2", "flv",
	"vob", "webm", "hdv", "3gp", "ogg", "mp3", "wav", "flac", "webp",

	// images
	"png", "jpg", "jpeg", "gif", "tiff",

	// fonts
	"fnt", "fon", "ttf", "otf", "woff", "woff2", "eot", "svgz", "icns", "ico",
}

// opaqueBinaryExtensions lists formats that can theoretically embed a secret
// but require format-specific decoding the pattern engine does not do; they
// are treated as out of scope rather than scanned as raw bytes.
var opaqueBinaryExtensions = map[string]struct{}{
	"class": {}, "dll": {}, "jdo": {}, "jks": {}, "ser": {}, "idx": {},
	"hprof": {}, "exe": {}, "bin": {}, "so": {}, "o": {}, "a": {},
	"dylib": {}, "lib": {}, "obj": {}, "pdb": {}, "dat": {}, "elf": {},
	"dmg": {}, "iso": {}, "img": {}, "out": {}, "com": {}, "sys": {},
	"vxd": {}, "sfx": {}, "bundle": {},
}

// Skip reports whether filename's extension marks it as never in scope.
func Skip(filename string) bool {
	e := ext(filename)
	for _, skipped := range SkippedExtensions {
		if e == skipped {
			return true
		}
	}
	return false
}

// Binary reports whether filename's extension marks it as an opaque binary
// format that the pattern engine cannot usefully inspect.
func Binary(filename string) bool {
	_, ok := opaqueBinaryExtensions[strings.ToLower(ext(filename))]
	return ok
}

func ext(filename string) string {
	return strings.TrimPrefix(filepath.Ext(filename), ".")
}

// whitelistedExtensions is the walker's extension whitelist (spec §4.2 step
// 2): source, config, markup, and docs. Dotfiles (.env, .npmrc, ...) are
// always eligible regardless of this list.
var whitelistedExtensions = map[string]struct{}{
	// source
	"go": {}, "py": {}, "js": {}, "jsx": {}, "ts": {}, "tsx": {}, "java": {},
	"rb": {}, "php": {}, "c": {}, "h": {}, "cc": {}, "cpp": {}, "hpp": {},
	"cs": {}, "swift": {}, "kt": {}, "kts": {}, "scala": {}, "rs": {},
	"sh": {}, "bash": {}, "zsh": {}, "pl": {}, "lua": {}, "groovy": {},
	"sql": {}, "r": {},

	// config
	"yaml": {}, "yml": {}, "json": {}, "toml": {}, "ini": {}, "cfg": {},
	"conf": {}, "env": {}, "properties": {}, "tf": {}, "tfvars": {},

	// markup / docs
	"html": {}, "htm": {}, "xml": {}, "md": {}, "markdown": {}, "rst": {},
	"txt": {}, "csv": {},
}

// Eligible reports whether filename passes the walker's extension
// whitelist: a fixed set of source/config/markup/doc extensions, plus any
// file whose name begins with "." (dotfiles carry config like .env,
// .npmrc, .dockerignore regardless of extension).
func Eligible(filename string) bool {
	base := filepath.Base(filename)
	if strings.HasPrefix(base, ".") {
		return true
	}
	_, ok := whitelistedExtensions[strings.ToLower(ext(filename))]
	return ok
}
