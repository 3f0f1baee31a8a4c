// Package crate models a single crates.io package version, its on-disk
// sharded layout, and the crates-root config that governs that layout.
package crate

import (
	"fmt"
	"strings"
)

// PrefixStyle selects the on-disk directory-sharding discipline for crate
// files.
type PrefixStyle int

const (
	// Mixed preserves the crate name's original case in the prefix path.
	Mixed PrefixStyle = iota
	// Lower lowercases the prefix path.
	Lower
)

func (s PrefixStyle) String() string {
	if s == Lower {
		return "lower"
	}
	return "mixed"
}

// ParsePrefixStyle parses "lower" or "mixed" (case-insensitive).
func ParsePrefixStyle(s string) (PrefixStyle, error) {
	switch strings.ToLower(s) {
	case "lower":
		return Lower, nil
	case "mixed":
		return Mixed, nil
	default:
		return Mixed, fmt.Errorf("invalid prefix style: %q (want lower or mixed)", s)
	}
}

// Crate identifies one published (name, version) pair together with its
// expected hash.
type Crate struct {
	Name    string
	Version string
	Hash    string
}

// Basename returns "<name>-<version>.crate".
func (c Crate) Basename() string {
	return fmt.Sprintf("%s-%s.crate", c.Name, c.Version)
}

// Prefix computes the sharding directory for name under style:
//
//	len 1   -> "1"
//	len 2   -> "2"
//	len 3   -> "3/<c0>"
//	len >=4 -> "<c0c1>/<c2c3>"
func Prefix(name string, style PrefixStyle) string {
	folded := name
	if style == Lower {
		folded = strings.ToLower(name)
	}
	switch len(folded) {
	case 0:
		return ""
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + folded[0:1]
	default:
		return folded[0:2] + "/" + folded[2:4]
	}
}

// RelPath returns "<prefix>/<name>/<basename>" for c under style.
func (c Crate) RelPath(style PrefixStyle) string {
	return fmt.Sprintf("%s/%s/%s", Prefix(c.Name, style), c.Name, c.Basename())
}

// ParseRelPath decomposes a "<prefix>/<name>/<name>-<version>.crate" path
// (as produced by RelPath, whether under a crates root or an archive's
// crates/ member) back into (name, version). The directory immediately
// above the basename must equal the basename's leading component, which
// rules out a sharding directory masquerading as the crate name.
func ParseRelPath(relPath string) (name, version string, ok bool) {
	idx := strings.LastIndexByte(relPath, '/')
	if idx < 0 {
		return "", "", false
	}
	dir := relPath[:idx]
	base := relPath[idx+1:]

	dirName := dir
	if dirIdx := strings.LastIndexByte(dir, '/'); dirIdx >= 0 {
		dirName = dir[dirIdx+1:]
	}

	if !strings.HasSuffix(base, ".crate") {
		return "", "", false
	}
	stem := strings.TrimSuffix(base, ".crate")
	if !strings.HasPrefix(stem, dirName+"-") {
		return "", "", false
	}
	version = strings.TrimPrefix(stem, dirName+"-")
	if version == "" {
		return "", "", false
	}
	return dirName, version, true
}
