// Package pkgarchive implements romt's single-file mirror transport: a
// gzipped tar stream whose first regular member is always ARCHIVE_FORMAT,
// followed by either a crates.io-index Git bundle and crate files, or a
// toolchain/rustup artifact tree.
//
// Extraction follows the path-traversal guard the teacher's archive
// extractor applies (internal/actions/extract.go in the original tree):
// every member's destination path is cleaned and checked against the
// destination root before any file is created. Symlinks are not resolved.
package pkgarchive

import (
	"github.com/drmikehenry/romt/internal/crate"
	"github.com/drmikehenry/romt/internal/romterror"
)

// FormatMemberName is the archive's mandatory first regular member.
const FormatMemberName = "ARCHIVE_FORMAT"

// BundleMemberName is the fixed archive path for the crates.io-index Git
// bundle, present only in crate archives.
const BundleMemberName = "git/crates.io-index/origin.bundle"

// Root path prefixes for the three artifact kinds an archive may carry.
const (
	CratesRoot = "crates/"
	DistRoot   = "dist/"
	RustupRoot = "rustup/"
)

// archiveFormatContent renders style as the ARCHIVE_FORMAT member body:
// "1\n" for Mixed, "2\n" for Lower.
func archiveFormatContent(style crate.PrefixStyle) []byte {
	if style == crate.Lower {
		return []byte("2\n")
	}
	return []byte("1\n")
}

// parseArchiveFormat parses an ARCHIVE_FORMAT member body into the crate
// prefix style it declares for the archive's crate members.
func parseArchiveFormat(content []byte) (crate.PrefixStyle, error) {
	switch trimmed := trimASCII(content); trimmed {
	case "1":
		return crate.Mixed, nil
	case "2":
		return crate.Lower, nil
	default:
		return crate.Mixed, romterror.Abort("invalid ARCHIVE_FORMAT %q", trimmed)
	}
}

func trimASCII(b []byte) string {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return string(b[start:end])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// UnexpectedMemberError reports an archive member outside any of the
// roots the reading engine expects, as an UnexpectedArchiveMember error.
func UnexpectedMemberError(name string) error {
	return romterror.UnexpectedArchiveMember("unexpected archive member %q", name)
}
