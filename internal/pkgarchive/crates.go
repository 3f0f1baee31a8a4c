package pkgarchive

import (
	"sort"
	"strings"

	"github.com/drmikehenry/romt/internal/crate"
	"github.com/drmikehenry/romt/internal/romterror"
)

// PackResult reports how many artifacts were packed successfully versus
// how many were missing from disk.
type PackResult struct {
	Good int
	Bad  int
}

// PackCrates writes a crate archive: ARCHIVE_FORMAT (declaring
// archivePrefix), the Git bundle at BundleMemberName, then every crate in
// crates (read from cratesRoot under localPrefix) at its archive path
// under archivePrefix. A crate missing from disk is counted as Bad; if
// keepGoing is false the first miss aborts the archive.
func PackCrates(
	destPath, bundlePath string,
	crates []crate.Crate,
	cratesRoot string,
	localPrefix, archivePrefix crate.PrefixStyle,
	keepGoing bool,
) (PackResult, error) {
	w, err := Create(destPath, archivePrefix)
	if err != nil {
		return PackResult{}, err
	}

	if err := w.AddFile(BundleMemberName, bundlePath); err != nil {
		w.Abort()
		return PackResult{}, err
	}

	sorted := make([]crate.Crate, len(crates))
	copy(sorted, crates)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Version < sorted[j].Version
	})

	var result PackResult
	for _, c := range sorted {
		localPath := cratesRoot + "/" + c.RelPath(localPrefix)
		archiveName := CratesRoot + c.RelPath(archivePrefix)
		if err := w.AddFile(archiveName, localPath); err != nil {
			if perr, ok := romterror.As(err); ok && perr.Kind.String() == "missing-file" {
				result.Bad++
				if !keepGoing {
					w.Abort()
					return result, err
				}
				continue
			}
			w.Abort()
			return result, err
		}
		result.Good++
	}

	if err := w.Finish(); err != nil {
		return result, err
	}
	return result, nil
}

// UnpackResult reports what UnpackCrates extracted.
type UnpackResult struct {
	NumCrates int
}

// UnpackCrates reads a crate archive, extracting the bundle member to
// bundleDestPath and every crates/ member into cratesRoot under
// localPrefix, validating that each member's stored prefix matches the
// style ARCHIVE_FORMAT declared. Any member outside the bundle/crates
// roots aborts with UnexpectedArchiveMember unless keepGoing is set.
func UnpackCrates(archivePath, bundleDestPath, cratesRoot string, localPrefix crate.PrefixStyle, keepGoing bool) (UnpackResult, error) {
	r, err := Open(archivePath)
	if err != nil {
		return UnpackResult{}, err
	}
	defer r.Close()

	var result UnpackResult
	foundBundle := false

	for {
		hdr, err := r.Next()
		if err != nil {
			break
		}
		switch {
		case hdr.Name == BundleMemberName:
			if err := r.ExtractToExact(bundleDestPath); err != nil {
				return result, err
			}
			foundBundle = true

		case strings.HasPrefix(hdr.Name, CratesRoot):
			rel := strings.TrimPrefix(hdr.Name, CratesRoot)
			name, version, ok := crate.ParseRelPath(rel)
			if !ok {
				return result, romterror.Abort("invalid crate member %q", hdr.Name)
			}
			expectedRel := (crate.Crate{Name: name, Version: version}).RelPath(r.Format)
			if rel != expectedRel {
				return result, romterror.Abort("unexpected crate prefix for %q", hdr.Name)
			}
			localRel := (crate.Crate{Name: name, Version: version}).RelPath(localPrefix)
			if err := r.ExtractTo(cratesRoot, localRel); err != nil {
				return result, err
			}
			result.NumCrates++

		default:
			if !keepGoing {
				return result, UnexpectedMemberError(hdr.Name)
			}
		}
	}

	if !foundBundle {
		return result, romterror.Abort("missing %s in archive", BundleMemberName)
	}
	return result, nil
}
