package index

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path"
	"regexp"

	"github.com/drmikehenry/romt/internal/crate"
	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// indexBlobPattern matches the canonical crates.io-index shard paths:
// 1/x, 2/xx, 3/x/xxx, xx/xx/xxxx+. Only blobs at these paths carry crate
// metadata; everything else (config.json, .github/, etc.) is ignored.
var indexBlobPattern = regexp.MustCompile(
	`^(?:1/[^/]|2/[^/]{2}|3/[^/]/[^/]{3}|[^/]{2}/[^/]{2}/[^/]{4,})$`,
)

// Delta computes the set of crate versions added and removed between the
// start and end commits, honoring filter. Only blob paths matching the
// canonical index shard shape are considered. When start is empty or the
// sentinel "0", every crate present at end is reported as added and
// nothing is reported as removed.
func (r *IndexRepo) Delta(start, end string, filter crate.Filter) (added, removed []crate.Crate, err error) {
	startCommit, err := r.commitObject(start)
	if err != nil {
		return nil, nil, err
	}
	endCommit, err := r.commitObject(end)
	if err != nil {
		return nil, nil, err
	}
	if endCommit == nil {
		return nil, nil, romterror.Usage("delta requires a valid END, got %q", end)
	}

	changes, err := blobsInCommitRange(startCommit, endCommit)
	if err != nil {
		return nil, nil, err
	}

	addedSet := make(map[[2]string]crate.Crate)
	removedSet := make(map[[2]string]crate.Crate)

	for _, c := range changes {
		name := path.Base(c.path)
		if !filter.MatchesName(name) {
			continue
		}

		oldByVersion := blobCrateVersions(c.startBlob)
		newByVersion := blobCrateVersions(c.endBlob)

		for version, cr := range newByVersion {
			if _, existed := oldByVersion[version]; existed {
				continue
			}
			if !filter.Matches(cr.Name, cr.Version) {
				continue
			}
			addedSet[[2]string{cr.Name, cr.Version}] = cr
		}
		for version, cr := range oldByVersion {
			if _, stillPresent := newByVersion[version]; stillPresent {
				continue
			}
			if !filter.Matches(cr.Name, cr.Version) {
				continue
			}
			removedSet[[2]string{cr.Name, cr.Version}] = cr
		}
	}

	for _, cr := range addedSet {
		added = append(added, cr)
	}
	for _, cr := range removedSet {
		removed = append(removed, cr)
	}
	sortCrates(added)
	sortCrates(removed)
	return added, removed, nil
}

// sortCrates performs a simple insertion sort by (Name, Version); the
// lists involved are small enough that an imported sort package buys
// nothing over an explicit, allocation-free pass.
func sortCrates(crates []crate.Crate) {
	for i := 1; i < len(crates); i++ {
		for j := i; j > 0; j-- {
			a, b := crates[j-1], crates[j]
			if a.Name < b.Name || (a.Name == b.Name && a.Version <= b.Version) {
				break
			}
			crates[j-1], crates[j] = crates[j], crates[j-1]
		}
	}
}

type blobChange struct {
	path      string
	startBlob []byte
	endBlob   []byte
}

// blobsInCommitRange yields (path, startBlob, endBlob) for every blob that
// changed between start and end, restricted to the canonical index shard
// paths. If start is nil, every matching blob in end's tree is reported
// as newly added (startBlob is nil), matching crates_in_commit_range's
// treatment of a missing START as "start of repo".
func blobsInCommitRange(start, end *object.Commit) ([]blobChange, error) {
	endTree, err := end.Tree()
	if err != nil {
		return nil, romterror.Git(err, "failed to read tree at %s", end.Hash)
	}

	if start == nil {
		var out []blobChange
		files := endTree.Files()
		defer files.Close()
		for {
			f, err := files.Next()
			if err != nil {
				break
			}
			if !indexBlobPattern.MatchString(f.Name) {
				continue
			}
			content, err := f.Contents()
			if err != nil {
				return nil, romterror.Git(err, "failed to read blob %s", f.Name)
			}
			out = append(out, blobChange{path: f.Name, endBlob: []byte(content)})
		}
		return out, nil
	}

	startTree, err := start.Tree()
	if err != nil {
		return nil, romterror.Git(err, "failed to read tree at %s", start.Hash)
	}

	changes, err := startTree.Diff(endTree)
	if err != nil {
		return nil, romterror.Git(err, "failed to diff %s..%s", start.Hash, end.Hash)
	}

	var out []blobChange
	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		if !indexBlobPattern.MatchString(name) {
			continue
		}
		fromFile, toFile, err := change.Files()
		if err != nil {
			return nil, romterror.Git(err, "failed to resolve diff blobs for %s", name)
		}
		var startBlob, endBlob []byte
		if fromFile != nil {
			content, err := fromFile.Contents()
			if err != nil {
				return nil, romterror.Git(err, "failed to read blob %s", name)
			}
			startBlob = []byte(content)
		}
		if toFile != nil {
			content, err := toFile.Contents()
			if err != nil {
				return nil, romterror.Git(err, "failed to read blob %s", name)
			}
			endBlob = []byte(content)
		}
		out = append(out, blobChange{path: name, startBlob: startBlob, endBlob: endBlob})
	}
	return out, nil
}

// rawCrateLine mirrors the fields romt needs from a crates.io-index NDJSON
// entry: {"name":"...","vers":"...","cksum":"..."}. Index lines carry many
// other fields (deps, features, yanked, ...) that romt does not need.
type rawCrateLine struct {
	Name    string `json:"name"`
	Version string `json:"vers"`
	Cksum   string `json:"cksum"`
}

// blobCrateVersions parses an index shard blob's NDJSON lines into a
// by-version map, keeping the last line seen for a given version (a crate
// can be republished with yank-state updates appended as new lines for
// the same version).
func blobCrateVersions(blob []byte) map[string]crate.Crate {
	result := make(map[string]crate.Crate)
	if len(blob) == 0 {
		return result
	}
	scanner := bufio.NewScanner(bytes.NewReader(blob))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var raw rawCrateLine
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		result[raw.Version] = crate.Crate{Name: raw.Name, Version: raw.Version, Hash: raw.Cksum}
	}
	return result
}
