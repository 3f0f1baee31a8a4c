// Package index wraps a crates.io-index Git working tree as romt's
// IndexRepo: fetch/merge against "origin", a persistent "working" branch
// that is the only ref the engine writes to, and the "mark"/"master"
// bookkeeping refs used to record the last-exported commit.
//
// Git plumbing is an external collaborator: most operations use
// go-git/go-git/v5 as a narrow adapter for clone/fetch/log/tree-diff.
// Bundle creation and fetching from a bundle have no go-git equivalent,
// so those two shell out to the `git` executable.
package index

import (
	"context"

	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// WorkingBranch is the only branch the engine writes commits to.
const WorkingBranch = "working"

// MarkBranch and MasterBranch are forced to point at the end of a
// successful export/import.
const (
	MarkBranch   = "mark"
	MasterBranch = "master"
)

// OriginRemote is the name of the upstream remote.
const OriginRemote = "origin"

// IndexRepo wraps a crates.io-index clone at Path.
type IndexRepo struct {
	Path string
	repo *git.Repository
}

// Open opens an existing IndexRepo rooted at path.
func Open(path string) (*IndexRepo, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, romterror.Git(err, "failed to open index at %s", path)
	}
	return &IndexRepo{Path: path, repo: repo}, nil
}

// Init creates a new IndexRepo at path with "origin" set to originURL,
// HEAD pointed at the "working" branch, and working configured to track
// origin/master on fetch. originURL may be an HTTPS upstream or a local
// bundle file path (the init-import scenario).
func Init(path, originURL string) (*IndexRepo, error) {
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, romterror.Git(err, "failed to init index at %s", path)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{
		Name: OriginRemote,
		URLs: []string{originURL},
	}); err != nil {
		return nil, romterror.Git(err, "failed to add origin remote")
	}

	workingRef := plumbing.NewBranchReferenceName(WorkingBranch)
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, workingRef)); err != nil {
		return nil, romterror.Git(err, "failed to point HEAD at %s", WorkingBranch)
	}

	cfg, err := repo.Config()
	if err != nil {
		return nil, romterror.Git(err, "failed to read repo config")
	}
	cfg.Branches[WorkingBranch] = &config.Branch{
		Name:   WorkingBranch,
		Remote: OriginRemote,
		Merge:  plumbing.NewBranchReferenceName(MasterBranch),
	}
	if err := repo.SetConfig(cfg); err != nil {
		return nil, romterror.Git(err, "failed to configure %s branch", WorkingBranch)
	}

	return &IndexRepo{Path: path, repo: repo}, nil
}

// OriginURL returns the sole configured URL of the "origin" remote.
func (r *IndexRepo) OriginURL() (string, error) {
	remote, err := r.repo.Remote(OriginRemote)
	if err != nil {
		return "", romterror.Usage("index lacks an %q remote", OriginRemote)
	}
	urls := remote.Config().URLs
	if len(urls) != 1 {
		return "", romterror.Usage("index remote %q must have exactly one URL", OriginRemote)
	}
	return urls[0], nil
}

// headReferenceName returns the short name of HEAD's current reference
// (e.g. "working"), or "" if HEAD is detached or unborn.
func (r *IndexRepo) headReferenceName() string {
	ref, err := r.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return ""
	}
	if ref.Type() != plumbing.SymbolicReference {
		return ""
	}
	return ref.Target().Short()
}

// EnsureWorkingBranch upgrades a pre-existing index (one created before
// the "working" branch convention) to use "working" as HEAD, branching it
// off the current HEAD commit if "working" does not already exist.
func (r *IndexRepo) EnsureWorkingBranch() error {
	workingRef := plumbing.NewBranchReferenceName(WorkingBranch)
	if _, err := r.repo.Reference(workingRef, true); err == nil {
		return nil
	}
	if r.headReferenceName() == WorkingBranch {
		return nil
	}

	head, err := r.repo.Reference(plumbing.HEAD, true)
	if err == nil {
		if err := r.repo.Storer.SetReference(plumbing.NewHashReference(workingRef, head.Hash())); err != nil {
			return romterror.Git(err, "failed to create %s branch", WorkingBranch)
		}
	}
	symbolic := plumbing.NewSymbolicReference(plumbing.HEAD, workingRef)
	if err := r.repo.Storer.SetReference(symbolic); err != nil {
		return romterror.Git(err, "failed to point HEAD at %s", WorkingBranch)
	}
	return nil
}

// resolve resolves a revision string to a commit hash. The empty string
// and the sentinel "0" both mean "start of repo" and resolve to the zero
// hash with ok=false.
func (r *IndexRepo) resolve(rev string) (plumbing.Hash, bool, error) {
	if rev == "" || rev == "0" {
		return plumbing.ZeroHash, false, nil
	}
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, false, romterror.Git(err, "bad commit requested: %s", rev)
	}
	return *hash, true, nil
}

// BranchExists reports whether rev resolves to a commit.
func (r *IndexRepo) BranchExists(rev string) bool {
	_, ok, err := r.resolve(rev)
	return err == nil && ok
}

func (r *IndexRepo) commitObject(rev string) (*object.Commit, error) {
	hash, ok, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, romterror.Git(err, "failed to load commit %s", rev)
	}
	return commit, nil
}

// Mark forcibly moves local branches "mark" and "master" to point at end,
// skipping whichever one is the current HEAD reference.
func (r *IndexRepo) Mark(end string) error {
	hash, ok, err := r.resolve(end)
	if err != nil {
		return err
	}
	if !ok {
		return romterror.Usage("mark requires a valid END, got %q", end)
	}
	current := r.headReferenceName()
	for _, branch := range []string{MarkBranch, MasterBranch} {
		if branch == current {
			continue
		}
		ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(branch), hash)
		if err := r.repo.Storer.SetReference(ref); err != nil {
			return romterror.Git(err, "failed to move branch %s", branch)
		}
	}
	return nil
}

// Pull fetches origin (force) into the index, then folds
// remotes/origin/master into the working branch, preserving any local
// config.json rewrite across the update.
func (r *IndexRepo) Pull(ctx context.Context) error {
	if err := r.EnsureWorkingBranch(); err != nil {
		return err
	}
	if err := r.fetchOrigin(ctx); err != nil {
		return err
	}
	return r.mergeOriginMaster()
}

func (r *IndexRepo) fetchOrigin(ctx context.Context) error {
	url, err := r.OriginURL()
	if err != nil {
		return err
	}
	if isBundlePath(url) {
		return fetchFromBundle(ctx, r.Path, url)
	}
	err = r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: OriginRemote,
		Force:      true,
	})
	if err != nil && err != git.NoErrAlreadyUpToDate && err != transport.ErrEmptyRemoteRepository {
		return romterror.Git(err, "failed to fetch %s", OriginRemote)
	}
	return nil
}

// mergeOriginMaster folds remotes/origin/master into "working". Real
// merges (git merge) only matter when working has local commits beyond a
// fast-forward of origin/master, which in romt only happens for the
// config.json rewrite committed by UpdateConfigJSON; resetting working to
// origin/master and replaying that rewrite afterward reaches the same
// state a fast-forward-or-reset merge would, without go-git's missing
// merge-algorithm support.
func (r *IndexRepo) mergeOriginMaster() error {
	initialConfig, hadConfig, err := r.readConfigJSON()
	if err != nil {
		return err
	}

	remoteRef := plumbing.NewRemoteReferenceName(OriginRemote, MasterBranch)
	remoteHash, err := r.repo.ResolveRevision(plumbing.Revision(remoteRef))
	if err != nil {
		return romterror.Git(err, "failed to resolve %s", remoteRef)
	}

	workingRef := plumbing.NewBranchReferenceName(WorkingBranch)
	wt, err := r.repo.Worktree()
	if err != nil {
		return romterror.Git(err, "failed to access working tree")
	}
	if err := wt.Reset(&git.ResetOptions{Commit: *remoteHash, Mode: git.HardReset}); err != nil {
		return romterror.Git(err, "failed to reset %s to %s", WorkingBranch, remoteRef)
	}
	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(workingRef, *remoteHash)); err != nil {
		return romterror.Git(err, "failed to update %s", WorkingBranch)
	}

	if hadConfig {
		if err := r.UpdateConfigJSON(initialConfig); err != nil {
			return err
		}
	}
	return nil
}

func isBundlePath(url string) bool {
	return len(url) > len(".bundle") && url[len(url)-len(".bundle"):] == ".bundle"
}

// RepoPath returns the local filesystem path for this index repository.
func (r *IndexRepo) RepoPath() string {
	return r.Path
}
