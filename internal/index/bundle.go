package index

import (
	"context"
	"os/exec"

	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/go-git/go-git/v5/plumbing"
)

// BundleCreate produces a Git bundle at bundlePath containing the commit
// range start..end. If end is not literally "master", a temporary
// "bundle/master" ref is created at end and bundled instead, so the
// bundle always exposes a branch named "master" on import. go-git has no
// bundle-writer, so this shells out to `git bundle create`.
func (r *IndexRepo) BundleCreate(ctx context.Context, bundlePath, start, end string) error {
	bundleEnd := end
	if end != MasterBranch {
		hash, ok, err := r.resolve(end)
		if err != nil {
			return err
		}
		if !ok {
			return romterror.Usage("bundle_create requires a valid END, got %q", end)
		}
		ref := plumbing.NewBranchReferenceName("bundle/master")
		if err := r.repo.Storer.SetReference(plumbing.NewHashReference(ref, hash)); err != nil {
			return romterror.Git(err, "failed to create temporary bundle/master ref")
		}
		bundleEnd = "bundle/master"
	}

	args := []string{"-C", r.Path, "bundle", "create", bundlePath}
	if start != "" && start != "0" {
		args = append(args, "^"+start)
	}
	args = append(args, bundleEnd)

	cmd := exec.CommandContext(ctx, "git", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return romterror.Git(err, "git bundle create failed: %s", string(out))
	}
	return nil
}

// fetchFromBundle fetches all branches from a local bundle file into
// remotes/origin/*, including the "bundle/master" ref BundleCreate
// creates, matching the refspec init-import configures for its origin
// remote. Reading a bundle as a remote has no go-git equivalent, so this
// shells out to `git fetch`.
func fetchFromBundle(ctx context.Context, repoPath, bundlePath string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", repoPath, "fetch", "--force", bundlePath,
		"+refs/heads/*:refs/remotes/origin/*",
		"+refs/heads/bundle/*:refs/remotes/origin/*",
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return romterror.Git(err, "git fetch from bundle failed: %s", string(out))
	}
	return nil
}
