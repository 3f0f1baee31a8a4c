package rustupengine

import (
	"context"
	"os"
	"strings"

	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// rustupGitHubOwner and rustupGitHubRepo name the upstream repository
// consulted when ctx.FromGithub is set and release-stable.toml cannot be
// fetched.
const (
	rustupGitHubOwner = "rust-lang"
	rustupGitHubRepo  = "rustup"
)

// newGitHubClient builds the client githubLatestVersion queries. Tests
// override this to point at a local fake instead of the real API.
// If GITHUB_TOKEN is set, requests are authenticated, raising the
// otherwise-low unauthenticated rate limit.
var newGitHubClient = func() *github.Client {
	token := os.Getenv("GITHUB_TOKEN")
	if token == "" {
		return github.NewClient(nil)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(context.Background(), ts))
}

// githubLatestVersion discovers the latest published rustup-init version
// via the GitHub releases API, normalizing a leading "v" off the tag
// name (e.g. "v1.27.1" -> "1.27.1").
func githubLatestVersion(ctx context.Context) (string, error) {
	client := newGitHubClient()
	release, _, err := client.Repositories.GetLatestRelease(ctx, rustupGitHubOwner, rustupGitHubRepo)
	if err != nil {
		return "", romterror.Download(err, "failed to discover latest rustup release via GitHub")
	}
	if release.TagName == nil {
		return "", romterror.Abort("GitHub release for %s/%s has no tag name", rustupGitHubOwner, rustupGitHubRepo)
	}
	return strings.TrimPrefix(*release.TagName, "v"), nil
}
