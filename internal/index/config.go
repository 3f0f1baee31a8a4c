package index

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drmikehenry/romt/internal/romterror"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// configJSONName is the crates.io-index file rewritten to point clients at
// a local mirror server.
const configJSONName = "config.json"

func (r *IndexRepo) configJSONPath() string {
	return filepath.Join(r.Path, configJSONName)
}

// readConfigJSON reads the worktree's config.json, reporting whether it
// existed.
func (r *IndexRepo) readConfigJSON() ([]byte, bool, error) {
	f, err := os.Open(r.configJSONPath())
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, romterror.Git(err, "failed to read %s", configJSONName)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, false, romterror.Git(err, "failed to read %s", configJSONName)
	}
	return data, true, nil
}

// UpdateConfigJSON writes content to config.json and commits it to
// "working" as "Apply config.json adjustments", but only if content
// differs from what is already present).
func (r *IndexRepo) UpdateConfigJSON(content []byte) error {
	old, existed, err := r.readConfigJSON()
	if err != nil {
		return err
	}
	if existed && string(old) == string(content) {
		return nil
	}

	path := r.configJSONPath()
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return romterror.Git(err, "failed to write %s", configJSONName)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return romterror.Git(err, "failed to access working tree")
	}
	if _, err := wt.Add(configJSONName); err != nil {
		return romterror.Git(err, "failed to stage %s", configJSONName)
	}
	_, err = wt.Commit("Apply config.json adjustments", &object.CommitOptions{
		Author: &object.Signature{
			Name:  "romt",
			Email: "romt@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return romterror.Git(err, "failed to commit %s", configJSONName)
	}
	return nil
}

// ConfigureIndex rewrites config.json to point "dl" and "api" at
// serverURL and commits the change.
func (r *IndexRepo) ConfigureIndex(serverURL string) error {
	if !strings.HasSuffix(serverURL, "/") {
		serverURL += "/"
	}
	content := fmt.Sprintf(
		"{\n    \"dl\": %q,\n    \"api\": %q\n}\n",
		serverURL+"crates/{crate}/{crate}-{version}.crate",
		serverURL,
	)
	return r.UpdateConfigJSON([]byte(content))
}
