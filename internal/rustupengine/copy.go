package rustupengine

import (
	"io"
	"os"
	"path/filepath"

	"github.com/drmikehenry/romt/internal/romterror"
)

// copyTree recursively copies src into dst, used by Fixup to mirror
// archive/<version>/<target>/ into dist/<target>/. Unlike
// the ancestor tree-copy helper this is adapted from, rustup-init release
// trees hold only plain files, so symlink preservation is not needed.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return romterror.Abort("failed to walk %s: %v", path, err)
		}
		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return romterror.Abort("failed to resolve relative path under %s: %v", src, err)
		}
		if relPath == "." {
			return nil
		}
		target := filepath.Join(dst, relPath)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return romterror.Abort("failed to open %s: %v", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return romterror.Abort("failed to create directory for %s: %v", dst, err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return romterror.Abort("failed to create %s: %v", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return romterror.Abort("failed to copy %s: %v", src, err)
	}
	return nil
}
