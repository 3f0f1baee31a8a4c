// Package manifest parses a rustup toolchain channel TOML manifest into a
// typed view: packages, targets, availability, and artifact relative
// paths.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// TargetType classifies a target triple by which packages are present for
// it locally.
type TargetType int

const (
	// NativeTarget has an available "rustc" package for the triple.
	NativeTarget TargetType = iota
	// CrossTarget has "rust-std" but not "rustc" for the triple.
	CrossTarget
	// MinimalTarget has neither "rustc" nor "rust-std" for the triple.
	MinimalTarget
)

func (t TargetType) String() string {
	switch t {
	case NativeTarget:
		return "native-target"
	case CrossTarget:
		return "cross-target"
	default:
		return "minimal"
	}
}

// wildcardTarget matches every target.
const wildcardTarget = "*"

// distURLPrefix is stripped from xz_url to derive Package.RelPath.
const distURLPrefix = "/dist/"

// rawManifest is the TOML wire shape of a channel manifest.
type rawManifest struct {
	ManifestVersion string               `toml:"manifest-version"`
	Date            string               `toml:"date"`
	Pkg             map[string]rawPkgDef `toml:"pkg"`
}

type rawPkgDef struct {
	Version string                  `toml:"version"`
	Target  map[string]rawTargetDef `toml:"target"`
}

type rawTargetDef struct {
	Available bool   `toml:"available"`
	URL       string `toml:"url"`
	Hash      string `toml:"hash"`
	XzURL     string `toml:"xz_url"`
	XzHash    string `toml:"xz_hash"`
}

// Package is the flattened (name, target) view of one manifest entry.
type Package struct {
	Name      string
	Target    string
	Available bool
	XzURL     string
	XzHash    string
}

// HasRelPath reports whether the package carries a downloadable artifact
// (i.e. has a non-empty xz_url).
func (p Package) HasRelPath() bool {
	return p.XzURL != ""
}

// RelPath derives the artifact's relative path by stripping the fixed
// "/dist/" prefix from XzURL.
func (p Package) RelPath() (string, error) {
	if !p.HasRelPath() {
		return "", fmt.Errorf("package %s/%s has no xz_url", p.Name, p.Target)
	}
	idx := strings.Index(p.XzURL, distURLPrefix)
	if idx < 0 {
		return "", fmt.Errorf("package %s/%s xz_url %q does not contain %q", p.Name, p.Target, p.XzURL, distURLPrefix)
	}
	return p.XzURL[idx+len(distURLPrefix):], nil
}

// Manifest is a parsed view of a toolchain channel TOML document.
type Manifest struct {
	raw rawManifest
}

// Parse parses manifest TOML contents.
func Parse(contents string) (*Manifest, error) {
	var raw rawManifest
	if _, err := toml.Decode(contents, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if _, ok := raw.Pkg["rust-src"]; !ok {
		return nil, fmt.Errorf("manifest is missing required pkg.rust-src entry")
	}
	return &Manifest{raw: raw}, nil
}

// rustSrcVersion returns the raw version string of the rust-src package,
// e.g. "1.44.0-nightly (42abbd887 2020-04-07)".
func (m *Manifest) rustSrcVersion() string {
	return m.raw.Pkg["rust-src"].Version
}

// Channel derives the channel (stable, beta, or nightly) from the
// rust-src package's version string.
func (m *Manifest) Channel() string {
	v := m.rustSrcVersion()
	switch {
	case strings.Contains(v, "-beta"):
		return "beta"
	case strings.Contains(v, "-nightly"):
		return "nightly"
	default:
		return "stable"
	}
}

// Version derives "X.Y.Z" from the rust-src package's version string,
// splitting off any "-beta"/"-nightly" tag and trailing parenthesized
// metadata.
func (m *Manifest) Version() string {
	v := m.rustSrcVersion()
	v = strings.SplitN(v, "-", 2)[0]
	v = strings.Fields(v)[0]
	return v
}

// Date returns the manifest's "date" attribute (YYYY-MM-DD).
func (m *Manifest) Date() string {
	return m.raw.Date
}

// Spec returns "<channel>-<date>".
func (m *Manifest) Spec() string {
	return fmt.Sprintf("%s-%s", m.Channel(), m.Date())
}

// Ident returns "<spec>(<version>)".
func (m *Manifest) Ident() string {
	return fmt.Sprintf("%s(%s)", m.Spec(), m.Version())
}

// GetPackage returns the Package for (name, target).
func (m *Manifest) GetPackage(name, target string) (Package, error) {
	pkgDef, ok := m.raw.Pkg[name]
	if !ok {
		return Package{}, fmt.Errorf("manifest has no package %q", name)
	}
	t, ok := pkgDef.Target[target]
	if !ok {
		return Package{}, fmt.Errorf("package %q has no target %q", name, target)
	}
	return Package{Name: name, Target: target, Available: t.Available, XzURL: t.XzURL, XzHash: t.XzHash}, nil
}

// AllPackages returns every (name, target) package in the manifest.
func (m *Manifest) AllPackages() []Package {
	var out []Package
	for name, pkgDef := range m.raw.Pkg {
		for target, t := range pkgDef.Target {
			out = append(out, Package{Name: name, Target: target, Available: t.Available, XzURL: t.XzURL, XzHash: t.XzHash})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Target < out[j].Target
	})
	return out
}

func targetMatchesAny(target string, expected []string) bool {
	if target == wildcardTarget {
		return true
	}
	for _, e := range expected {
		if target == e || e == wildcardTarget {
			return true
		}
	}
	return false
}

// AvailablePackages filters AllPackages to available=true, optionally
// restricted to targets (nil means "*") and to packages whose rel_path
// satisfies present (nil means "no restriction").
func (m *Manifest) AvailablePackages(targets []string, present func(relPath string) bool) []Package {
	targetList := targets
	if targetList == nil {
		targetList = []string{wildcardTarget}
	}
	var out []Package
	for _, p := range m.AllPackages() {
		if !p.Available || !targetMatchesAny(p.Target, targetList) {
			continue
		}
		if present != nil {
			relPath, err := p.RelPath()
			if err != nil || !present(relPath) {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

// AllTargets returns every target triple present in the manifest,
// excluding the "*" sentinel.
func (m *Manifest) AllTargets() []string {
	set := map[string]bool{}
	for _, p := range m.AllPackages() {
		if p.Target != wildcardTarget {
			set[p.Target] = true
		}
	}
	return sortedKeys(set)
}

// AvailableTargets returns every target triple with at least one
// available package matching targets/present, excluding "*".
func (m *Manifest) AvailableTargets(targets []string, present func(string) bool) []string {
	set := map[string]bool{}
	for _, p := range m.AvailablePackages(targets, present) {
		if p.Target != wildcardTarget {
			set[p.Target] = true
		}
	}
	return sortedKeys(set)
}

// AvailableTargetTypes returns target -> TargetType for each target
// (restricted to `targets`, or every available target if nil) that is
// either fully present locally, or has at least one package whose
// rel_path is unique to it.
func (m *Manifest) AvailableTargetTypes(targets []string, present func(string) bool) map[string]TargetType {
	targetPackages := map[string][]Package{}
	relPathTargets := map[string]map[string]bool{}

	for _, p := range m.AvailablePackages(nil, nil) {
		targetPackages[p.Target] = append(targetPackages[p.Target], p)
		if relPath, err := p.RelPath(); err == nil {
			if relPathTargets[relPath] == nil {
				relPathTargets[relPath] = map[string]bool{}
			}
			relPathTargets[relPath][p.Target] = true
		}
	}

	targetList := targets
	if targetList == nil {
		targetList = m.AvailableTargets(nil, nil)
	}
	sorted := append([]string(nil), targetList...)
	sort.Strings(sorted)

	result := map[string]TargetType{}
	for _, target := range sorted {
		packages := targetPackages[target]
		if len(packages) == 0 {
			continue
		}
		haveAllRelPaths := true
		haveUniqueRelPath := false
		haveRustc := false
		haveRustStd := false
		for _, p := range packages {
			relPath, err := p.RelPath()
			isPresent := present == nil || (err == nil && present(relPath))
			if isPresent {
				switch p.Name {
				case "rustc":
					haveRustc = true
				case "rust-std":
					haveRustStd = true
				}
				if err == nil && len(relPathTargets[relPath]) == 1 {
					haveUniqueRelPath = true
				}
			} else {
				haveAllRelPaths = false
			}
		}
		if haveUniqueRelPath || haveAllRelPaths {
			switch {
			case haveRustc:
				result[target] = NativeTarget
			case haveRustStd:
				result[target] = CrossTarget
			default:
				result[target] = MinimalTarget
			}
		}
	}
	return result
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
