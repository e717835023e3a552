package typeset

import "dario.cat/mergo"

// Tags controls which display equations receive numbers.
type Tags string

const (
	TagsNone Tags = "none"
	TagsAMS  Tags = "ams"
	TagsAll  Tags = "all"
)

// PackageAll enables every built-in macro package.
const PackageAll = "all"

// Config describes how math in a document is typeset: which macro
// packages are enabled, user-defined macros, and equation numbering.
type Config struct {
	Packages  []string          `json:"packages" yaml:"packages"`
	Macros    map[string]string `json:"macros" yaml:"macros"`
	Tags      Tags              `json:"tags" yaml:"tags"`
	TagSide   string            `json:"tagSide" yaml:"tagSide"`
	TagIndent string            `json:"tagIndent" yaml:"tagIndent"`
	Section   int               `json:"section" yaml:"section"`
}

// Merge combines a base config with a document-supplied override.
// Scalar fields from the override win when set, macros are shallow-merged
// with override entries replacing base entries, and packages are unioned.
// A nil override is an empty patch. Merge never mutates its inputs.
func Merge(base Config, override *Config) Config {
	merged := base
	merged.Packages = append([]string(nil), base.Packages...)
	merged.Macros = copyMacros(base.Macros)
	if override == nil {
		return merged
	}

	patch := *override
	patch.Packages = nil // unioned below, mergo would overwrite
	patch.Macros = nil   // merged by hand below, mergo would alias the map
	if err := mergo.Merge(&merged, patch, mergo.WithOverride); err != nil {
		// Merging two flat structs of identical type cannot fail.
		panic(err)
	}

	if len(override.Macros) > 0 {
		if merged.Macros == nil {
			merged.Macros = make(map[string]string, len(override.Macros))
		}
		for k, v := range override.Macros {
			merged.Macros[k] = v
		}
	}
	if !hasPackage(base.Packages, PackageAll) {
		merged.Packages = unionPackages(base.Packages, override.Packages)
	}
	return merged
}

func copyMacros(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func hasPackage(packages []string, name string) bool {
	for _, p := range packages {
		if p == name {
			return true
		}
	}
	return false
}

// unionPackages preserves base order, appending unseen override entries.
func unionPackages(base, override []string) []string {
	out := make([]string, 0, len(base)+len(override))
	seen := make(map[string]bool, len(base)+len(override))
	for _, p := range base {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range override {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
