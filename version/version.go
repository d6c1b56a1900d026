// Package version extracts build and dependency information at runtime,
// used to stamp the cache artifact header's collector-versions field so
// a loaded artifact can be traced back to the collector binary that
// produced it.
package version

import (
	"runtime/debug"
	"sort"
)

// Dependency is one resolved module dependency.
type Dependency struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Replace string `json:"replace,omitempty"`
}

// BuildInfo is the build-time information embedded in the binary.
type BuildInfo struct {
	GoVersion    string       `json:"goVersion"`
	MainModule   string       `json:"mainModule"`
	MainVersion  string       `json:"mainVersion"`
	Dependencies []Dependency `json:"dependencies"`
}

// GetBuildInfo extracts the module and dependency graph embedded by the
// Go toolchain at build time.
func GetBuildInfo() *BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return &BuildInfo{GoVersion: "unknown", MainModule: "unknown", MainVersion: "unknown"}
	}

	bi := &BuildInfo{
		GoVersion:   info.GoVersion,
		MainModule:  info.Path,
		MainVersion: info.Main.Version,
	}
	for _, dep := range info.Deps {
		d := Dependency{Path: dep.Path, Version: dep.Version}
		if dep.Replace != nil {
			d.Replace = dep.Replace.Path + "@" + dep.Replace.Version
		}
		bi.Dependencies = append(bi.Dependencies, d)
	}
	sort.Slice(bi.Dependencies, func(i, j int) bool { return bi.Dependencies[i].Path < bi.Dependencies[j].Path })
	return bi
}

// CollectorVersion returns a short string identifying the collector
// binary that built the current process, suitable for the cache
// artifact header's collector-versions field: the module's own version
// when this binary is the collector ("dev" for an untagged build), the
// dependency version when the module is imported, else "unknown".
func CollectorVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	if info.Path == "github.com/devlens/enginemetrics" {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		return "dev"
	}
	for _, dep := range info.Deps {
		if dep.Path == "github.com/devlens/enginemetrics" {
			if dep.Replace != nil {
				return dep.Replace.Version + " (replaced)"
			}
			return dep.Version
		}
	}
	return "unknown"
}
