package sandbox

import (
	"regexp"
	"strings"
)

// maxPackageNameLen caps package names handed to the installer.
const maxPackageNameLen = 128

// packageNamePattern is the PEP 508 distribution name grammar.
var packageNamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// blockedPackages are never installed into a sandbox.
var blockedPackages = map[string]string{
	"pip":        "reinstalling the installer",
	"setuptools": "replacing build tooling",
	"wheel":      "replacing build tooling",
}

// GuardPackage checks a package name before it is passed to the installer.
// Returns the reason it is blocked, or an empty string if it is allowed.
func GuardPackage(name string) string {
	if strings.TrimSpace(name) == "" {
		return "empty package name is not allowed"
	}
	if strings.Contains(name, "\x00") {
		return "package blocked: null byte injection detected"
	}
	if len(name) > maxPackageNameLen {
		return "package blocked: name too long"
	}
	if strings.HasPrefix(name, "-") {
		return "package blocked: looks like an installer option"
	}
	if strings.ContainsAny(name, "/\\:@") {
		return "package blocked: URLs and paths are not allowed"
	}
	if !packageNamePattern.MatchString(name) {
		return "package blocked: invalid distribution name"
	}
	if desc, ok := blockedPackages[strings.ToLower(name)]; ok {
		return "package blocked: " + desc
	}
	return ""
}

// IsPackageSafe is a convenience function that returns true if the package is allowed.
func IsPackageSafe(name string) bool {
	return GuardPackage(name) == ""
}
