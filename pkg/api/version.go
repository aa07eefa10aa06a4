package api

import "fmt"

// Version is the semver-like "MAJ.MIN.PATCH" string exchanged in every
// MessageBody, per spec.md §6. CurrentVersion is what this build of
// KIPA stamps on outgoing bodies.
type Version struct {
	Major, Minor, Patch uint32
}

// CurrentVersion is bumped whenever the wire contract changes in a
// backwards-incompatible way.
var CurrentVersion = Version{Major: 0, Minor: 1, Patch: 0}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion parses a "MAJ.MIN.PATCH" string.
func ParseVersion(s string) (Version, error) {
	var v Version
	n, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch)
	if err != nil || n != 3 {
		return Version{}, ParseError("malformed version %q", s)
	}
	return v, nil
}

// Compatible implements spec.md §6's rule: major versions must match;
// if major is 0 (beta), minor and patch must also match.
func (v Version) Compatible(other Version) bool {
	if v.Major != other.Major {
		return false
	}
	if v.Major == 0 {
		return v.Minor == other.Minor && v.Patch == other.Patch
	}
	return true
}

// CheckCompatible returns the spec.md §6/§8 ApiError for a version
// mismatch, or nil if compatible.
func (v Version) CheckCompatible(other Version) error {
	if v.Compatible(other) {
		return nil
	}
	if v.Major != other.Major {
		return ParseError("major versions do not match: local=%s remote=%s", v, other)
	}
	return ParseError("beta versions do not match exactly: local=%s remote=%s", v, other)
}
