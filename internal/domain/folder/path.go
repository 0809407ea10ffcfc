// Package folder contains the folder hierarchy domain model: the immutable
// Path value object and the Record aggregate that summarizes a folder's
// members for vector matching.
package folder

import (
	"encoding/json"
	"regexp"
	"strings"

	apperrors "curator-backend/internal/errors"
)

const (
	// MaxDepth bounds the folder hierarchy.
	MaxDepth = 4
	// MaxSegmentLength bounds a single path segment.
	MaxSegmentLength = 50

	// Separator joins segments in the canonical string form.
	Separator = "/"

	unsortedSegment    = "Unsorted"
	provisionalSegment = "Provisional"
)

// invalidSegmentChars are forbidden inside a segment. The set mirrors
// filesystem-hostile characters so folder names survive export to disk.
var invalidSegmentChars = regexp.MustCompile(`[<>:"|?*/\\]`)

// reservedNames are device names that cannot be used as segments,
// case-insensitively.
var reservedNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// Path is an immutable hierarchical folder path of at most MaxDepth validated
// segments. The zero value is the implicit root. All mutating operations
// return a new Path.
type Path struct {
	segments []string
}

// Root returns the implicit root path (depth 0).
func Root() Path {
	return Path{}
}

// Unsorted returns the special single-segment fallback root.
func Unsorted() Path {
	return Path{segments: []string{unsortedSegment}}
}

// Provisional returns the special two-segment root for folders awaiting
// confirmation, e.g. "Provisional/sorting-algorithms".
func Provisional(name string) (Path, error) {
	if err := validateSegment(name); err != nil {
		return Path{}, err
	}
	return Path{segments: []string{provisionalSegment, name}}, nil
}

// FromString parses a canonical path string. The string must start with the
// separator and contain no empty segments: "/Algorithms/Sorting".
func FromString(s string) (Path, error) {
	if s == Separator {
		return Root(), nil
	}
	if !strings.HasPrefix(s, Separator) {
		return Path{}, apperrors.Validation("PATH_FORMAT", "folder path must start with '/'").
			WithContext("path", s)
	}
	raw := strings.Split(s[len(Separator):], Separator)
	return FromSegments(raw)
}

// FromSegments builds a path from pre-split segments, validating each segment
// and the overall depth.
func FromSegments(segments []string) (Path, error) {
	if len(segments) > MaxDepth {
		return Path{}, apperrors.Validation("MAX_DEPTH_EXCEEDED", "folder path exceeds maximum depth").
			WithContext("depth", len(segments)).
			WithContext("maxDepth", MaxDepth)
	}
	copied := make([]string, len(segments))
	for i, seg := range segments {
		if err := validateSegment(seg); err != nil {
			return Path{}, err
		}
		copied[i] = seg
	}
	return Path{segments: copied}, nil
}

func validateSegment(seg string) error {
	if seg == "" {
		return apperrors.Validation("INVALID_SEGMENT", "folder path segment cannot be empty")
	}
	if len(seg) > MaxSegmentLength {
		return apperrors.Validation("INVALID_SEGMENT", "folder path segment too long").
			WithContext("segment", seg).
			WithContext("maxLength", MaxSegmentLength)
	}
	if invalidSegmentChars.MatchString(seg) {
		return apperrors.Validation("INVALID_SEGMENT", "folder path segment contains forbidden characters").
			WithContext("segment", seg)
	}
	if reservedNames[strings.ToLower(seg)] {
		return apperrors.Validation("INVALID_SEGMENT", "folder path segment is a reserved name").
			WithContext("segment", seg)
	}
	return nil
}

// Depth returns the number of segments.
func (p Path) Depth() int {
	return len(p.segments)
}

// IsRoot reports whether the path is the implicit root.
func (p Path) IsRoot() bool {
	return len(p.segments) == 0
}

// Leaf returns the final segment, or "" at the root.
func (p Path) Leaf() string {
	if p.IsRoot() {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Segments returns a copy of the path's segments.
func (p Path) Segments() []string {
	out := make([]string, len(p.segments))
	copy(out, p.segments)
	return out
}

// Parent returns the parent path. The second return is false at the root,
// which has no parent.
func (p Path) Parent() (Path, bool) {
	if p.IsRoot() {
		return Path{}, false
	}
	return Path{segments: p.segments[:len(p.segments)-1]}, true
}

// Ancestors returns the path's proper ancestors ordered shallow to deep,
// excluding the implicit root and the path itself. "/a/b/c" yields
// ["/a", "/a/b"].
func (p Path) Ancestors() []Path {
	if p.Depth() <= 1 {
		return nil
	}
	out := make([]Path, 0, p.Depth()-1)
	for i := 1; i < p.Depth(); i++ {
		out = append(out, Path{segments: p.segments[:i]})
	}
	return out
}

// Child returns a new path one level deeper. Fails with a validation error
// when the segment is invalid or the result would exceed MaxDepth.
func (p Path) Child(name string) (Path, error) {
	if p.Depth()+1 > MaxDepth {
		return Path{}, apperrors.Validation("MAX_DEPTH_EXCEEDED", "child would exceed maximum folder depth").
			WithContext("parent", p.String()).
			WithContext("maxDepth", MaxDepth)
	}
	if err := validateSegment(name); err != nil {
		return Path{}, err
	}
	segs := make([]string, p.Depth()+1)
	copy(segs, p.segments)
	segs[p.Depth()] = name
	return Path{segments: segs}, nil
}

// Rename returns a new path with the leaf segment replaced.
func (p Path) Rename(name string) (Path, error) {
	if p.IsRoot() {
		return Path{}, apperrors.Validation("PATH_FORMAT", "cannot rename the root")
	}
	parent, _ := p.Parent()
	return parent.Child(name)
}

// IsAncestorOf reports whether p is a strict ancestor of other.
// Irreflexive and transitive.
func (p Path) IsAncestorOf(other Path) bool {
	if p.Depth() >= other.Depth() {
		return false
	}
	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

// IsDescendantOf reports whether p is a strict descendant of other.
func (p Path) IsDescendantOf(other Path) bool {
	return other.IsAncestorOf(p)
}

// IsSiblingOf reports whether two distinct paths share the same parent at the
// same non-zero depth. Symmetric; always false for the root.
func (p Path) IsSiblingOf(other Path) bool {
	if p.IsRoot() || other.IsRoot() {
		return false
	}
	if p.Depth() != other.Depth() || p.Equals(other) {
		return false
	}
	pp, _ := p.Parent()
	op, _ := other.Parent()
	return pp.Equals(op)
}

// RelativePath returns target's path relative to p, and whether p is an
// ancestor of target. "/a".RelativePath("/a/b/c") yields "b/c".
func (p Path) RelativePath(target Path) (string, bool) {
	if !p.IsAncestorOf(target) {
		return "", false
	}
	return strings.Join(target.segments[p.Depth():], Separator), true
}

// IsUnsorted reports whether the path lives under the Unsorted root.
func (p Path) IsUnsorted() bool {
	return !p.IsRoot() && p.segments[0] == unsortedSegment
}

// IsProvisional reports whether the path lives under the Provisional root.
func (p Path) IsProvisional() bool {
	return !p.IsRoot() && p.segments[0] == provisionalSegment
}

// String returns the canonical form: "/" for the root, otherwise
// "/"-prefixed joined segments.
func (p Path) String() string {
	if p.IsRoot() {
		return Separator
	}
	return Separator + strings.Join(p.segments, Separator)
}

// Equals compares paths by canonical form.
func (p Path) Equals(other Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

// Compare orders paths lexicographically by canonical string.
func (p Path) Compare(other Path) int {
	return strings.Compare(p.String(), other.String())
}

// MarshalJSON renders the canonical string form.
func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses the canonical string form.
func (p *Path) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := FromString(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
