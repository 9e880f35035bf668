// Package maven implements the Maven repository path and filename
// grammar: the bidirectional mapping between a repository-relative path
// such as "org/foo/bar/1.2.3/bar-1.2.3.jar" and a structured
// types.ArtifactRef.
//
// Parsing the filename is contextual and lossy: hyphens are ambiguous
// between the artifact id, the version and the classifier, so the parser
// is handed the artifact id and version string as seen in the directory
// layout and disambiguates the remainder against them.
package maven

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lgulliver/lodestone/pkg/types"
)

var timestampSuffixRegex = regexp.MustCompile(`-\d{8}\.\d{6}$`)

// ParseMavenPath splits a repository-relative path into group, artifact
// id, version string and filename, then hands the filename off to the
// contextual filename parser.
func ParseMavenPath(path string) (types.ArtifactRef, error) {
	lastSlash := strings.LastIndex(path, "/")
	if lastSlash < 0 {
		return types.ArtifactRef{}, fmt.Errorf("not a valid maven artifact path: %q", path)
	}
	withoutFileName, fileName := path[:lastSlash], path[lastSlash+1:]

	secondSlash := strings.LastIndex(withoutFileName, "/")
	if secondSlash < 0 {
		return types.ArtifactRef{}, fmt.Errorf("not a valid maven artifact path: %q", path)
	}
	withoutVersion, versionString := withoutFileName[:secondSlash], withoutFileName[secondSlash+1:]

	thirdSlash := strings.LastIndex(withoutVersion, "/")
	if thirdSlash < 0 {
		return types.ArtifactRef{}, fmt.Errorf("not a valid maven artifact path: %q", path)
	}
	groupPath, artifactID := withoutVersion[:thirdSlash], withoutVersion[thirdSlash+1:]

	parsed, err := parseMavenFilename(fileName, artifactID, versionString)
	if err != nil {
		return types.ArtifactRef{}, err
	}

	return types.ArtifactRef{
		GroupID:    strings.ReplaceAll(groupPath, "/", "."),
		ArtifactID: artifactID,
		Version:    parsed.version,
		Classifier: parsed.classifier,
		Extension:  parsed.extension,
	}, nil
}

// AsMavenPath performs the inverse of ParseMavenPath: it formats an
// ArtifactRef as a repository-relative path.
func AsMavenPath(ref types.ArtifactRef) string {
	return fmt.Sprintf("%s/%s/%s/%s",
		strings.ReplaceAll(ref.GroupID, ".", "/"),
		ref.ArtifactID,
		ref.Version.Value,
		mavenFileName(ref),
	)
}

func mavenFileName(ref types.ArtifactRef) string {
	classifierSuffix := ""
	if ref.Classifier.Present {
		classifierSuffix = "-" + ref.Classifier.Value
	}

	if !ref.Version.Snapshot {
		return fmt.Sprintf("%s-%s%s%s", ref.ArtifactID, ref.Version.Value, classifierSuffix, ref.Extension)
	}

	buildSuffix := ""
	if ref.Version.HasBuild {
		buildSuffix = fmt.Sprintf("-%d", ref.Version.Build)
	}
	return fmt.Sprintf("%s-%s%s-%s%s%s", ref.ArtifactID, ref.Version.Value, classifierSuffix, ref.Version.Timestamp, buildSuffix, ref.Extension)
}

type parsedFilename struct {
	version    types.Version
	classifier types.Classifier
	extension  string
}

// parseMavenFilename parses the filename component, given the artifactID
// and versionString as found in the directory layout. Both are required
// as hints because the filename alone is ambiguous: hyphens separate the
// artifact id, version, classifier and snapshot timestamp/build with no
// escaping.
func parseMavenFilename(fileName, artifactID, versionString string) (parsedFilename, error) {
	fullFileName := fileName

	if len(fileName) < len(artifactID)+len(versionString)+2 {
		return parsedFilename{}, fmt.Errorf("not a valid maven file name: %q", fullFileName)
	}

	if !strings.HasPrefix(fileName, artifactID) {
		return parsedFilename{}, fmt.Errorf("%q is not a valid maven file name: expected to start with artifact id %q", fullFileName, artifactID)
	}
	rest := fileName[len(artifactID):]

	if !strings.HasPrefix(rest, "-") {
		return parsedFilename{}, fmt.Errorf("%q is not a valid maven file name: missing separator after artifact id", fullFileName)
	}
	rest = rest[1:]

	if !strings.HasPrefix(rest, versionString) {
		return parsedFilename{}, fmt.Errorf("%q is not a valid maven file name: expected to have version string %q", fullFileName, versionString)
	}
	rest = rest[len(versionString):]

	extension := ""
	if lastDot := strings.LastIndex(rest, "."); lastDot >= 0 {
		extension, rest = rest[lastDot:], rest[:lastDot]
	}

	if strings.HasSuffix(versionString, "-SNAPSHOT") {
		classifier, timestamp, build, err := parseSnapshotTail(rest, fullFileName)
		if err != nil {
			return parsedFilename{}, err
		}
		return parsedFilename{
			version:    types.SnapshotVersion(versionString, timestamp, build),
			classifier: classifier,
			extension:  extension,
		}, nil
	}

	// <artifactId>-<version>[-<classifier>].<extension>
	if rest == "" {
		return parsedFilename{
			version:    types.ReleaseVersion(versionString),
			classifier: types.Unclassified(),
			extension:  extension,
		}, nil
	}
	if !strings.HasPrefix(rest, "-") {
		return parsedFilename{}, fmt.Errorf("%q is not a valid maven file name: invalid classifier separator", fullFileName)
	}
	return parsedFilename{
		version:    types.ReleaseVersion(versionString),
		classifier: types.Classified(rest[1:]),
		extension:  extension,
	}, nil
}

// parseSnapshotTail parses the "[-classifier]-timestamp[-build]" tail of a
// snapshot filename, trying the timestamp-first strategy and falling back
// to peeling off a build number suffix first. Timestamps are the only
// fixed-width lexical anchor in the grammar, so they are tried first.
func parseSnapshotTail(rest, fullFileName string) (types.Classifier, string, *int, error) {
	if classifier, timestamp, err := parseClassifierAndTimestamp(rest, fullFileName); err == nil {
		return classifier, timestamp, nil, nil
	}

	lastDash := strings.LastIndex(rest, "-")
	if lastDash < 0 {
		return types.Classifier{}, "", nil, fmt.Errorf("snapshot file name does not end in build number or timestamp: %q", fullFileName)
	}

	build, err := strconv.Atoi(rest[lastDash+1:])
	if err != nil || build < 0 {
		return types.Classifier{}, "", nil, fmt.Errorf("snapshot file name does not end in build number or timestamp: %q", fullFileName)
	}

	classifier, timestamp, err := parseClassifierAndTimestamp(rest[:lastDash], fullFileName)
	if err != nil {
		return types.Classifier{}, "", nil, err
	}
	return classifier, timestamp, &build, nil
}

// parseClassifierAndTimestamp treats the trailing 16 characters of rest
// (the leading '-' plus a fixed "YYYYMMDD.HHMMSS" shape) as the timestamp,
// and whatever precedes it as an optional classifier.
func parseClassifierAndTimestamp(rest, fullFileName string) (types.Classifier, string, error) {
	if len(rest) < 16 {
		return types.Classifier{}, "", fmt.Errorf("snapshot without timestamp: %q", fullFileName)
	}

	tail := rest[len(rest)-16:]
	if !timestampSuffixRegex.MatchString(tail) {
		return types.Classifier{}, "", fmt.Errorf("snapshot without timestamp: %q", fullFileName)
	}

	rawClassifier, timestamp := rest[:len(rest)-16], rest[len(rest)-15:]

	if strings.HasPrefix(rawClassifier, "-") {
		return types.Classified(rawClassifier[1:]), timestamp, nil
	}
	if rawClassifier == "" {
		return types.Unclassified(), timestamp, nil
	}
	return types.Classifier{}, "", fmt.Errorf("snapshot without timestamp: %q", fullFileName)
}
