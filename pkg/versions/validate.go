package versions

import (
	"errors"
	"regexp"
)

var (
	// versionRegex accepts the subset of PEP 440 that package versions in a
	// recipe repository are allowed to use: release segments plus optional
	// pre/post/dev tags. Local version labels and epochs are rejected.
	versionRegex = func() *regexp.Regexp {
		re := regexp.MustCompile(`^([0-9]+)(\.[0-9]+)*((a|b|rc)[0-9]+)?(\.post[0-9]+)?(\.dev[0-9]+)?$`)
		re.Longest()
		return re
	}()

	// fullVersionRegex additionally requires the build-string suffix that a
	// complete package identifier carries ("1.2.0-py_0", "1.2.0-3").
	fullVersionRegex = func() *regexp.Regexp {
		re := regexp.MustCompile(`^([0-9]+)(\.[0-9]+)*((a|b|rc)[0-9]+)?(\.post[0-9]+)?(\.dev[0-9]+)?-(py_)?[0-9]+$`)
		re.Longest()
		return re
	}()
)

var (
	// ErrInvalidVersion is returned when a version string doesn't meet the
	// requirements of a recipe package version.
	ErrInvalidVersion = errors.New("not a valid package version")

	// ErrInvalidFullVersion is returned when a version string doesn't meet
	// the requirements of a full package identifier version (which should
	// include the build-string suffix).
	ErrInvalidFullVersion = errors.New("not a valid full package version (with build string)")
)

// ValidateWithoutBuildString checks if the given package version, which is
// expected NOT to include the build-string component, is an acceptable
// version. It returns an error if not.
func ValidateWithoutBuildString(v string) error {
	if !versionRegex.MatchString(v) {
		return ErrInvalidVersion
	}
	return nil
}

// ValidateWithBuildString checks if the given package version, which is
// expected to include the build-string component, is an acceptable full
// version. It returns an error if not.
func ValidateWithBuildString(v string) error {
	if !fullVersionRegex.MatchString(v) {
		return ErrInvalidFullVersion
	}
	return nil
}
