package plan

import (
	"strings"

	"golang.org/x/mod/semver"
)

// CompareVersions compares two dotted protocol version strings the way the
// analysis server reports them ("5.9.0", "7.21.5"). The result follows
// semver.Compare. Build metadata and pre-release suffixes are ignored.
func CompareVersions(a, b string) int {
	return semver.Compare(canonVersion(a), canonVersion(b))
}

func canonVersion(v string) string {
	v = strings.TrimSpace(strings.TrimPrefix(v, "v"))
	for i, r := range v {
		if (r < '0' || r > '9') && r != '.' {
			v = v[:i]
			break
		}
	}
	return "v" + strings.TrimSuffix(v, ".")
}
