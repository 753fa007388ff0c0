package loader

import (
	"sort"
	"strconv"
	"strings"
)

// compareVersions orders dotted versions numerically where both parts are
// numbers ("1.8.8" < "1.20.1") and lexically otherwise.
func compareVersions(a, b string) int {
	pa := strings.FieldsFunc(a, isVersionSep)
	pb := strings.FieldsFunc(b, isVersionSep)

	for k := 0; k < len(pa) || k < len(pb); k++ {
		var p1, p2 string
		if k < len(pa) {
			p1 = pa[k]
		}
		if k < len(pb) {
			p2 = pb[k]
		}
		if p1 == p2 {
			continue
		}

		n1, err1 := strconv.Atoi(p1)
		n2, err2 := strconv.Atoi(p2)
		if err1 == nil && err2 == nil {
			if n1 < n2 {
				return -1
			}
			return 1
		}
		if p1 < p2 {
			return -1
		}
		return 1
	}
	return 0
}

func isVersionSep(r rune) bool {
	return r == '.' || r == '-' || r == '_'
}

// SortVersions sorts in place, newest first.
func SortVersions(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})
}
