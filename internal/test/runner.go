// Package itst has helpers shared by the package tests.
package itst

import (
	"strings"
	"testing"
)

// RunTest limits a table test to the named cases. Names use spaces where
// the sub test name has underscores, and may carry a ".Suffix".
func RunTest(testNames ...string) func(*testing.T) {
	return func(t *testing.T) {
		t.Helper()

		have, suffix := subTest(t)
		for _, testName := range testNames {
			if testName == "" || testName == "*" || have == want(testName, suffix) {
				return
			}
		}
		t.SkipNow()
	}
}

// SkipTest skips the named cases of a table test.
func SkipTest(testNames ...string) func(*testing.T) {
	return func(t *testing.T) {
		t.Helper()

		have, suffix := subTest(t)
		for _, testName := range testNames {
			if have == want(testName, suffix) {
				t.SkipNow()
			}
		}
	}
}

var subTestName = strings.NewReplacer(" ", "_")

func subTest(t *testing.T) (have, suffix string) {
	parts := strings.SplitN(t.Name(), "/", 2)
	if len(parts) < 2 {
		return t.Name(), ""
	}
	have = parts[1]
	if i := strings.LastIndex(have, "."); i >= 0 {
		suffix = have[i+1:]
	}
	return have, suffix
}

func want(testName, suffix string) string {
	w := subTestName.Replace(testName)
	if !strings.Contains(w, ".") {
		w += "." + suffix
	}
	return w
}
