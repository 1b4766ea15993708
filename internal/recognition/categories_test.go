// File: internal/recognition/categories_test.go
package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalCategory(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"crosswalks", "crosswalk", true},
		{"Crosswalk", "crosswalk", true},
		{"a fire hydrant", "fire hydrant", true},
		{"BICYCLES", "bicycle", true},
		{"buses", "bus", true},
		{"motorbikes", "motorcycle", true},
		{"stop lights", "traffic light", true},
		{"palm trees", "palm tree", true},
		{"taxis", "car", true},
		{"flibbertigibbets", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := CanonicalCategory(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFindCategory(t *testing.T) {
	cat, ok := FindCategory("Select all images with crosswalks")
	assert.True(t, ok)
	assert.Equal(t, "crosswalk", cat)

	cat, ok = FindCategory("Click each image containing a traffic light. Click verify once there are none left.")
	assert.True(t, ok)
	assert.Equal(t, "traffic light", cat)

	_, ok = FindCategory("Please prove you enjoy paperwork")
	assert.False(t, ok)
}

func TestFindCategoryPrefersLongestPhrase(t *testing.T) {
	// "fire hydrant" must win over the bare "hydrant" synonym.
	cat, ok := FindCategory("select all squares with a fire hydrant")
	assert.True(t, ok)
	assert.Equal(t, "fire hydrant", cat)
}

func TestHeuristicCategory(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Select all images with gondolas", "gondola", true},
		{"Select all images with gondolas until there are none left", "gondola", true},
		{"Click each square containing windmills", "windmill", true},
		{"Select all pictures of lighthouses", "lighthouse", true},
		{"Click verify once there are none left", "", false},
		{"Select them below", "", false},
		{"Please prove you enjoy paperwork", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := HeuristicCategory(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestKnownCategoriesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range KnownCategories() {
		assert.False(t, seen[c], "duplicate category %q", c)
		seen[c] = true
	}
	assert.NotEmpty(t, seen)
}
