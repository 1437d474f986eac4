package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketValid(t *testing.T) {
	for _, b := range []Bucket{BucketNext, BucketPageSelect, BucketLoadMore, BucketScrollDown} {
		assert.True(t, b.Valid(), string(b))
	}
	assert.False(t, Bucket("none").Valid())
	assert.False(t, Bucket("").Valid())
	assert.False(t, Bucket("NEXT").Valid())
}

func TestBranchChoicesAndDefaults(t *testing.T) {
	first, second := BranchStructural.Choices()
	assert.Equal(t, BucketNext, first)
	assert.Equal(t, BucketPageSelect, second)
	assert.Equal(t, BucketNext, BranchStructural.Default())

	first, second = BranchBehavioral.Choices()
	assert.Equal(t, BucketLoadMore, first)
	assert.Equal(t, BucketScrollDown, second)
	assert.Equal(t, BucketScrollDown, BranchBehavioral.Default())
}

func TestHrefIsReal(t *testing.T) {
	assert.True(t, HrefIsReal("/jobs?page=2"))
	assert.True(t, HrefIsReal("https://example.com/jobs"))
	assert.True(t, HrefIsReal("  /p/2  "))

	assert.False(t, HrefIsReal(""))
	assert.False(t, HrefIsReal("#"))
	assert.False(t, HrefIsReal("#results"))
	assert.False(t, HrefIsReal("javascript:void(0)"))
	assert.False(t, HrefIsReal("JavaScript:doPaging(2)"))
}

func TestActionableHref(t *testing.T) {
	assert.True(t, Element{Kind: ElementButton}.ActionableHref())
	assert.True(t, Element{Kind: ElementAnchor, Href: "/p/2"}.ActionableHref())
	assert.False(t, Element{Kind: ElementAnchor, Href: "#"}.ActionableHref())
	assert.False(t, Element{Kind: ElementAnchor}.ActionableHref())
}

func TestErrorMarkersAndDone(t *testing.T) {
	assert.True(t, IsErrorMarker("error: timeout_max_retries"))
	assert.True(t, IsErrorMarker("error"))
	assert.False(t, IsErrorMarker("next"))
	assert.False(t, IsErrorMarker(""))

	assert.True(t, ResultRow{Flow: "next"}.Done())
	assert.False(t, ResultRow{Flow: ""}.Done())
	assert.False(t, ResultRow{Flow: "error: page_load_failed"}.Done())
}
