package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListingStubRow(t *testing.T) {
	tests := []struct {
		position int
		row      int
	}{
		{0, 1}, {3, 1}, {4, 2}, {7, 2}, {8, 3}, {47, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.row, ListingStub{Position: tt.position}.Row(), "position %d", tt.position)
	}
}

func TestImageDescriptorWidths(t *testing.T) {
	d := ImageDescriptor{Variants: []ImageVariant{
		{Width: "794", URL: "c"},
		{Width: "2x", URL: "d"},
		{Width: "300", URL: "a"},
		{Width: "1140", URL: "e"},
	}}

	assert.Equal(t, []int{300, 794, 1140}, d.Widths())

	url, ok := d.Widest()
	assert.True(t, ok)
	assert.Equal(t, "e", url)

	url, ok = d.Lookup("2x")
	assert.True(t, ok)
	assert.Equal(t, "d", url)

	_, ok = ImageDescriptor{Variants: []ImageVariant{{URL: "src"}}}.Widest()
	assert.False(t, ok)
	assert.True(t, ImageDescriptor{}.Empty())
}

func TestCrawlResultAdd(t *testing.T) {
	r := NewCrawlResult()
	r.Add("robe", nil)
	r.Add("lace", []ListingRecord{{Index: "1.01"}})
	r.Add("robe", []ListingRecord{{Index: "1.01"}, {Index: "2.01"}})

	assert.Equal(t, []string{"robe", "lace"}, r.Keywords)
	assert.Len(t, r.Records["robe"], 2)
	assert.Equal(t, 3, r.Total())
}
