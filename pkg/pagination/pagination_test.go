package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	cases := []struct {
		query       string
		page, limit int
	}{
		{"", 1, 20},
		{"?page=3&limit=10", 3, 10},
		{"?page=0&limit=1000", 1, 100},
		{"?page=abc&limit=-5", 1, 20},
	}
	for _, c := range cases {
		p := FromRequest(httptest.NewRequest("GET", "/x"+c.query, nil))
		assert.Equal(t, c.page, p.Page, c.query)
		assert.Equal(t, c.limit, p.Limit, c.query)
	}
}

func TestNewPage(t *testing.T) {
	p := New([]int{1, 2}, 41, Params{Page: 2, Limit: 20})
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, 20, Params{Page: 2, Limit: 20}.Offset())

	empty := New[string](nil, 0, Params{Page: 1, Limit: 20})
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.Pages)
}
