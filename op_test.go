package meridian

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServiceTag_HTTPService(t *testing.T) {
	cases := []struct {
		tag     ServiceTag
		service string
		ok      bool
	}{
		{ServiceKeyValue, "", false},
		{ServiceQuery, "query", true},
		{ServiceAnalytics, "analytics", true},
		{ServiceAnalyticsPriority, "analytics_priority", true},
		{ServiceSearch, "search", true},
		{ServiceViews, "views", true},
		{ServiceManagement, "management", true},
	}
	for _, tc := range cases {
		svc, ok := tc.tag.httpService()
		assert.Equal(t, tc.ok, ok, "tag=%v", tc.tag)
		assert.Equal(t, tc.service, svc, "tag=%v", tc.tag)
	}
}
