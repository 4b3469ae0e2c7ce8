package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticAliasByPath(t *testing.T) {
	t.Parallel()

	src := map[string]map[string]string{
		"/node/5": {"en": "/about-us", "fr": "/a-propos", "de": ""},
	}
	s := NewStatic(src)
	src["/node/5"]["en"] = "/mutated"

	assert.Equal(t, "/about-us", s.AliasByPath("/node/5", "en"))
	assert.Equal(t, "/a-propos", s.AliasByPath("/node/5", "fr"))
	assert.Equal(t, "/node/5", s.AliasByPath("/node/5", "de"))
	assert.Equal(t, "/node/5", s.AliasByPath("/node/5", "es"))
	assert.Equal(t, "/node/6", s.AliasByPath("/node/6", "en"))
}
