package visitors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"sitetrack/internal/visitors"
)

func TestAlias(t *testing.T) {
	t.Run("same id gives the same alias", func(t *testing.T) {
		assert.Equal(t, visitors.Alias("vis_1719820800000_ab12cd34"), visitors.Alias("vis_1719820800000_ab12cd34"))
	})

	t.Run("ids spread across many aliases", func(t *testing.T) {
		seen := map[string]bool{}
		for i := 0; i < 50; i++ {
			seen[visitors.Alias(fmt.Sprintf("vis_%d", i))] = true
		}
		assert.Greater(t, len(seen), 10)
	})

	t.Run("format is two capitalised words", func(t *testing.T) {
		for _, id := range []string{"", "short", "vis_1_x", "special!@#$%^&*()chars"} {
			assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, visitors.Alias(id), "id %q", id)
		}
	})
}
