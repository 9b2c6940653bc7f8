package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "halaqa:directory:h-1", Key("directory", "h-1"))
	assert.Equal(t, "halaqa:directory", Key("directory", " ", ""))
	assert.Equal(t, "halaqa", Key())
}
