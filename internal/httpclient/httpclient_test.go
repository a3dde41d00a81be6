package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	c := New(Options{ConnsPerHost: 16, Timeout: time.Minute})
	assert.Equal(t, time.Minute, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 16, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 64, tr.MaxIdleConns)
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, 180*time.Second, c.Timeout)
	assert.Equal(t, 8, c.Transport.(*http.Transport).MaxIdleConnsPerHost)
}
