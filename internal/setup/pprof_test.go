package setup

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestStartPprofServer(t *testing.T) {
	t.Parallel()

	srv, err := startPprofServer(0, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { _ = srv.srv.Shutdown(t.Context()) }()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "http://"+srv.addr()+"/debug/pprof/", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
