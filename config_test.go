package socketio_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	sio "github.com/socketio/socket.io-sub001"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigOptions(t *testing.T) {
	var opts = []func(*testing.T){}

	type (
		testFn          func(*testing.T)
		testParamsInFn  func(sio.Config, error) testFn
		testParamsOutFn func(*testing.T) (sio.Config, error)
	)

	runWithOptions := map[string]testParamsInFn{
		"Options": func(config sio.Config, want error) testFn {
			return func(t *testing.T) {
				for _, opt := range opts {
					opt(t)
				}

				options, err := config.Options()
				if want != nil {
					assert.ErrorIs(t, err, want)
					assert.Nil(t, options)
					return
				}
				require.NoError(t, err)

				s := sio.NewServer(options...)
				defer s.Close()
				assert.Equal(t, config.Path, s.Path())
			}
		},
	}

	spec := map[string]testParamsOutFn{
		"Defaults": func(*testing.T) (sio.Config, error) {
			return sio.DefaultConfig(), nil
		},
		"Msgpack": func(*testing.T) (sio.Config, error) {
			config := sio.DefaultConfig()
			config.Parser = "msgpack"
			config.Path = "/live/"
			return config, nil
		},
		"Unknown Parser": func(*testing.T) (sio.Config, error) {
			config := sio.DefaultConfig()
			config.Parser = "xml"
			return config, sio.ErrUnknownParser
		},
		"Unknown Transport": func(*testing.T) (sio.Config, error) {
			config := sio.DefaultConfig()
			config.Transports = []string{"polling", "flashsocket"}
			return config, sio.ErrUnknownTransport
		},
	}

	for name, testParams := range spec {
		for suffix, run := range runWithOptions {
			t.Run(fmt.Sprintf("%s.%s", name, suffix), run(testParams(t)))
		}
	}
}

func TestConfigPath(t *testing.T) {
	config := sio.DefaultConfig()
	config.Path = "/live/"
	options, err := config.Options()
	require.NoError(t, err)

	s := sio.NewServer(options...)
	defer s.Close()

	for path, code := range map[string]int{
		"/live/?EIO=4&transport=polling":      http.StatusOK,
		"/socket.io/?EIO=4&transport=polling": http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, rec.Code, path)
	}
}
