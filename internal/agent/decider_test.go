package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPDeciderFinal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req decideRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Observations, 1)

		json.NewEncoder(w).Encode(decideResponse{Type: "final", Text: "the answer"})
	}))
	defer srv.Close()

	d := NewHTTPDecider(srv.URL, time.Second)
	decision, err := d.Decide(context.Background(), nil, []Observation{{Kind: ObservationUser, Content: "q"}}, nil)
	require.NoError(t, err)

	final, ok := decision.(FinalText)
	require.True(t, ok)
	assert.Equal(t, "the answer", final.Text)
}

func TestHTTPDeciderToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(decideResponse{
			Type:   "tool_use",
			ToolID: "t1",
			Input:  map[string]any{"query": "go"},
		})
	}))
	defer srv.Close()

	d := NewHTTPDecider(srv.URL, time.Second)
	decision, err := d.Decide(context.Background(), nil, nil, nil)
	require.NoError(t, err)

	use, ok := decision.(ToolUse)
	require.True(t, ok)
	assert.Equal(t, "t1", use.ToolID)
	assert.Equal(t, "go", use.Input["query"])
}

func TestHTTPDeciderRejectsMalformedResponses(t *testing.T) {
	cases := map[string]decideResponse{
		"unknown type":        {Type: "shrug"},
		"tool_use without id": {Type: "tool_use"},
	}
	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(resp)
			}))
			defer srv.Close()

			d := NewHTTPDecider(srv.URL, time.Second)
			_, err := d.Decide(context.Background(), nil, nil, nil)
			assert.Error(t, err)
		})
	}
}

func TestHTTPDeciderNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewHTTPDecider(srv.URL, time.Second)
	_, err := d.Decide(context.Background(), nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
