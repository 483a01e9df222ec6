package capability_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/taskory"
	"github.com/m-mizutani/taskory/capability"
)

func TestWebFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page body"))
	}))
	defer srv.Close()

	w := capability.NewWeb()
	out, err := w.Invoke(t.Context(), "web", map[string]any{
		"description": "Fetch " + srv.URL + " and summarize it",
	})
	gt.NoError(t, err)
	gt.Equal(t, out["content"], any("page body"))
}

func TestWebBodySizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	w := capability.NewWeb(capability.WithMaxBodySize(4))
	out, err := w.Invoke(t.Context(), "web", map[string]any{
		"description": "Fetch " + srv.URL,
	})
	gt.NoError(t, err)
	gt.Equal(t, out["content"], any("0123"))
}

func TestWebNoURL(t *testing.T) {
	w := capability.NewWeb()
	_, err := w.Invoke(t.Context(), "web", map[string]any{
		"description": "Fetch the status page",
	})
	gt.True(t, errors.Is(err, taskory.ErrInvalidParameter))
	gt.True(t, goerr.HasTag(err, taskory.TagValidation))
}

func TestWebStatusHandling(t *testing.T) {
	t.Run("client error is permanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		w := capability.NewWeb()
		_, err := w.Invoke(t.Context(), "web", map[string]any{"description": "Fetch " + srv.URL})
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, taskory.TagValidation))
	})

	t.Run("server error is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		w := capability.NewWeb()
		_, err := w.Invoke(t.Context(), "web", map[string]any{"description": "Fetch " + srv.URL})
		gt.Error(t, err)
		gt.B(t, goerr.HasTag(err, taskory.TagValidation)).False()
	})
}
