package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionalString(t *testing.T) {
	type patch struct {
		ParentID OptionalString `json:"parent_id"`
	}

	tests := []struct {
		name    string
		body    string
		present bool
		value   *string
		target  *string
	}{
		{"absent", `{}`, false, nil, nil},
		{"null", `{"parent_id": null}`, true, nil, nil},
		{"value", `{"parent_id": "abc"}`, true, strPtr("abc"), strPtr("abc")},
		{"empty", `{"parent_id": ""}`, true, strPtr(""), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p patch
			require.NoError(t, json.Unmarshal([]byte(tt.body), &p))
			assert.Equal(t, tt.present, p.ParentID.Present)
			assert.Equal(t, tt.value, p.ParentID.Value)
			assert.Equal(t, tt.target, p.ParentID.Target())
		})
	}

	var p patch
	assert.Error(t, json.Unmarshal([]byte(`{"parent_id": 42}`), &p))
}

func strPtr(s string) *string {
	return &s
}

func TestRespondErrorWithExtras(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondErrorWithExtras(rec, http.StatusInsufficientStorage, "storage quota exceeded", map[string]interface{}{
		"kind": "quota_exceeded",
	})

	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "quota_exceeded", body["kind"])
	assert.Equal(t, "storage quota exceeded", body["detail"])
	assert.Equal(t, float64(507), body["status"])
	assert.Contains(t, body["type"], "rfc4918")
}

func TestParseJSON_RejectsUnknownFields(t *testing.T) {
	var dest struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Docs","color":"red"}`))
	err := ParseJSON(httptest.NewRecorder(), r, &dest)
	assert.Error(t, err)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Docs"}`))
	require.NoError(t, ParseJSON(httptest.NewRecorder(), r, &dest))
	assert.Equal(t, "Docs", dest.Name)
}

func TestQueryHelpers(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?limit=5&starred=true&bad=x&parent_id=p1", nil)

	n, err := QueryInt(r, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = QueryInt(r, "missing", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	_, err = QueryInt(r, "bad", 0)
	assert.Error(t, err)

	b, err := QueryBool(r, "starred")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = QueryBool(r, "bad")
	assert.Error(t, err)

	assert.Equal(t, "p1", *QueryOptional(r, "parent_id"))
	assert.Nil(t, QueryOptional(r, "missing"))
}
