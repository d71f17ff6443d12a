package dataset

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/dataframe"
)

const sample = "name,age\nalice,30\nbob,25\n"

func TestFromBytes(t *testing.T) {
	d, err := FromBytes("people.csv", []byte(sample), "")
	require.NoError(t, err)
	assert.Equal(t, "people.csv", d.Info.Filename)
	assert.Equal(t, 2, d.Info.Rows)
	assert.Equal(t, 2, d.Info.Columns)
	assert.Equal(t, []string{"name", "age"}, d.Info.ColumnsList)
	assert.Equal(t, int64(len(sample)), d.Info.SizeBytes)
	assert.False(t, d.Info.IsLarge())

	stored := d.StoredData()
	require.NotNil(t, stored)
	assert.Equal(t, sample, stored.CSVString)
	assert.Equal(t, "csv_data", stored.FileType)
}

func TestFromBytesRejectsEmpty(t *testing.T) {
	_, err := FromBytes("empty.csv", []byte("   "), "")
	assert.True(t, errors.Is(err, dataframe.ErrCSVParse))

	_, err = FromBytes("header.csv", []byte("a,b\n"), "")
	assert.True(t, errors.Is(err, dataframe.ErrCSVParse))
}

func TestLargeFileRule(t *testing.T) {
	cases := []struct {
		info  Info
		large bool
	}{
		{Info{SizeMB: 9.99, Rows: 1000}, false},
		{Info{SizeMB: 10, Rows: 10}, true},
		{Info{SizeMB: 1, Rows: 1001}, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.large, tc.info.IsLarge(), "%+v", tc.info)
	}

	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 1001; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	d, err := FromBytes("big.csv", []byte(b.String()), "")
	require.NoError(t, err)
	assert.True(t, d.Info.IsLarge())
	assert.Nil(t, d.StoredData())
}

func TestValidateURL(t *testing.T) {
	for _, raw := range []string{"example.com/data.csv", "ftp://example.com/a.csv", "http://", "://x"} {
		_, err := ValidateURL(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
	u, err := ValidateURL("https://example.com/data.csv")
	require.NoError(t, err)
	assert.Equal(t, "example.com", u.Host)
}

func TestLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "CSV-Analyzer")
		if r.URL.Path != "/data/people.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sample))
	}))
	defer srv.Close()

	d, err := Load(context.Background(), srv.URL+"/data/people.csv")
	require.NoError(t, err)
	assert.Equal(t, "people.csv", d.Info.Filename)
	assert.Equal(t, srv.URL+"/data/people.csv", d.Info.URL)

	_, err = Load(context.Background(), srv.URL+"/missing.csv")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "local.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	d, err = Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "local.csv", d.Info.Filename)
	assert.Empty(t, d.Info.URL)
}

func TestEnhancedQuery(t *testing.T) {
	q := EnhancedQuery("What is the average age?", nil)
	assert.Contains(t, q, "PREVIOUS CONVERSATION:\nNo previous conversation.")
	assert.Contains(t, q, "CURRENT QUESTION:\nWhat is the average age?")
	assert.Contains(t, q, "DATA CONTEXT:")
	assert.Contains(t, q, "PLOTTING CAPABILITIES:")

	var history []Turn
	for i := 0; i < 25; i++ {
		history = append(history, Turn{Role: "user", Content: fmt.Sprintf("q%d", i)})
	}
	history = append(history, Turn{Role: "system", Content: "ignored"})
	q = EnhancedQuery("next", history)
	assert.NotContains(t, q, "User: q5\n")
	assert.Contains(t, q, "User: q6\n")
	assert.Contains(t, q, "User: q24")
	assert.NotContains(t, q, "ignored")
}
