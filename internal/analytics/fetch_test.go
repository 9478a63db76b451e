package analytics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte("date,accuracy\n2025-03-01,0.5\n"))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(50 * time.Millisecond)

	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Contains(t, string(body), "2025-03-01")

	_, err = f.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")

	_, err = f.Fetch(context.Background(), srv.URL+"/slow")
	assert.Error(t, err)
}

func TestFetcher_RejectsOversizedSheet(t *testing.T) {
	// rows dated in order, the newest one last
	var sheet strings.Builder
	sheet.WriteString("date,accuracy\n")
	for d := time.Date(2007, 1, 1, 0, 0, 0, 0, time.UTC); d.Year() == 2007; d = d.AddDate(0, 0, 1) {
		fmt.Fprintf(&sheet, "%s,0.5\n", d.Format(DateLayout))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sheet.String()))
	}))
	defer srv.Close()

	f := NewFetcher(time.Second)
	f.limit = int64(sheet.Len() - 1)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrSheetTooLarge)

	f.limit = int64(sheet.Len())
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	rows, err := ParseCSV(bytes.NewReader(body), ParseOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "2007-12-31", rows[len(rows)-1].Date.Format(DateLayout))
}
