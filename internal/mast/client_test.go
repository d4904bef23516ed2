package mast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"ticguide/internal/components/telemetry"
	"ticguide/internal/observation"
	"time"

	"github.com/stretchr/testify/require"
)

const indexPage = `<html><body>
<h2>Light curves</h2>
<a href="/scripts/tesscurl_sector_1_lc.sh">Sector 1</a>
<a href="/scripts/tesscurl_sector_27_fast-lc.sh">Sector 27 (fast)</a>
<a href="/scripts/tesscurl_sector_1_ffic.sh">Sector 1 FFIs</a>
<a href="/scripts/tesscurl_sector_1_tp.sh">Sector 1 target pixels</a>
</body></html>`

const sector1 = `#!/bin/sh
curl -C - -L -o tess2018206045859-s0001-0000000008195886-0120-s_lc.fits https://mast.stsci.edu/api/v0.1/Download/file/?uri=mast:TESS/product/tess2018206045859-s0001-0000000008195886-0120-s_lc.fits
curl -C - -L -o tess2018206045859-s0001-0000000025155310-0120-s_lc.fits https://mast.stsci.edu/api/v0.1/Download/file/?uri=mast:TESS/product/tess2018206045859-s0001-0000000025155310-0120-s_lc.fits

`

func newTestServer(t testing.TB) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, indexPage)
	})
	mux.HandleFunc("/scripts/tesscurl_sector_1_lc.sh", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sector1)
	})
	mux.HandleFunc("/scripts/broken_lc.sh", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#!/bin/sh\nnot a curl line\n")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestClient(t testing.TB, indexURL string) Client {
	client, err := NewClient(ClientOptions{
		IndexURL:          indexURL,
		Timeout:           5 * time.Second,
		RequestsPerSecond: -1,
	}, &telemetry.Recorder{})
	require.NoError(t, err)
	return client
}

func TestListManifests(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server.URL+"/index.html")

	resources, err := client.ListManifests(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Resource{
		{Name: "Sector 1", URL: server.URL + "/scripts/tesscurl_sector_1_lc.sh"},
		{Name: "Sector 27 (fast)", URL: server.URL + "/scripts/tesscurl_sector_27_fast-lc.sh"},
	}, resources)
}

func TestListManifestsUnreachable(t *testing.T) {
	server := newTestServer(t)

	client := newTestClient(t, server.URL+"/missing.html")
	_, err := client.ListManifests(context.Background())
	require.True(t, errors.Is(err, ErrCatalogUnreachable), err)

	server.Close()
	client = newTestClient(t, server.URL+"/index.html")
	_, err = client.ListManifests(context.Background())
	require.True(t, errors.Is(err, ErrCatalogUnreachable), err)
}

func TestFetchManifest(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server.URL+"/index.html")

	manifest, err := client.FetchManifest(context.Background(), Resource{
		URL: server.URL + "/scripts/tesscurl_sector_1_lc.sh",
	})
	require.NoError(t, err)
	require.Equal(t, []observation.TargetID{8195886, 25155310}, manifest.TargetIDs())
	require.True(t, strings.HasPrefix(manifest.Entries[0].Line, "curl -C - -L -o tess2018206045859-s0001-0000000008195886"))

	_, err = client.FetchManifest(context.Background(), Resource{URL: server.URL + "/scripts/broken_lc.sh"})
	require.True(t, errors.Is(err, ErrMalformedManifest), err)

	_, err = client.FetchManifest(context.Background(), Resource{URL: server.URL + "/scripts/gone_lc.sh"})
	require.Error(t, err)
}

func TestParseManifest(t *testing.T) {
	table := []struct {
		name     string
		input    string
		expected []observation.TargetID
		fails    bool
	}{
		{
			name:     "comments and blanks",
			input:    "#!/bin/sh\n\n# a comment\n   \n",
			expected: nil,
		},
		{
			name:     "crlf",
			input:    "curl -C - -L -o tess2019-s0014-0000000000000042-0150-s_lc.fits https://x\r\n",
			expected: []observation.TargetID{42},
		},
		{
			name:  "too few fields",
			input: "curl -o file.fits\n",
			fails: true,
		},
		{
			name:  "no tic in filename",
			input: "curl -C - -L -o tessfile.fits https://x\n",
			fails: true,
		},
		{
			name:  "zero tic",
			input: "curl -C - -L -o tess2019-s0014-0000000000000000-0150-s_lc.fits https://x\n",
			fails: true,
		},
	}

	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			entries, err := ParseManifest(strings.NewReader(row.input))
			if row.fails {
				require.True(t, errors.Is(err, ErrMalformedManifest), err)
				return
			}
			require.NoError(t, err)
			require.ElementsMatch(t, row.expected, Manifest{Entries: entries}.TargetIDs())
		})
	}
}
