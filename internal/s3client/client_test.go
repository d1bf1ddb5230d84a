package s3client

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := TestClient(t, "reports")
	ctx := context.Background()

	require.NoError(t, c.PutObject(ctx, "latest/index.html", []byte("<html></html>"), "text/html"))
	got, ok := ReadObject(t, c, "latest/index.html")
	require.True(t, ok)
	assert.Equal(t, "<html></html>", string(got))
	assert.Equal(t, "text/html", ObjectContentType(t, c, "latest/index.html"))
}

func TestReadObject_Missing(t *testing.T) {
	c := TestClient(t, "reports")
	_, ok := ReadObject(t, c, "nope")
	assert.False(t, ok)
}

func TestUploadFile_DetectsContentType(t *testing.T) {
	c := TestClient(t, "reports")
	ctx := context.Background()
	local := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(local, []byte{0x89, 'P', 'N', 'G'}, 0o644))

	n, err := c.UploadFile(ctx, "latest/data/shot.png", local)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.Equal(t, "image/png", ObjectContentType(t, c, "latest/data/shot.png"))

	_, err = c.UploadFile(ctx, "x", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestListAndDelete(t *testing.T) {
	c := TestClient(t, "reports")
	ctx := context.Background()
	for _, k := range []string{"latest/a.html", "latest/data/b.png", "other/c.txt"} {
		require.NoError(t, c.PutObject(ctx, k, []byte(k), "text/plain"))
	}

	keys, err := c.ListKeys(ctx, "latest/")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"latest/a.html", "latest/data/b.png"}, keys)

	require.NoError(t, c.DeleteObject(ctx, "latest/a.html"))
	keys, err = c.ListKeys(ctx, "latest/")
	require.NoError(t, err)
	assert.Equal(t, []string{"latest/data/b.png"}, keys)
}

func TestGetPublicURL(t *testing.T) {
	c := NewFromS3Client(nil, "reports", "https://reports.s3.us-west-1.amazonaws.com/")
	assert.Equal(t, "https://reports.s3.us-west-1.amazonaws.com/latest/index.html", c.GetPublicURL("/latest/index.html"))
	assert.Equal(t, "reports", c.BucketName())
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"index.html":           "text/html",
		"data/trace.ZIP":       "application/zip",
		`data\shot.jpeg`:       "image/jpeg",
		"assets/app.js":        "application/javascript",
		"noext":                "application/octet-stream",
		"weird.unknownext1234": "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}
