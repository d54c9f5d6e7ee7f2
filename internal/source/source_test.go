package source_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lbrossard/keeptouch/internal/config"
	"github.com/lbrossard/keeptouch/internal/source"
)

// MockFetcher simulates the network layer for unit tests using `testify/mock`.
type MockFetcher struct {
	mock.Mock
}

// Fetch implements the source.VCardFetcher interface.
func (m *MockFetcher) Fetch(ctx context.Context, url, user, pass string) (io.ReadCloser, error) {
	args := m.Called(ctx, url, user, pass)
	if r := args.Get(0); r != nil {
		return r.(io.ReadCloser), args.Error(1)
	}
	return nil, args.Error(1)
}

const sampleFeed = `BEGIN:VCARD
VERSION:4.0
FN:Ada Lovelace
TEL:+33600000001
BDAY:1985-11-28
X-KEEPTOUCH-YEARMET:2015
END:VCARD
BEGIN:VCARD
VERSION:4.0
FN:No Phone
BDAY:1990-01-01
END:VCARD
BEGIN:VCARD
VERSION:4.0
FN:Lin
TEL:+33600000002
END:VCARD`

func writeFeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.vcf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFetchAll_Local(t *testing.T) {
	src := &source.VCardSource{
		Config: source.Config{
			Mode:      config.SourceModeLocal,
			LocalPath: writeFeed(t, sampleFeed),
		},
	}

	contacts, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, contacts, 2, "the card without TEL is dropped")

	assert.Equal(t, "Ada Lovelace", contacts[0].Name)
	assert.Equal(t, "+33600000001", contacts[0].Phone)
	assert.Equal(t, time.Date(1985, 11, 28, 0, 0, 0, 0, time.UTC), contacts[0].Birthday)
	assert.Equal(t, 2015, contacts[0].YearMet)

	assert.Equal(t, "Lin", contacts[1].Name)
	assert.False(t, contacts[1].HasBirthday())
}

func TestFetchAll_Local_OddExtensionStillDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleFeed), 0o600))

	src := &source.VCardSource{
		Config: source.Config{
			Mode:      config.SourceModeLocal,
			LocalPath: path,
		},
	}

	contacts, err := src.FetchAll(context.Background())
	require.NoError(t, err, "the extension check warns, the decoder decides")
	assert.Len(t, contacts, 2)
}

func TestFetchAll_Local_MissingFile(t *testing.T) {
	src := &source.VCardSource{
		Config: source.Config{
			Mode:      config.SourceModeLocal,
			LocalPath: filepath.Join(t.TempDir(), "missing.vcf"),
		},
	}

	_, err := src.FetchAll(context.Background())
	assert.Error(t, err)
}

func TestFetchAll_Web(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, "https://dav.example.org/contacts", "user", "pass").
		Return(io.NopCloser(strings.NewReader(sampleFeed)), nil)

	src := &source.VCardSource{
		Config: source.Config{
			Mode:    config.SourceModeWeb,
			WebURL:  "https://dav.example.org/contacts",
			WebUser: "user",
			WebPass: "pass",
		},
		Fetcher: fetcher,
	}

	contacts, err := src.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
	fetcher.AssertExpectations(t)
}

func TestFetchAll_Web_FetchError(t *testing.T) {
	fetcher := new(MockFetcher)
	fetcher.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	src := &source.VCardSource{
		Config:  source.Config{Mode: config.SourceModeWeb, WebURL: "https://dav.example.org"},
		Fetcher: fetcher,
	}

	_, err := src.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestFetchAll_UnsupportedMode(t *testing.T) {
	src := &source.VCardSource{Config: source.Config{Mode: "carrier-pigeon"}}
	_, err := src.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestFetchAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &source.VCardSource{
		Config: source.Config{
			Mode:      config.SourceModeLocal,
			LocalPath: writeFeed(t, sampleFeed),
		},
	}

	_, err := src.FetchAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
