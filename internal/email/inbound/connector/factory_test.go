package connector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultFactoryResolvesBuiltins(t *testing.T) {
	f := DefaultFactory()

	fetcher, err := f.FetcherFor(Account{Type: "IMAPS"})
	require.NoError(t, err)
	require.Equal(t, "imap", fetcher.Name())

	fetcher, err = f.FetcherFor(Account{Type: " pop3 "})
	require.NoError(t, err)
	require.Equal(t, "pop3", fetcher.Name())
}

func TestFactoryUnknownType(t *testing.T) {
	f := DefaultFactory()
	_, err := f.FetcherFor(Account{Type: "graph"})
	require.ErrorContains(t, err, "no connector registered")
}
