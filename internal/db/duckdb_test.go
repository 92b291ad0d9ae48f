package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Extensions(t *testing.T) {
	conn, err := Open(Config{Extensions: []string{"json", "json; DROP TABLE blocks", ""}})
	require.NoError(t, err, "bad extensions never fail the open")
	t.Cleanup(func() { conn.Close() })

	var valid bool
	require.NoError(t, conn.QueryRow(`SELECT json_valid('{"a":1}')`).Scan(&valid))
	assert.True(t, valid)
}

func TestLoadExtensions(t *testing.T) {
	conn, err := Open(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	assert.Equal(t, []string{"json"}, loadExtensions(conn, []string{"json", "Bad-Name", "x;y"}))
	assert.Empty(t, loadExtensions(conn, nil))
}
