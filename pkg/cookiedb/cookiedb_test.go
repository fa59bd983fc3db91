package cookiedb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func makeCookieDB(t *testing.T, cookies map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.sqlite")

	db, err := sqlx.Connect("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE moz_cookies (host TEXT, name TEXT, value TEXT)`)
	require.NoError(t, err)

	for name, value := range cookies {
		_, err = db.Exec(`INSERT INTO moz_cookies (host, name, value) VALUES (?, ?, ?)`,
			".claude.ai", name, value)
		require.NoError(t, err)
	}
	return path
}

func TestRead(t *testing.T) {
	t.Run("recovers session cookies", func(t *testing.T) {
		path := makeCookieDB(t, map[string]string{
			"sessionKey":    "sk-ant-sid01-abcDEF123",
			"cf_clearance":  "cfvalue.123",
			"lastActiveOrg": "0a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9",
			"unrelated":     "whatever",
		})

		session := Read(path)
		require.NotNil(t, session)
		assert.Equal(t, "sk-ant-sid01-abcDEF123", session.SessionKey)
		assert.Equal(t, "cfvalue.123", session.CFClearance)
		assert.Equal(t, "0a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9", session.OrgID)
		assert.Equal(t, "whatever", session.Cookies["unrelated"], "unknown cookies pass through opaque")
	})

	t.Run("no session key yields nil", func(t *testing.T) {
		path := makeCookieDB(t, map[string]string{"cf_clearance": "x"})
		assert.Nil(t, Read(path))
	})

	t.Run("malformed session key rejected", func(t *testing.T) {
		path := makeCookieDB(t, map[string]string{"sessionKey": "not-a-session-key"})
		assert.Nil(t, Read(path))
	})

	t.Run("missing file yields nil", func(t *testing.T) {
		assert.Nil(t, Read(filepath.Join(t.TempDir(), "nope.sqlite")))
	})

	t.Run("not a database yields nil", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "junk.sqlite")
		require.NoError(t, os.WriteFile(path, []byte("this is not sqlite"), 0o600))
		assert.Nil(t, Read(path))
	})

	t.Run("empty path yields nil", func(t *testing.T) {
		assert.Nil(t, Read(""))
	})
}
