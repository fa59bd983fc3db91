// Package cookiedb is the best-effort legacy credential source: a plaintext
// Firefox-style cookies.sqlite database. It recovers the claude.ai session
// cookies needed by the cookie-based usage fallback. Any failure yields an
// empty result, never an error surfaced to the user.
package cookiedb

import (
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Session is the cookie material recovered for claude.ai.
type Session struct {
	SessionKey  string
	CFClearance string
	OrgID       string
	Cookies     map[string]string
}

// Bounded patterns for the three cookies we interpret; everything else
// passes through the cookie bag opaque.
var (
	sessionKeyRe  = regexp.MustCompile(`^sk-ant-[A-Za-z0-9_+/=.-]{1,400}$`)
	cfClearanceRe = regexp.MustCompile(`^[A-Za-z0-9_+/=.-]{1,600}$`)
	orgIDRe       = regexp.MustCompile(`^[a-f0-9-]{1,64}$`)
)

type cookieRow struct {
	Name  string `db:"name"`
	Value string `db:"value"`
}

// Read extracts the claude.ai session from a plaintext cookie database.
// Returns nil on any error (missing file, encrypted values, schema drift).
func Read(path string) *Session {
	if path == "" {
		return nil
	}

	db, err := sqlx.Connect("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil
	}
	defer db.Close()

	var rows []cookieRow
	err = db.Select(&rows,
		`SELECT name, value FROM moz_cookies WHERE host LIKE '%claude.ai'`)
	if err != nil || len(rows) == 0 {
		return nil
	}

	session := &Session{Cookies: make(map[string]string, len(rows))}
	for _, row := range rows {
		session.Cookies[row.Name] = row.Value
		switch row.Name {
		case "sessionKey":
			if sessionKeyRe.MatchString(row.Value) {
				session.SessionKey = row.Value
			}
		case "cf_clearance":
			if cfClearanceRe.MatchString(row.Value) {
				session.CFClearance = row.Value
			}
		case "lastActiveOrg":
			if orgIDRe.MatchString(row.Value) {
				session.OrgID = row.Value
			}
		}
	}

	if session.SessionKey == "" {
		return nil
	}
	return session
}
