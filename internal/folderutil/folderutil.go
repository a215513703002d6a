// Package folderutil enumerates and filters an account's IMAP folders.
package folderutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/hkdb/nolas-go/internal/imapclient"
	"github.com/hkdb/nolas-go/internal/logging"
)

// ignoreSet holds the case-folded folder names that are never listened on,
// matching the ignore rule named in the specification.
var ignoreSet = map[string]bool{
	"drafts":  true,
	"junk":    true,
	"archive": true,
	"trash":   true,
	"spam":    true,
}

// maxFolders caps the number of folders returned per account.
const maxFolders = 15

// fallbackFolders is returned whenever ListFolders cannot complete.
var fallbackFolders = []string{"INBOX", "Sent"}

// ListFolders opens an authenticated connection's LIST "" "*" response and
// returns the account's listenable folders, applying the ignore set and the
// per-account cap. Any error during listing falls back to a conservative
// default rather than propagating, since folder discovery failing should
// never block ingestion of the folders we already know about.
func ListFolders(ctx context.Context, client *imapclient.Client) []string {
	log := logging.WithComponent("folderutil")

	entries, err := client.ListMailboxes()
	if err != nil {
		log.Warn().Err(err).Msg("failed to list folders, using fallback")
		return fallbackFolders
	}

	var folders []string
	for _, entry := range entries {
		name := entry.Mailbox
		if name == "" {
			continue
		}
		if ignoreSet[strings.ToLower(name)] {
			continue
		}
		folders = append(folders, name)
	}

	if len(folders) == 0 {
		return fallbackFolders
	}

	if len(folders) > maxFolders {
		log.Warn().
			Int("found", len(folders)).
			Int("cap", maxFolders).
			Msg("truncating folder list to cap")
		folders = folders[:maxFolders]
	}

	return folders
}

// ParseListLine parses a single raw LIST response line of the grammar
// `(flags) "<delim>" <name>`, used when a caller has already captured a raw
// text line rather than a structured entry (e.g. diagnostic tooling). Lines
// that are server status markers ("LIST completed", "OK") are rejected.
func ParseListLine(line string) (name string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	upper := strings.ToUpper(trimmed)
	if strings.Contains(upper, "LIST COMPLETED") || strings.HasPrefix(upper, "OK") {
		return "", false
	}

	// Find the closing paren of the flags group, then the quoted delimiter,
	// then the remainder is the mailbox name (quoted or bare).
	closeParen := strings.Index(trimmed, ")")
	if !strings.HasPrefix(trimmed, "(") || closeParen < 0 {
		return "", false
	}
	rest := strings.TrimSpace(trimmed[closeParen+1:])

	parts := splitQuotedAware(rest)
	if len(parts) < 2 {
		return "", false
	}
	name = unquote(parts[len(parts)-1])
	if name == "" {
		return "", false
	}
	return name, true
}

func splitQuotedAware(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// IsIgnored reports whether a folder name falls in the ignore set.
func IsIgnored(name string) bool {
	return ignoreSet[strings.ToLower(name)]
}

// Validate returns an error if folders is empty, used by callers that must
// not proceed with zero listenable folders.
func Validate(folders []string) error {
	if len(folders) == 0 {
		return fmt.Errorf("folderutil: no listenable folders")
	}
	return nil
}
