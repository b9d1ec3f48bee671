package recordstore

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"aio-download-engine/internal/record"
)

// cookiePair is a single parsed name=value token from a raw Cookie header.
type cookiePair struct {
	Name  string
	Value string
}

// netscapeHeader is the mandatory comment line yt-dlp and curl expect at
// the top of a Netscape-format cookie jar.
const netscapeHeader = "# Netscape HTTP Cookie File"

// netscapeMaxExpiry is the fixed "never expires" sentinel used for every
// emitted cookie, matching the fixed-width record layout the extractor
// expects rather than deriving a real expiry from the source.
const netscapeMaxExpiry = "2147483647"

// WriteCookieFile renders a Record's raw cookie header string out to a
// Netscape-format cookie file the extractor subprocess can be pointed at
// via --cookies. It returns ok=false when the record carries no cookies.
func (s *Store) WriteCookieFile(r *record.Record) (path string, ok bool, err error) {
	l := s.lockFor(r.ID)
	l.Lock()
	defer l.Unlock()
	return s.writeCookieFileLocked(r)
}

func (s *Store) writeCookieFileLocked(r *record.Record) (path string, ok bool, err error) {
	path, ok = r.CookieFilePath(s.dataDir)
	if !ok {
		return "", false, nil
	}

	var sb strings.Builder
	sb.WriteString(netscapeHeader)
	sb.WriteString("\n\n")
	for _, c := range parseCookieString(r.CookieString) {
		fmt.Fprintf(&sb, "\tFALSE\t/\tFALSE\t%s\t%s\t%s\n", netscapeMaxExpiry, c.Name, c.Value)
	}

	if err := writeAtomic(path, []byte(sb.String())); err != nil {
		return "", false, fmt.Errorf("write cookie file: %w", err)
	}
	return path, true, nil
}

// parseCookieString turns a raw "a=1; b=2; malformed; c=3" Cookie header
// value into individual name=value pairs. Unlike net/http's cookie
// tokenizer — which treats a bare token with no "=" as a valid cookie
// with an empty value — a token must contain exactly one "=" to produce
// a record; anything else (no "=", or more than one) is discarded.
func parseCookieString(raw string) []cookiePair {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []cookiePair
	for _, tok := range strings.Split(raw, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		parts := strings.Split(tok, "=")
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if name == "" {
			continue
		}
		out = append(out, cookiePair{Name: name, Value: value})
	}
	return out
}

// ReadCookieFile parses an existing Netscape-format cookie file back into
// name/value pairs, used when resuming an extractor-backed task.
func ReadCookieFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookie file: %w", err)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), "\r")
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Split the untrimmed line: the domain field may be empty, so the
		// line can start with a tab that TrimSpace would drop.
		fields := strings.Split(raw, "\t")
		if len(fields) < 7 {
			continue
		}
		out[fields[5]] = fields[6]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
