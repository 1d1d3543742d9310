// Package catalog provides adapters for remote MODIS archives organised as
// one directory per acquisition day.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// errNotConnected is returned when an operation runs before Connect.
var errNotConnected = errors.New("remote session not connected")

// daysFromNames keeps the entries that are day directories and returns them newest first.
func daysFromNames(names []string) []domain.DayID {
	seen := make(map[domain.DayID]struct{}, len(names))
	days := make([]domain.DayID, 0, len(names))
	for _, name := range names {
		day, ok := domain.ParseDayID(path.Base(strings.TrimSuffix(name, "/")))
		if !ok {
			continue
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	domain.SortNewestFirst(days)
	return days
}

// fileNames reduces listing entries to bare file names, keeping listing order.
func fileNames(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := path.Base(e)
		if name == "." || name == ".." || name == "/" || name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// parseIndexLinks extracts the href targets of an HTML directory index.
func parseIndexLinks(r io.Reader) ([]string, error) {
	var links []string
	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return links, nil
			}
			return nil, fmt.Errorf("parsing directory index: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					links = append(links, string(val))
				}
				if !more {
					break
				}
			}
		}
	}
}
