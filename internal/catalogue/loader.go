// Package catalogue parses THREDDS XML catalogues and resolves a
// DownloadDefinition's sources into a filtered {datasetId -> DatasetEntry}
// mapping (spec.md §4.1). XML walking follows the etree idiom used for
// WOPI discovery documents in the reva pack member: a fresh *etree.Document
// per source, then recursive SelectElement/SelectElements/SelectAttrValue.
package catalogue

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	coreerrors "github.com/zzenonn/ereefs-mirror/internal/errors"
	"github.com/zzenonn/ereefs-mirror/internal/domain"
)

// requestTimeout is the whole-request (connect + lease + socket) timeout
// for catalogue fetches, per spec.md §4.1.
const requestTimeout = 5 * time.Minute

// Loader resolves one DownloadDefinition's catalogue sources into
// DatasetEntry values. A Loader memoises the parsed document of each
// source URL on the instance and never clears that cache, so every
// definition served by the same Loader sees a catalogue as it was first
// fetched. cmd/run.go builds one Loader per run and shares it across all
// definitions of that run.
type Loader struct {
	client *http.Client
	cache  map[string]*etree.Document
}

// NewLoader builds a Loader with the transport settings spec.md §4.1
// requires: self-signed certificates accepted, TLS 1.2/1.3 enabled.
func NewLoader() *Loader {
	return &Loader{
		client: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: true,
					MinVersion:         tls.VersionTLS12,
					MaxVersion:         tls.VersionTLS13,
				},
			},
		},
		cache: make(map[string]*etree.Document),
	}
}

// Load resolves every CatalogueSource of def into a single
// {datasetId -> DatasetEntry} map, applying the definition's (or, if
// overridden, the source's) filename filter. On id collision across
// sources, later sources win, in source order (spec.md §4.1).
func (l *Loader) Load(ctx context.Context, def domain.DownloadDefinition) (map[string]domain.DatasetEntry, error) {
	result := make(map[string]domain.DatasetEntry)
	anyYielded := false

	for _, src := range def.CatalogueURLs {
		doc, err := l.fetch(ctx, src.CatalogueURL)
		if err != nil {
			log.WithError(err).WithField("catalogueUrl", src.CatalogueURL).
				Warn("catalogue source unreachable or unparseable, skipping")
			continue
		}

		files, regex := def.EffectiveFilter(src)
		matcher, err := newFilter(files, regex)
		if err != nil {
			log.WithError(err).WithField("catalogueUrl", src.CatalogueURL).
				Warn("invalid filename filter, skipping source")
			continue
		}

		entries, err := l.walkCatalogue(ctx, doc, src)
		if err != nil {
			log.WithError(err).WithField("catalogueUrl", src.CatalogueURL).
				Warn("error walking catalogue tree, skipping source")
			continue
		}
		for _, e := range entries {
			if !matcher(e.FileName()) {
				continue
			}
			result[e.DatasetID] = e
			anyYielded = true
		}
	}

	if !anyYielded {
		return nil, fmt.Errorf("definition %s: %w", def.ID, coreerrors.ErrNoSuitableCatalogue)
	}
	return result, nil
}

// fetch retrieves and parses one catalogue source, memoising on the
// instance so repeated lookups within a run don't re-fetch.
func (l *Loader) fetch(ctx context.Context, rawURL string) (*etree.Document, error) {
	if doc, ok := l.cache[rawURL]; ok {
		return doc, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing catalogue URL: %w", err)
	}

	doc := etree.NewDocument()

	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("catalogue fetch: unexpected status %s", resp.Status)
		}
		if _, err := doc.ReadFrom(resp.Body); err != nil {
			return nil, fmt.Errorf("parsing catalogue xml: %w", err)
		}
	case "file", "":
		path := u.Path
		if u.Scheme == "" {
			path = rawURL
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if _, err := doc.ReadFrom(f); err != nil {
			return nil, fmt.Errorf("parsing catalogue xml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalogue URL scheme %q", u.Scheme)
	}

	l.cache[rawURL] = doc
	return doc, nil
}

// newFilter builds a filename predicate from an explicit filename set or a
// regular expression; an empty filter admits everything (spec.md §4.1).
func newFilter(files []string, regex string) (func(string) bool, error) {
	if len(files) > 0 {
		set := make(map[string]struct{}, len(files))
		for _, f := range files {
			set[f] = struct{}{}
		}
		return func(name string) bool {
			_, ok := set[name]
			return ok
		}, nil
	}
	if regex != "" {
		re, err := regexp.Compile(regex)
		if err != nil {
			return nil, err
		}
		return func(name string) bool {
			loc := re.FindStringIndex(name)
			return loc != nil && loc[0] == 0 && loc[1] == len(name)
		}, nil
	}
	return func(string) bool { return true }, nil
}

