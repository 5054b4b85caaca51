package catalogue

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/ereefs-mirror/internal/domain"
)

const httpServerType = "HTTPServer"

// walkCatalogue visits every dataset in doc's tree, including nested
// <dataset> containers and referenced child catalogues (<catalogRef>),
// admitting a dataset only when it has a non-empty URL path AND an
// HTTP-file-server access endpoint (spec.md §4.1 "Recursion").
func (l *Loader) walkCatalogue(ctx context.Context, doc *etree.Document, src domain.CatalogueSource) ([]domain.DatasetEntry, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty catalogue document")
	}
	services := parseServices(root)
	var entries []domain.DatasetEntry
	l.walkElement(ctx, root, services, src, &entries)
	return entries, nil
}

// parseServices collects serviceName -> base-URL for every HTTPServer
// service declared at the catalogue root, including services nested
// inside a Compound service container.
func parseServices(root *etree.Element) map[string]string {
	services := make(map[string]string)
	var collect func(el *etree.Element)
	collect = func(el *etree.Element) {
		for _, svc := range el.SelectElements("service") {
			if strings.EqualFold(svc.SelectAttrValue("serviceType", ""), httpServerType) {
				services[svc.SelectAttrValue("name", "")] = svc.SelectAttrValue("base", "")
			}
			collect(svc)
		}
	}
	collect(root)
	return services
}

// walkElement recurses through <dataset> containers, collecting atomic
// datasets and following <catalogRef> children to their own documents.
func (l *Loader) walkElement(ctx context.Context, el *etree.Element, services map[string]string, src domain.CatalogueSource, out *[]domain.DatasetEntry) {
	for _, ds := range el.SelectElements("dataset") {
		if entry, ok := datasetEntry(ds, services, src); ok {
			*out = append(*out, entry)
		}
		l.walkElement(ctx, ds, services, src, out)
	}

	for _, ref := range el.SelectElements("catalogRef") {
		href := firstAttr(ref, "href", "xlink:href")
		if href == "" {
			continue
		}
		childDoc, err := l.fetch(ctx, resolveRef(src.CatalogueURL, href))
		if err != nil {
			log.WithError(err).WithField("href", href).Warn("failed to follow catalogRef, skipping")
			continue
		}
		childRoot := childDoc.Root()
		if childRoot == nil {
			continue
		}
		childServices := parseServices(childRoot)
		for name, base := range childServices {
			if _, exists := services[name]; !exists {
				services[name] = base
			}
		}
		l.walkElement(ctx, childRoot, services, src, out)
	}
}

// datasetEntry extracts a DatasetEntry from an atomic <dataset> element. A
// dataset is admitted only if it carries a non-empty urlPath AND resolves
// to an HTTP-file-server access URL (spec.md §4.1).
func datasetEntry(ds *etree.Element, services map[string]string, src domain.CatalogueSource) (domain.DatasetEntry, bool) {
	datasetID := firstAttr(ds, "ID", "id")
	urlPath := ds.SelectAttrValue("urlPath", "")

	accessURL, ok := resolveAccessURL(ds, services, urlPath)
	if urlPath == "" || !ok {
		return domain.DatasetEntry{}, false
	}
	if datasetID == "" {
		datasetID = urlPath
	}

	return domain.DatasetEntry{
		DatasetID:      datasetID,
		URLPath:        urlPath,
		AccessURL:      accessURL,
		LastModifiedMs: parseModified(ds),
		SizeBytes:      parseSize(ds),
		Source:         src,
	}, true
}

// resolveAccessURL finds the HTTP-file-server access URL for a dataset,
// either from an explicit <access> child or by combining a service base
// with the dataset's own urlPath (the common THREDDS shorthand).
func resolveAccessURL(ds *etree.Element, services map[string]string, datasetURLPath string) (string, bool) {
	for _, acc := range ds.SelectElements("access") {
		svcName := acc.SelectAttrValue("serviceName", "")
		base, known := services[svcName]
		if !known {
			continue
		}
		accessPath := acc.SelectAttrValue("urlPath", datasetURLPath)
		return base + accessPath, true
	}
	// No explicit <access> child: fall back to any single HTTPServer
	// service declared at catalogue scope.
	for _, base := range services {
		return base + datasetURLPath, true
	}
	return "", false
}

func parseModified(ds *etree.Element) int64 {
	for _, d := range ds.SelectElements("date") {
		if t := d.SelectAttrValue("type", ""); t != "" && !strings.EqualFold(t, "modified") {
			continue
		}
		if ms, ok := parseTimestamp(d.Text()); ok {
			return ms
		}
	}
	return 0
}

func parseTimestamp(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), true
		}
	}
	return 0, false
}

func parseSize(ds *etree.Element) int64 {
	el := ds.SelectElement("dataSize")
	if el == nil {
		return 0
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(el.Text()), 64)
	if err != nil {
		return 0
	}
	switch strings.ToLower(el.SelectAttrValue("units", "bytes")) {
	case "kbytes", "kb":
		val *= 1024
	case "mbytes", "mb":
		val *= 1024 * 1024
	case "gbytes", "gb":
		val *= 1024 * 1024 * 1024
	}
	return int64(val)
}

func firstAttr(el *etree.Element, names ...string) string {
	for _, n := range names {
		if v := el.SelectAttrValue(n, ""); v != "" {
			return v
		}
	}
	return ""
}

// resolveRef resolves a possibly-relative catalogRef href against the
// parent catalogue's own URL.
func resolveRef(parent, href string) string {
	if strings.Contains(href, "://") {
		return href
	}
	dir := path.Dir(parent)
	if strings.HasPrefix(href, "/") {
		// Absolute path on the same host as parent; best-effort join.
		return dir + href
	}
	return dir + "/" + href
}
