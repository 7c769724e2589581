package receipt

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// PageCounter reports how many pages a PDF has
type PageCounter interface {
	PageCount(data []byte) (int, error)
}

// SourceDocument is one input file of a batch
type SourceDocument struct {
	ID        string `json:"id"`
	Path      string `json:"path,omitempty"`
	MediaType string `json:"media_type"`
	PageCount int    `json:"page_count"` // 1 for images, 0 when a PDF could not be read at discovery

	data []byte
}

// IsPDF reports whether the document is a PDF
func (d SourceDocument) IsPDF() bool {
	return d.MediaType == "application/pdf"
}

// Bytes returns the document contents
func (d SourceDocument) Bytes() ([]byte, error) {
	if d.data != nil {
		return d.data, nil
	}
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", d.ID, err)
	}
	return data, nil
}

var mediaTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".bmp":  "image/bmp",
	".heic": "image/heic",
	".heif": "image/heif",
}

// MediaTypeFor returns the media type for a supported file name, or "" when unsupported
func MediaTypeFor(name string) string {
	return mediaTypes[strings.ToLower(filepath.Ext(name))]
}

// Discover lists the supported documents under dir, sorted by path.
// Hidden files and directories are skipped.
func Discover(dir string, counter PageCounter) ([]SourceDocument, error) {
	var docs []SourceDocument
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		mediaType := MediaTypeFor(d.Name())
		if mediaType == "" {
			slog.Debug("Skipping unsupported file", "path", path)
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		doc := SourceDocument{
			ID:        filepath.ToSlash(rel),
			Path:      path,
			MediaType: mediaType,
			PageCount: 1,
		}
		if doc.IsPDF() {
			doc.PageCount = countPages(doc, counter)
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering documents in %s: %w", dir, err)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}

func countPages(doc SourceDocument, counter PageCounter) int {
	if counter == nil {
		return 0
	}
	data, err := doc.Bytes()
	if err != nil {
		return 0
	}
	n, err := counter.PageCount(data)
	if err != nil {
		slog.Warn("Could not count pdf pages", "document", doc.ID, "error", err)
		return 0
	}
	return n
}

// Upload is a file received over HTTP
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadDocuments turns uploads into documents, in upload order. Names are
// sanitized and made unique so provenance stays unambiguous.
func UploadDocuments(uploads []Upload, counter PageCounter) ([]SourceDocument, error) {
	docs := make([]SourceDocument, 0, len(uploads))
	seen := map[string]int{}
	for _, u := range uploads {
		mediaType := MediaTypeFor(u.Filename)
		if mediaType == "" {
			mediaType = normalizeContentType(u.ContentType)
		}
		if mediaType == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, u.Filename)
		}
		id := sanitizeFilename(u.Filename)
		seen[id]++
		if n := seen[id]; n > 1 {
			ext := filepath.Ext(id)
			id = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(id, ext), n, ext)
		}
		doc := SourceDocument{ID: id, MediaType: mediaType, PageCount: 1, data: u.Data}
		if doc.IsPDF() {
			doc.PageCount = countPages(doc, counter)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func normalizeContentType(contentType string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	for _, known := range mediaTypes {
		if contentType == known {
			return known
		}
	}
	if contentType == "image/jpg" {
		return "image/jpeg"
	}
	return ""
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up phone-generated names so they are safe as document ids
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filepath.ToSlash(filename))
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if r := []rune(base); len(r) > 50 {
		base = string(r[:50])
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}
