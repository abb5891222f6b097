package snippets

import (
	"archive/zip"
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
)

// The snippet's filename without its extension. Falls back to snippet-<id>
// for names like ".bashrc" that are all extension.
func Stem(s *models.CodeSnippet) string {
	name := path.Base(strings.ReplaceAll(s.Filename, "\\", "/"))
	stem := strings.TrimSuffix(name, path.Ext(name))
	if stem == "" || stem == "." || stem == "/" {
		return fmt.Sprintf("snippet-%d", s.ID)
	}
	return stem
}

func ZipFilename(s *models.CodeSnippet) string {
	return Stem(s) + ".zip"
}

func attachment(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}

/*
Writes the snippet's source as plain text. With asAttachment set, browsers are
told to save it under the snippet's filename instead of showing it.
*/
func WriteRaw(w http.ResponseWriter, s *models.CodeSnippet, asAttachment bool) error {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Length", strconv.Itoa(len(s.SourceCode)))
	if asAttachment {
		h.Set("Content-Disposition", attachment(path.Base(s.Filename)))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(s.SourceCode)); err != nil {
		return oops.New(err, "failed to write snippet %d", s.ID)
	}
	return nil
}

// Zip builds an archive holding the source as {stem}/{filename}.
func Zip(s *models.CodeSnippet) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.CreateHeader(&zip.FileHeader{
		Name:     Stem(s) + "/" + path.Base(s.Filename),
		Method:   zip.Deflate,
		Modified: s.CreationDate,
	})
	if err != nil {
		return nil, oops.New(err, "failed to add snippet %d to zip", s.ID)
	}
	if _, err := f.Write([]byte(s.SourceCode)); err != nil {
		return nil, oops.New(err, "failed to write snippet %d to zip", s.ID)
	}
	if err := zw.Close(); err != nil {
		return nil, oops.New(err, "failed to finish zip of snippet %d", s.ID)
	}
	return buf.Bytes(), nil
}

func WriteZip(w http.ResponseWriter, s *models.CodeSnippet) error {
	data, err := Zip(s)
	if err != nil {
		return err
	}
	h := w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Content-Disposition", attachment(ZipFilename(s)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		return oops.New(err, "failed to write zip of snippet %d", s.ID)
	}
	return nil
}
