package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"edubot/internal/models"
)

// Page is the plain text of one PDF page. Number is 1-based.
type Page struct {
	Source string
	Number int
	Text   string
}

var disableConfigDir sync.Once

// Discover lists the files under dir matching the doublestar pattern, sorted.
func Discover(dir, pattern string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, models.NewError(models.KindNoDocumentsFound, dir, err)
	}
	if !info.IsDir() {
		return nil, models.Errorf(models.KindNoDocumentsFound, dir, "not a directory")
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern)
	if err != nil {
		return nil, models.NewError(models.KindConfigurationError, "indexer.glob", err)
	}

	var files []string
	for _, m := range matches {
		path := filepath.Join(dir, filepath.FromSlash(m))
		st, err := os.Stat(path)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	if len(files) == 0 {
		return nil, models.Errorf(models.KindNoDocumentsFound, dir, "no files match %q", pattern)
	}
	sort.Strings(files)
	return files, nil
}

// ParsePDF extracts the text of every page of the PDF at filePath.
// Any failure is reported as a DocumentParseError naming the file.
func ParsePDF(filePath string, validate bool) ([]Page, error) {
	if validate {
		if err := validatePDF(filePath); err != nil {
			return nil, models.NewError(models.KindDocumentParseError, filePath, err)
		}
	}
	pages, err := parsePDF(filePath)
	if err != nil {
		return nil, models.NewError(models.KindDocumentParseError, filePath, err)
	}
	return pages, nil
}

func validatePDF(filePath string) error {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(filePath, conf); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func parsePDF(filePath string) (pages []Page, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, errors.New("document has no pages")
	}
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, Page{
			Source: filePath,
			Number: i,
			Text:   strings.TrimSpace(pageText),
		})
	}
	log.Debug().Str("file", filePath).Int("pages", len(pages)).Msg("Parsed PDF")
	return pages, nil
}
