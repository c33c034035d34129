package parser

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
	"github.com/tmc/langchaingo/textsplitter"

	"edubot/internal/config"
	"edubot/internal/models"
)

const tokenEncoding = "cl100k_base"

// Splitter turns the text of one page into chunk strings.
type Splitter interface {
	Split(text string) ([]string, error)
}

type windowSplitter struct {
	size, overlap int
}

type tokenSplitter struct {
	size, overlap int
}

type recursiveSplitter struct {
	splitter textsplitter.RecursiveCharacter
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoding() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		// embedded BPE ranks, no download on first use
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		enc, encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	return enc, encErr
}

// NewSplitter builds the splitter selected by cfg.Splitter and cfg.ChunkUnit.
func NewSplitter(cfg config.IndexerConfig) (Splitter, error) {
	if cfg.ChunkSize <= 0 || cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, models.Errorf(models.KindConfigurationError, "indexer.chunk_overlap",
			"need 0 <= overlap < size, got size=%d overlap=%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}

	switch cfg.Splitter {
	case "window", "":
		if cfg.ChunkUnit == "tokens" {
			return &tokenSplitter{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}, nil
		}
		return &windowSplitter{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}, nil
	case "recursive":
		opts := []textsplitter.Option{
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		}
		if cfg.ChunkUnit == "tokens" {
			e, err := encoding()
			if err != nil {
				return nil, fmt.Errorf("load %s encoding: %w", tokenEncoding, err)
			}
			opts = append(opts, textsplitter.WithLenFunc(func(s string) int {
				return len(e.Encode(s, nil, nil))
			}))
		}
		return &recursiveSplitter{splitter: textsplitter.NewRecursiveCharacter(opts...)}, nil
	default:
		return nil, models.Errorf(models.KindConfigurationError, "indexer.splitter", "unknown splitter %q", cfg.Splitter)
	}
}

func (s *windowSplitter) Split(text string) ([]string, error) {
	return chunkContent(text, s.size, s.overlap), nil
}

func (s *tokenSplitter) Split(text string) ([]string, error) {
	e, err := encoding()
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", tokenEncoding, err)
	}
	tokens := e.Encode(strings.TrimSpace(text), nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	// A token may hold only part of a multi-byte character. Windows are cut
	// on byte offsets and widened until both ends sit on a rune boundary.
	full := e.Decode(tokens)
	offsets := make([]int, len(tokens)+1)
	for i := range tokens {
		offsets[i+1] = offsets[i] + len(e.Decode(tokens[i:i+1]))
	}
	boundary := func(i int) bool {
		return offsets[i] >= len(full) || utf8.RuneStart(full[offsets[i]])
	}

	var chunks []string
	for _, span := range windows(len(tokens), s.size, s.overlap) {
		start, end := span[0], span[1]
		for start > 0 && !boundary(start) {
			start--
		}
		for end < len(tokens) && !boundary(end) {
			end++
		}
		chunk := full[offsets[start]:offsets[end]]
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		if n := len(chunks); n > 0 && chunks[n-1] == chunk {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (s *recursiveSplitter) Split(text string) ([]string, error) {
	return s.splitter.SplitText(strings.TrimSpace(text))
}

// chunk content into windows of maxChars runes sharing overlapChars runes
// with their predecessor; the last window ends at the end of the content
func chunkContent(content string, maxChars, overlapChars int) []string {
	runes := []rune(strings.TrimSpace(content))
	var chunks []string
	for _, span := range windows(len(runes), maxChars, overlapChars) {
		if chunk := string(runes[span[0]:span[1]]); strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// windows returns [start, end) spans covering n items. For n > size the
// count is ceil((n - overlap) / (size - overlap)).
func windows(n, size, overlap int) [][2]int {
	if n == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	step := size - overlap
	var spans [][2]int
	for start := 0; ; start += step {
		end := min(start+size, n)
		spans = append(spans, [2]int{start, end})
		if end == n {
			break
		}
	}
	return spans
}

// ChunkPages splits every page independently. ChunkIndex restarts at 0 on each page.
func ChunkPages(pages []Page, s Splitter) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, page := range pages {
		pageChunks, err := getChunks(s, page)
		if err != nil {
			return nil, models.NewError(models.KindDocumentParseError, page.Source,
				fmt.Errorf("split page %d: %w", page.Number, err))
		}
		chunks = append(chunks, pageChunks...)
	}
	return chunks, nil
}

// get chunks from content and page number
func getChunks(s Splitter, page Page) ([]models.Chunk, error) {
	if strings.TrimSpace(page.Text) == "" {
		return nil, nil
	}
	chunkStrings, err := s.Split(page.Text)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, 0, len(chunkStrings))
	for i, chunkString := range chunkStrings {
		chunks = append(chunks, models.Chunk{
			Content:    chunkString,
			Source:     page.Source,
			PageNumber: page.Number,
			ChunkIndex: i,
		})
	}
	return chunks, nil
}
