package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/handiism/snap-memories/internal/manifest/dto"
	"github.com/handiism/snap-memories/internal/model"
)

// ErrNoMemories is returned when a manifest contains no memory entries.
var ErrNoMemories = errors.New("no memories found in manifest")

var (
	rowSplit        = regexp.MustCompile(`<tr>`)
	downloadPattern = regexp.MustCompile(`downloadMemories\('([^']+)'`)
	datePattern     = regexp.MustCompile(`>(\d{4}-\d{2}-\d{2}[^<]+UTC)<`)
)

// Parser extracts memory records from a memories history export.
//
// The HTML export lists one memory per table row. Each row carries the
// capture date, the media type, an optional location and a
// downloadMemories('...') call holding the download link, whose mid
// parameter identifies the memory. The JSON export carries the same
// fields under "Saved Media".
//
// Example usage:
//
//	parser := NewParser(log)
//
//	records, err := parser.Load("memories_history.html")
//	if err != nil {
//	    log.Fatal().Err(err).Send()
//	}
//
//	for _, rec := range records {
//	    fmt.Printf("%s captured %s\n", rec.Identity, rec.CapturedAt)
//	}
type Parser struct {
	log zerolog.Logger
}

// NewParser creates a new Parser. Rows that can't be used are logged at
// debug level on log.
func NewParser(log zerolog.Logger) *Parser {
	return &Parser{log: log}
}

// Load reads the manifest at path, detecting HTML or JSON from content.
//
// Returns an error if:
//   - The file can't be read
//   - The JSON is malformed
//   - No usable memory entries were found
func (p *Parser) Load(path string) ([]*model.MemoryRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var records []*model.MemoryRecord
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		records, err = p.ParseJSON(trimmed)
	} else {
		records, err = p.ParseHTML(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseHTML extracts records from memories_history.html content, in
// document order.
//
// Rows without a download call, a memory id or a parsable UTC date are
// skipped. Download links are HTML-unescaped.
func (p *Parser) ParseHTML(content string) ([]*model.MemoryRecord, error) {
	var records []*model.MemoryRecord
	skipped := 0

	for _, row := range rowSplit.Split(content, -1) {
		if !strings.Contains(row, "downloadMemories(") {
			continue
		}

		rec, reason := parseRow(row)
		if rec == nil {
			skipped++
			p.log.Debug().Str("reason", reason).Msg("skipping manifest row")
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoMemories
	}
	if skipped > 0 {
		p.log.Warn().Int("rows", skipped).Msg("manifest rows without id or date were ignored")
	}
	return records, nil
}

// parseRow builds a record from one table row, or explains why it can't.
func parseRow(row string) (*model.MemoryRecord, string) {
	var link string
	if m := downloadPattern.FindStringSubmatch(row); m != nil {
		link = html.UnescapeString(m[1])
	}

	mid, sid := dto.MemoryIDs(link)
	if mid == "" {
		mid, sid = dto.MemoryIDs(row)
	}
	if mid == "" {
		return nil, "no memory id"
	}

	m := datePattern.FindStringSubmatch(row)
	if m == nil {
		return nil, "no date"
	}
	capturedAt, ok := dto.ParseDate(m[1])
	if !ok {
		return nil, "bad date " + m[1]
	}

	kind := model.KindImage
	if !strings.Contains(row, "<td>Image</td>") && strings.Contains(row, "<td>Video</td>") {
		kind = model.KindVideo
	}

	rec := &model.MemoryRecord{
		Identity:   mid,
		CapturedAt: capturedAt,
		Location:   dto.ParseLocation(row),
		SourceURL:  link,
		Kind:       kind,
	}
	if sid != "" {
		rec.Aliases = []string{sid}
	}
	return rec, ""
}

// ParseJSON extracts records from memories_history.json content.
func (p *Parser) ParseJSON(data []byte) ([]*model.MemoryRecord, error) {
	var history dto.JSONHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse memories JSON: %w", err)
	}

	var records []*model.MemoryRecord
	for i := range history.SavedMedia {
		rec, ok := history.SavedMedia[i].ToRecord()
		if !ok {
			p.log.Debug().Int("entry", i).Msg("skipping manifest entry without id or date")
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrNoMemories
	}
	return records, nil
}
