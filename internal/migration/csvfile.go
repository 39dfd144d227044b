package migration

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// sniffLimit bounds how much of a file is inspected for encoding and
// delimiter detection.
const sniffLimit = 32 * 1024

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// Row is one CSV record keyed by (lower-cased) header name. Missing columns
// read as empty strings.
type Row map[string]string

// Get returns the trimmed value of a column.
func (r Row) Get(key string) string {
	return strings.TrimSpace(r[key])
}

// CSVFile streams rows from a legacy export file. The legacy system wrote
// CSVs in a mix of UTF-8 and Hebrew code pages, so the encoding is sniffed
// per file.
type CSVFile struct {
	Path     string
	Header   []string
	Encoding string

	file    *os.File
	reader  *csv.Reader
	maxRows int
	read    int
}

// OpenCSV opens path with encoding and delimiter auto-detection. maxRows of
// zero means unlimited.
func OpenCSV(path string, maxRows int) (*CSVFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	sample := make([]byte, sniffLimit)
	n, err := file.Read(sample)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, err
	}
	sample = sample[:n]

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, err
	}

	encName, decoder := sniffEncoding(sample)
	delimiter := sniffDelimiter(decodeSample(sample, decoder))

	var src io.Reader = file
	if decoder != nil {
		src = transform.NewReader(file, decoder.NewDecoder())
	} else {
		// Strip the UTF-8 BOM when present.
		src = transform.NewReader(file, newBOMStripper())
	}

	reader := csv.NewReader(src)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read header of %s: %w", filepath.Base(path), err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	return &CSVFile{
		Path:     path,
		Header:   header,
		Encoding: encName,
		file:     file,
		reader:   reader,
		maxRows:  maxRows,
	}, nil
}

// Next returns the next row or io.EOF. The configured row cap counts data
// rows, not the header.
func (f *CSVFile) Next() (Row, error) {
	if f.maxRows > 0 && f.read >= f.maxRows {
		return nil, io.EOF
	}

	record, err := f.reader.Read()
	if err != nil {
		return nil, err
	}
	f.read++

	row := make(Row, len(f.Header))
	for i, h := range f.Header {
		if i < len(record) {
			row[h] = record[i]
		}
	}
	return row, nil
}

// Each streams all remaining rows through fn, stopping on the first error.
func (f *CSVFile) Each(fn func(Row) error) error {
	for {
		row, err := f.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

func (f *CSVFile) Close() error {
	return f.file.Close()
}

// sniffEncoding picks the decoder for a sample. UTF-8 (with or without BOM)
// wins when the bytes are valid; otherwise the Hebrew code pages are scored
// by how many Hebrew letters they produce, with Latin-1 as the last resort.
func sniffEncoding(sample []byte) (string, *charmap.Charmap) {
	if bytes.HasPrefix(sample, []byte{0xEF, 0xBB, 0xBF}) {
		return "utf-8-bom", nil
	}
	if utf8.Valid(sample) {
		return "utf-8", nil
	}

	candidates := []struct {
		name string
		cm   *charmap.Charmap
	}{
		{"windows-1255", charmap.Windows1255},
		{"iso-8859-8", charmap.ISO8859_8},
	}

	bestName, bestScore := "", -1
	var best *charmap.Charmap
	for _, c := range candidates {
		decoded, err := c.cm.NewDecoder().Bytes(sample)
		if err != nil {
			continue
		}
		score := hebrewLetterCount(decoded)
		if score > bestScore {
			bestName, bestScore, best = c.name, score, c.cm
		}
	}
	if best != nil && bestScore > 0 {
		return bestName, best
	}
	return "latin-1", charmap.ISO8859_1
}

func hebrewLetterCount(b []byte) int {
	count := 0
	for _, r := range string(b) {
		if r >= 0x05D0 && r <= 0x05EA {
			count++
		}
	}
	return count
}

func decodeSample(sample []byte, cm *charmap.Charmap) string {
	if cm == nil {
		return string(bytes.TrimPrefix(sample, []byte{0xEF, 0xBB, 0xBF}))
	}
	decoded, err := cm.NewDecoder().Bytes(sample)
	if err != nil {
		return string(sample)
	}
	return string(decoded)
}

// sniffDelimiter counts candidate delimiters outside quoted sections of the
// sample and returns the most frequent one, defaulting to comma.
func sniffDelimiter(sample string) rune {
	counts := make(map[rune]int, len(delimiterCandidates))
	inQuotes := false
	for _, r := range sample {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case inQuotes:
		default:
			for _, d := range delimiterCandidates {
				if r == d {
					counts[r]++
				}
			}
		}
	}

	best, bestCount := ',', 0
	for _, d := range delimiterCandidates {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}

// bomStripper removes a leading UTF-8 BOM and passes everything else through.
type bomStripper struct {
	done bool
}

func newBOMStripper() transform.Transformer {
	return &bomStripper{}
}

func (b *bomStripper) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	if !b.done {
		if len(src) < 3 && !atEOF {
			return 0, 0, transform.ErrShortSrc
		}
		if bytes.HasPrefix(src, []byte{0xEF, 0xBB, 0xBF}) {
			src = src[3:]
			nSrc = 3
		}
		b.done = true
	}
	n := copy(dst, src)
	nDst = n
	nSrc += n
	if n < len(src) {
		err = transform.ErrShortDst
	}
	return nDst, nSrc, err
}

func (b *bomStripper) Reset() { b.done = false }
