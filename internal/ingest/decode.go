package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported candidate format")

// Колонки табличного экспорта. id — необязательная.
var csvColumns = []string{"category", "text", "weight", "options"}

// DecodeCSV читает строки "category,text,weight,options[,id]" с заголовком.
// options: "Conforme=10|Não Conforme=0". Ошибки разбора ячеек возвращаются как ошибки с номером строки;
// смысловые проверки (вес, варианты) остаются за Builder.
func DecodeCSV(name string, r io.Reader) (Candidate, error) {
	c := Candidate{Name: name}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return c, fmt.Errorf("ingest: read csv header: %w", err)
	}
	cols, err := indexColumns(header)
	if err != nil {
		return c, err
	}

	line := 1
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return c, fmt.Errorf("ingest: csv line %d: %w", line, err)
		}
		if isBlank(rec) {
			continue
		}

		row := Row{
			Category: cell(rec, cols["category"]),
			Text:     cell(rec, cols["text"]),
		}
		if idCol, ok := cols["id"]; ok {
			row.ID = cell(rec, idCol)
		}

		if raw := cell(rec, cols["weight"]); raw != "" {
			w, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
			if err != nil {
				return c, fmt.Errorf("ingest: csv line %d: weight %q is not a number", line, raw)
			}
			row.Weight = w
		}

		opts, err := parseOptions(cell(rec, cols["options"]))
		if err != nil {
			return c, fmt.Errorf("ingest: csv line %d: %w", line, err)
		}
		row.Options = opts

		c.Questions = append(c.Questions, row)
	}
	return c, nil
}

// DecodeJSON читает ответ сервиса извлечения: {"name": ..., "questions": [...]}.
func DecodeJSON(r io.Reader) (Candidate, error) {
	var c Candidate
	if err := json.NewDecoder(r).Decode(&c); err != nil {
		return c, fmt.Errorf("ingest: decode json: %w", err)
	}
	return c, nil
}

// DecodeYAML читает шаблон, описанный вручную в YAML (каталог для сидирования, templatectl).
func DecodeYAML(r io.Reader) (Candidate, error) {
	var c Candidate
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return c, fmt.Errorf("ingest: decode yaml: %w", err)
	}
	return c, nil
}

// LoadFile выбирает декодер по расширению. Для CSV имя шаблона берётся из имени файла.
func LoadFile(path string) (Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return Candidate{}, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return DecodeYAML(f)
	case ".json":
		return DecodeJSON(f)
	case ".csv":
		return DecodeCSV(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), f)
	default:
		return Candidate{}, fmt.Errorf("ingest: %s: %w", ext, ErrUnsupportedFormat)
	}
}

func indexColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range csvColumns {
		if _, ok := cols[want]; !ok {
			return nil, fmt.Errorf("ingest: csv header is missing column %q", want)
		}
	}
	return cols, nil
}

func parseOptions(raw string) ([]OptionRow, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	parts := strings.Split(raw, "|")
	opts := make([]OptionRow, 0, len(parts))
	for _, p := range parts {
		label, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("option %q must look like Label=value", strings.TrimSpace(p))
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(value, ",", ".")), 64)
		if err != nil {
			return nil, fmt.Errorf("option %q: value is not a number", strings.TrimSpace(p))
		}
		opts = append(opts, OptionRow{Label: strings.TrimSpace(label), Value: v})
	}
	return opts, nil
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
