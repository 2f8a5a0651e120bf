package book

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type wireBook struct {
	Sections []wireItem `json:"sections"`
	// Newer hosts name the top-level list "items".
	Items []wireItem `json:"items,omitempty"`
}

type wireItem struct {
	Chapter *wireChapter `json:"Chapter,omitempty"`
}

// UnmarshalJSON accepts the string variants ("Separator") and PartTitle
// objects, which carry no content.
func (w *wireItem) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	raw, ok := obj["Chapter"]
	if !ok {
		return nil
	}
	w.Chapter = &wireChapter{}
	return json.Unmarshal(raw, w.Chapter)
}

type wireChapter struct {
	Name       string     `json:"name"`
	Content    string     `json:"content"`
	Number     []int      `json:"number,omitempty"`
	SubItems   []wireItem `json:"sub_items"`
	Path       *string    `json:"path"`
	SourcePath *string    `json:"source_path,omitempty"`
}

func fromWire(items []wireItem) []Chapter {
	out := make([]Chapter, 0, len(items))
	for _, item := range items {
		if item.Chapter == nil {
			continue
		}
		ch := Chapter{
			Name:     item.Chapter.Name,
			Content:  item.Chapter.Content,
			SubItems: fromWire(item.Chapter.SubItems),
		}
		if item.Chapter.Path != nil {
			ch.Path = *item.Chapter.Path
		}
		out = append(out, ch)
	}
	return out
}

func toWire(ch Chapter) *wireChapter {
	wc := &wireChapter{Name: ch.Name, Content: ch.Content, SubItems: []wireItem{}}
	if ch.Path != "" {
		p := ch.Path
		wc.Path = &p
		wc.SourcePath = &p
	}
	for i := range ch.SubItems {
		wc.SubItems = append(wc.SubItems, wireItem{Chapter: toWire(ch.SubItems[i])})
	}
	return wc
}

// MarshalJSON writes the Chapter variant of the item.
func (w wireItem) MarshalJSON() ([]byte, error) {
	if w.Chapter == nil {
		return []byte(`"Separator"`), nil
	}
	return json.Marshal(map[string]*wireChapter{"Chapter": w.Chapter})
}

// Decode parses a book from its JSON encoding, keeping the original bytes.
func Decode(data []byte) (*Book, error) {
	var wb wireBook
	if err := json.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("decode book: %w", err)
	}
	items := wb.Sections
	if len(items) == 0 {
		items = wb.Items
	}
	return &Book{
		Chapters: fromWire(items),
		raw:      append(json.RawMessage(nil), data...),
	}, nil
}

// ReadInput reads the host request: a JSON array of [context, book].
func ReadInput(r io.Reader) (*Context, *Book, error) {
	var parts []json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&parts); err != nil {
		return nil, nil, fmt.Errorf("decode preprocessor input: %w", err)
	}
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("preprocessor input must be [context, book], got %d elements", len(parts))
	}

	var ctx Context
	if err := json.Unmarshal(parts[0], &ctx); err != nil {
		return nil, nil, fmt.Errorf("decode context: %w", err)
	}
	b, err := Decode(parts[1])
	if err != nil {
		return nil, nil, err
	}
	return &ctx, b, nil
}

// WriteOutput writes the book back to the host.
func WriteOutput(w io.Writer, b *Book) error {
	raw, err := b.Raw()
	if err != nil {
		return fmt.Errorf("encode book: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write book: %w", err)
	}
	return nil
}
