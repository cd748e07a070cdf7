// Package source caches feature file text by URI and parses each file at
// most once.
package source

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/chriserin/ftrp/internal/parser"
)

// ErrUnknownSource is returned when a document is requested for a URI whose
// text was never read.
var ErrUnknownSource = errors.New("source: no text for uri")

type Index struct {
	mu    sync.RWMutex
	texts map[string]string
	docs  map[string]*parser.Document
	group singleflight.Group
}

func NewIndex() *Index {
	return &Index{
		texts: make(map[string]string),
		docs:  make(map[string]*parser.Document),
	}
}

// Put stores the text of uri, replacing any earlier text and its parse.
func (i *Index) Put(uri, text string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.texts[uri] = text
	delete(i.docs, uri)
}

func (i *Index) Text(uri string) (string, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	text, ok := i.texts[uri]
	return text, ok
}

// Document returns the parsed feature at uri. Concurrent callers for the
// same uri share a single parse.
func (i *Index) Document(uri string) (*parser.Document, error) {
	i.mu.RLock()
	doc, ok := i.docs[uri]
	i.mu.RUnlock()
	if ok {
		return doc, nil
	}

	v, err, _ := i.group.Do(uri, func() (any, error) {
		text, ok := i.Text(uri)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, uri)
		}
		doc, err := parser.Parse(uri, []byte(text))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", uri, err)
		}

		i.mu.Lock()
		i.docs[uri] = doc
		i.mu.Unlock()
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*parser.Document), nil
}
