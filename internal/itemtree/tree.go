// Package itemtree indexes open report items by feature URI, scenario line
// and step text so results that arrive out of band can find their item.
package itemtree

import (
	"strconv"
	"sync"

	"github.com/chriserin/ftrp/internal/reporting"
)

// stepCapacity sizes the step map of each scenario node.
const stepCapacity = 64

type Node struct {
	Handle   *reporting.Handle
	Children map[string]*Node
}

// Tree is safe for concurrent use. A disabled tree ignores every mutation
// and answers every lookup with a miss.
type Tree struct {
	enabled bool

	mu       sync.Mutex
	features map[string]*Node
}

func New(enabled bool) *Tree {
	return &Tree{enabled: enabled, features: make(map[string]*Node)}
}

func (t *Tree) Enabled() bool {
	return t != nil && t.enabled
}

func (t *Tree) AddFeature(uri string, h *reporting.Handle) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.features[uri] = &Node{Handle: h, Children: make(map[string]*Node)}
}

func (t *Tree) AddScenario(uri string, line int, h *reporting.Handle) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.features[uri]
	if !ok {
		return
	}
	f.Children[strconv.Itoa(line)] = &Node{Handle: h, Children: make(map[string]*Node, stepCapacity)}
}

func (t *Tree) AddStep(uri string, line int, text string, h *reporting.Handle) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if sc := t.scenario(uri, line); sc != nil {
		sc.Children[text] = &Node{Handle: h}
	}
}

// RemoveScenario drops a scenario and its steps. Missing entries are ignored.
func (t *Tree) RemoveScenario(uri string, line int) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if f, ok := t.features[uri]; ok {
		delete(f.Children, strconv.Itoa(line))
	}
}

// RemoveStep drops one step entry. Missing entries are ignored.
func (t *Tree) RemoveStep(uri string, line int, text string) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if sc := t.scenario(uri, line); sc != nil {
		delete(sc.Children, text)
	}
}

// RemoveFeature drops a feature and everything under it.
func (t *Tree) RemoveFeature(uri string) {
	if !t.Enabled() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.features, uri)
}

func (t *Tree) Feature(uri string) (*reporting.Handle, bool) {
	if !t.Enabled() {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.features[uri]
	if !ok {
		return nil, false
	}
	return f.Handle, true
}

func (t *Tree) Scenario(uri string, line int) (*reporting.Handle, bool) {
	if !t.Enabled() {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sc := t.scenario(uri, line)
	if sc == nil {
		return nil, false
	}
	return sc.Handle, true
}

func (t *Tree) Step(uri string, line int, text string) (*reporting.Handle, bool) {
	if !t.Enabled() {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	sc := t.scenario(uri, line)
	if sc == nil {
		return nil, false
	}
	st, ok := sc.Children[text]
	if !ok {
		return nil, false
	}
	return st.Handle, true
}

func (t *Tree) scenario(uri string, line int) *Node {
	f, ok := t.features[uri]
	if !ok {
		return nil
	}
	return f.Children[strconv.Itoa(line)]
}
