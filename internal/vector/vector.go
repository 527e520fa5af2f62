// Package vector loads word vector models in the word2vec text format
// and answers similarity queries over them.
package vector

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// maxVocab caps how many words are loaded from one model file. Published
// Korean models carry vocabularies far past what the queries need, and
// the whole table lives in memory.
const maxVocab = 100000

// Model is an in-memory word vector table.
type Model struct {
	Name  string
	Dim   int
	words []string
	vecs  [][]float64
	index map[string]int
}

// Load reads a .vec file: a "vocab dim" header line followed by one word
// and dim floats per line. Rows that do not parse are skipped.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("model file %s is empty", path)
	}
	header := strings.Fields(scanner.Text())
	if len(header) != 2 {
		return nil, fmt.Errorf("bad model header %q, expected \"vocab dim\"", scanner.Text())
	}
	vocab, errV := strconv.Atoi(header[0])
	dim, errD := strconv.Atoi(header[1])
	if errV != nil || errD != nil || vocab <= 0 || dim <= 0 {
		return nil, fmt.Errorf("bad model header %q, expected \"vocab dim\"", scanner.Text())
	}
	if vocab > maxVocab {
		vocab = maxVocab
	}

	m := &Model{
		Name:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Dim:   dim,
		words: make([]string, 0, vocab),
		vecs:  make([][]float64, 0, vocab),
		index: make(map[string]int, vocab),
	}

	for scanner.Scan() && len(m.words) < maxVocab {
		fields := strings.Fields(scanner.Text())
		if len(fields) != dim+1 {
			continue
		}
		word := fields[0]
		if _, dup := m.index[word]; dup {
			continue
		}

		vec := make([]float64, dim)
		ok := true
		for i, field := range fields[1:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				ok = false
				break
			}
			vec[i] = v
		}
		if !ok {
			continue
		}

		m.index[word] = len(m.words)
		m.words = append(m.words, word)
		m.vecs = append(m.vecs, vec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading model: %w", err)
	}
	if len(m.words) == 0 {
		return nil, fmt.Errorf("model %s has no usable vectors", path)
	}
	return m, nil
}

// Vector returns the vector stored for word.
func (m *Model) Vector(word string) ([]float64, bool) {
	i, ok := m.index[word]
	if !ok {
		return nil, false
	}
	return m.vecs[i], true
}

// sentencePunct is trimmed from token edges before lookup.
const sentencePunct = ".,!?;:"

// SentenceVector embeds a sentence as the mean of its known word
// vectors. It reports false when no token is in the vocabulary.
func (m *Model) SentenceVector(text string) ([]float64, bool) {
	sum := make([]float64, m.Dim)
	known := 0
	for _, token := range strings.Fields(text) {
		token = strings.Trim(token, sentencePunct)
		if token == "" {
			continue
		}
		vec, ok := m.Vector(token)
		if !ok {
			continue
		}
		for i := range sum {
			sum[i] += vec[i]
		}
		known++
	}
	if known == 0 {
		return nil, false
	}
	for i := range sum {
		sum[i] /= float64(known)
	}
	return sum, true
}

// Contains reports whether word is in the vocabulary.
func (m *Model) Contains(word string) bool {
	_, ok := m.index[word]
	return ok
}

// Size returns the vocabulary size.
func (m *Model) Size() int { return len(m.words) }

// ListModels returns the model names (file stems) of every .vec file in
// dir, sorted.
func ListModels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading model dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".vec") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".vec"))
	}
	sort.Strings(names)
	return names, nil
}
