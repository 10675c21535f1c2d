package recipe

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// LWMParams are the LWM inspection parameters of one seam.
type LWMParams struct {
	Active  bool  `yaml:"active"`
	Program int32 `yaml:"program"`
}

// Seam is one seam of a seam-series.
type Seam struct {
	Duration time.Duration `yaml:"duration,omitempty"`
	LWM      LWMParams     `yaml:"lwm,omitempty"`
}

// SeamSeries is a numbered group of seams.
type SeamSeries struct {
	Number int    `yaml:"number"`
	Seams  []Seam `yaml:"seams"`
}

// Product is the recipe of one product type.
type Product struct {
	Type       uint32       `yaml:"type"`
	Name       string       `yaml:"name"`
	SeamSeries []SeamSeries `yaml:"seam_series"`
}

// Series returns the seam-series with the given number.
func (p *Product) Series(number int) (SeamSeries, bool) {
	for _, s := range p.SeamSeries {
		if s.Number == number {
			return s, true
		}
	}

	return SeamSeries{}, false
}

// SeamCount returns the number of seams of a seam-series, 0 when the series is unknown.
func (p *Product) SeamCount(series int) int {
	s, ok := p.Series(series)
	if !ok {
		return 0
	}

	return len(s.Seams)
}

// Selections builds the LWM seam selection table of the product.
func (p *Product) Selections() SelectionTable {
	t := SelectionTable{series: make(map[int][]LWMParams, len(p.SeamSeries))}
	for _, s := range p.SeamSeries {
		row := make([]LWMParams, len(s.Seams))
		for i, seam := range s.Seams {
			row[i] = seam.LWM
		}
		t.series[s.Number] = row
	}

	return t
}

func (p *Product) validate() error {
	seen := make(map[int]bool, len(p.SeamSeries))
	for _, s := range p.SeamSeries {
		if seen[s.Number] {
			return fmt.Errorf("%w: product %d has seam-series %d twice", ErrInvalidRecipe, p.Type, s.Number)
		}
		seen[s.Number] = true

		for i, seam := range s.Seams {
			if seam.Duration < 0 {
				return fmt.Errorf("%w: product %d seam-series %d seam %d has a negative duration", ErrInvalidRecipe, p.Type, s.Number, i+1)
			}
			if seam.LWM.Active && seam.LWM.Program < 0 {
				return fmt.Errorf("%w: product %d seam-series %d seam %d has LWM program %d", ErrInvalidRecipe, p.Type, s.Number, i+1, seam.LWM.Program)
			}
		}
	}

	return nil
}

// SelectionTable holds the LWM parameters per seam-series and seam. The zero value is an empty
// table in which every seam is inactive.
type SelectionTable struct {
	series map[int][]LWMParams
}

// Lookup returns the parameters of a seam. Seams are numbered from 1.
func (t SelectionTable) Lookup(series, seam int) (LWMParams, bool) {
	row, ok := t.series[series]
	if !ok || seam < 1 || seam > len(row) {
		return LWMParams{}, false
	}

	return row[seam-1], true
}

// SeamCount returns the number of seams of a seam-series.
func (t SelectionTable) SeamCount(series int) int {
	return len(t.series[series])
}

// Decode parses a single product recipe. Unknown keys are rejected.
func Decode(data []byte) (*Product, error) {
	var p Product
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse recipe: %w", err)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

// Encode renders a product recipe as YAML.
func Encode(p *Product) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Book is an in-memory set of product recipes keyed by product type.
type Book struct {
	products map[uint32]*Product
}

// NewBook creates a book from already decoded products. A later product replaces an earlier one
// with the same type.
func NewBook(products ...*Product) *Book {
	b := &Book{products: make(map[uint32]*Product, len(products))}
	for _, p := range products {
		b.products[p.Type] = p
	}

	return b
}

// LoadDir reads every *.yaml and *.yml file of dir as one product recipe.
func LoadDir(dir string) (*Book, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recipe directory: %w", err)
	}

	b := &Book{products: make(map[uint32]*Product)}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read recipe file: %w", err)
		}

		p, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}

		if prev, ok := b.products[p.Type]; ok {
			return nil, fmt.Errorf("%w: %s redefines product %d (%s)", ErrInvalidRecipe, path, p.Type, prev.Name)
		}
		b.products[p.Type] = p
	}

	return b, nil
}

// Product returns the recipe of productType.
func (b *Book) Product(productType uint32) (*Product, error) {
	p, ok := b.products[productType]
	if !ok {
		return nil, fmt.Errorf("%w: type %d", ErrProductNotFound, productType)
	}

	return p, nil
}

// Types returns the product types of the book in ascending order.
func (b *Book) Types() []uint32 {
	types := make([]uint32, 0, len(b.products))
	for t := range b.products {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}
