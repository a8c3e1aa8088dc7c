package lfas

import "github.com/rprado/lfas/services/lfas/field"

// Record is a document to index: a mapping from field tag to its raw
// UTF-8 text. Fields left unset are treated as empty, per the bulk
// ingest boundary contract.
type Record map[field.Tag]string

// NewRecordFromNames builds a Record from the canonical lowercase field
// names used at the embedding boundary (rua, municipio, estado, cep,
// bairro, tipo_logradouro, numero, complemento, nome). Unknown names are
// ignored.
func NewRecordFromNames(byName map[string]string) Record {
	r := make(Record, len(byName))
	for name, text := range byName {
		if tag, ok := field.Parse(name); ok {
			r[tag] = text
		}
	}
	return r
}

// Query is a search query: a mapping from field tag to the raw text
// supplied for that field.
type Query map[field.Tag]string

// NewQueryFromNames builds a Query from canonical lowercase field names,
// mirroring NewRecordFromNames. This is the concrete form of
// SearchComplex's field-to-text map.
func NewQueryFromNames(byName map[string]string) Query {
	r := make(Query, len(byName))
	for name, text := range byName {
		if tag, ok := field.Parse(name); ok {
			r[tag] = text
		}
	}
	return r
}

// Hit is one ranked search result.
type Hit struct {
	DocID uint32
	Score float64
}
