package claims

import (
	"github.com/google/uuid"

	"github.com/claimdesk/claimdesk/internal/domain/documents"
)

// buildDetail arranges a claim's documents, queries and enhancements into
// the read graph. Claim-level documents exclude anything owned by an
// enhancement or query, top-level queries exclude enhancement queries, and
// enhancement documents exclude those owned by one of its queries.
func buildDetail(c *Claim, docs []*documents.Document, queries []*Query, enhancements []*Enhancement) *Detail {
	d := &Detail{
		Claim:        c,
		Documents:    []*documents.Document{},
		Queries:      []*QueryDetail{},
		Enhancements: []*EnhancementDetail{},
	}

	byQuery := make(map[uuid.UUID][]*documents.Document)
	byEnhancement := make(map[uuid.UUID][]*documents.Document)
	for _, doc := range docs {
		o := doc.Owner()
		switch o.Kind() {
		case documents.OwnerClaim:
			d.Documents = append(d.Documents, doc)
		case documents.OwnerEnhancement:
			byEnhancement[*o.EnhancementID()] = append(byEnhancement[*o.EnhancementID()], doc)
		case documents.OwnerQuery, documents.OwnerEnhancementQuery:
			byQuery[*o.QueryID()] = append(byQuery[*o.QueryID()], doc)
		}
	}

	enhancementQueries := make(map[uuid.UUID][]*QueryDetail)
	for _, q := range queries {
		qd := &QueryDetail{Query: q, Documents: nonNil(byQuery[q.ID])}
		if q.EnhancementID != nil {
			enhancementQueries[*q.EnhancementID] = append(enhancementQueries[*q.EnhancementID], qd)
			continue
		}
		d.Queries = append(d.Queries, qd)
	}

	for _, e := range enhancements {
		qs := enhancementQueries[e.ID]
		if qs == nil {
			qs = []*QueryDetail{}
		}
		d.Enhancements = append(d.Enhancements, &EnhancementDetail{
			Enhancement: e,
			Documents:   nonNil(byEnhancement[e.ID]),
			Queries:     qs,
		})
	}
	return d
}

// AllDocuments returns every document in the graph.
func (d *Detail) AllDocuments() []*documents.Document {
	out := append([]*documents.Document{}, d.Documents...)
	for _, q := range d.Queries {
		out = append(out, q.Documents...)
	}
	for _, e := range d.Enhancements {
		out = append(out, e.Documents...)
		for _, q := range e.Queries {
			out = append(out, q.Documents...)
		}
	}
	return out
}

func nonNil(docs []*documents.Document) []*documents.Document {
	if docs == nil {
		return []*documents.Document{}
	}
	return docs
}

// BuildEnhancementDetail arranges one enhancement with its queries. docs may
// hold the whole claim's documents; only those owned by e or its queries
// are kept.
func BuildEnhancementDetail(e *Enhancement, docs []*documents.Document, queries []*Query) *EnhancementDetail {
	return buildDetail(nil, docs, queries, []*Enhancement{e}).Enhancements[0]
}

// AllDocuments returns the enhancement's documents followed by those of its
// queries.
func (e *EnhancementDetail) AllDocuments() []*documents.Document {
	out := append([]*documents.Document{}, e.Documents...)
	for _, q := range e.Queries {
		out = append(out, q.Documents...)
	}
	return out
}
