package orchestrator

import (
	"context"
	"fmt"
	"sort"
)

// DriftKind names a disagreement between the two stores.
type DriftKind string

const (
	// DriftMissingEntity: a child list names a property that does not exist.
	DriftMissingEntity DriftKind = "missing-entity"

	// DriftWrongBackReference: a listed property names another schema.
	DriftWrongBackReference DriftKind = "wrong-back-reference"

	// DriftOrphanEntity: a property that no schema lists.
	DriftOrphanEntity DriftKind = "orphan-entity"

	// DriftDuplicateName: two listed properties of one schema share a name.
	DriftDuplicateName DriftKind = "duplicate-name"

	// DriftPendingDelete: a schema delete that has not finished.
	DriftPendingDelete DriftKind = "pending-delete"
)

// Drift is one inconsistency found by Verify.
type Drift struct {
	Kind       DriftKind `json:"kind"`
	SchemaID   string    `json:"schemaId,omitempty"`
	SchemaName string    `json:"schemaName,omitempty"`
	PropertyID string    `json:"propertyId,omitempty"`
	Detail     string    `json:"detail"`
}

// Report is the result of Verify.
type Report struct {
	Schemas    int     `json:"schemas"`
	Properties int     `json:"properties"`
	Drifts     []Drift `json:"drifts"`
}

// Consistent reports whether no drift was found.
func (r Report) Consistent() bool {
	return len(r.Drifts) == 0
}

// Verify compares every schema's child list with the property entities
// and reports each disagreement. It takes no locks and mutates nothing,
// so drift caused by a workflow in flight may be reported.
func (o *Orchestrator) Verify(ctx context.Context) (Report, error) {
	docs, err := o.schemas.GetAll(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list schemas: %w", err)
	}
	props, err := o.props.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list properties: %w", err)
	}

	byID := make(map[string]int, len(props))
	for i, p := range props {
		byID[p.ID] = i
	}
	claimed := make(map[string]bool, len(props))

	report := Report{Schemas: len(docs), Properties: len(props), Drifts: []Drift{}}
	add := func(d Drift) { report.Drifts = append(report.Drifts, d) }

	for _, doc := range docs {
		if doc.PendingDelete {
			add(Drift{
				Kind:       DriftPendingDelete,
				SchemaID:   doc.ID,
				SchemaName: doc.Name,
				Detail:     "delete started but not finished; run purge",
			})
		}

		names := make(map[string]string, len(doc.PropertyIDs))
		for _, pid := range doc.PropertyIDs {
			claimed[pid] = true
			i, ok := byID[pid]
			if !ok {
				if !doc.PendingDelete {
					add(Drift{
						Kind:       DriftMissingEntity,
						SchemaID:   doc.ID,
						SchemaName: doc.Name,
						PropertyID: pid,
						Detail:     "listed property does not exist",
					})
				}
				continue
			}
			p := props[i]
			if p.SchemaName != doc.Name {
				add(Drift{
					Kind:       DriftWrongBackReference,
					SchemaID:   doc.ID,
					SchemaName: doc.Name,
					PropertyID: pid,
					Detail:     fmt.Sprintf("property references schema %q", p.SchemaName),
				})
			}
			if other, dup := names[p.Name]; dup {
				add(Drift{
					Kind:       DriftDuplicateName,
					SchemaID:   doc.ID,
					SchemaName: doc.Name,
					PropertyID: pid,
					Detail:     fmt.Sprintf("name %q also used by %s", p.Name, other),
				})
			} else {
				names[p.Name] = pid
			}
		}
	}

	for _, p := range props {
		if !claimed[p.ID] {
			add(Drift{
				Kind:       DriftOrphanEntity,
				SchemaName: p.SchemaName,
				PropertyID: p.ID,
				Detail:     "no schema lists this property",
			})
		}
	}

	sort.SliceStable(report.Drifts, func(i, j int) bool {
		a, b := report.Drifts[i], report.Drifts[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.SchemaID != b.SchemaID {
			return a.SchemaID < b.SchemaID
		}
		return a.PropertyID < b.PropertyID
	})
	return report, nil
}
