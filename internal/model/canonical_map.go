package model

// CanonicalMap converts a property into the map form accepted by
// MarshalCanonical. Optional fields are omitted when empty.
func (p Property) CanonicalMap() map[string]any {
	typ := map[string]any{"kind": string(p.Type.Kind)}
	if len(p.Type.Values) > 0 {
		typ["values"] = append([]string(nil), p.Type.Values...)
	}
	m := map[string]any{
		"id":           p.ID,
		"propertyName": p.Name,
		"type":         typ,
	}
	if p.SchemaName != "" {
		m["schemaName"] = p.SchemaName
	}
	return m
}

// CanonicalMap converts a schema document into canonical map form.
func (s Schema) CanonicalMap() map[string]any {
	ids := s.PropertyIDs
	if ids == nil {
		ids = []string{}
	}
	return map[string]any{
		"id":               s.ID,
		"schemaName":       s.Name,
		"schemaProperties": ids,
		"createdAt":        s.CreatedAt,
		"updatedAt":        s.UpdatedAt,
		"version":          s.Version,
	}
}

// CanonicalMap converts an aggregate into canonical map form, with the
// resolved properties under "properties".
func (a Aggregate) CanonicalMap() map[string]any {
	m := a.Schema.CanonicalMap()
	props := make([]any, len(a.Properties))
	for i, p := range a.Properties {
		props[i] = p.CanonicalMap()
	}
	m["properties"] = props
	return m
}
