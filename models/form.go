package models

// FieldDescriptor is the materialized state of a single registration field.
type FieldDescriptor struct {
	FieldName  string `json:"fieldName"`
	Value      any    `json:"value"`
	Label      string `json:"label"`
	Required   bool   `json:"required"`
	ReadOnly   bool   `json:"readOnly"`
	Error      bool   `json:"error"`
	HelperText string `json:"helperText"`
}

// FormState is the ordered set of field descriptors for the active step.
// Field names are unique.
type FormState struct {
	Fields []FieldDescriptor `json:"fields"`
}

// Names returns the field names in order.
func (f FormState) Names() []string {
	out := make([]string, 0, len(f.Fields))
	for _, field := range f.Fields {
		out = append(out, field.FieldName)
	}
	return out
}

// Field returns a pointer to the named descriptor so callers can patch it in place.
func (f *FormState) Field(name string) (*FieldDescriptor, bool) {
	for i := range f.Fields {
		if f.Fields[i].FieldName == name {
			return &f.Fields[i], true
		}
	}
	return nil, false
}

// Has reports whether the form holds the named field.
func (f FormState) Has(name string) bool {
	_, ok := f.Field(name)
	return ok
}

// StringValue returns the field's value when it is a string.
func (f FormState) StringValue(name string) (string, bool) {
	field, ok := f.Field(name)
	if !ok {
		return "", false
	}
	s, ok := field.Value.(string)
	return s, ok
}

// Clone returns a deep copy of the descriptor list.
func (f FormState) Clone() FormState {
	out := FormState{Fields: make([]FieldDescriptor, len(f.Fields))}
	copy(out.Fields, f.Fields)
	return out
}
