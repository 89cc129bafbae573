package reader

import "github.com/triagelabs/chainsaw/internal/value"

// xmlElement is a generic, format-agnostic intermediate tree shared by the
// XML reader (encoding/xml-backed) and the EVTX reader (its own binary XML
// token decoder), so both funnel through one element->Value convention.
type xmlElement struct {
	Name     string
	Attrs    []xmlAttr
	Children []*xmlElement
	Text     string
}

type xmlAttr struct {
	Name  string
	Value string
}

// elementToValue converts an element tree into a Value object using the
// convention real-world EVTX/Sigma tooling expects:
//
//   - An <EventData>/<UserData> element whose children are all <Data
//     Name="X">text</Data> collapses to an object {X: text, ...} instead of
//     an array of generic Data nodes — this is what makes a mapping like
//     "LogonType: Event.EventData.LogonType" resolve directly.
//   - Other elements: attributes become "@Name" fields; a single child tag
//     becomes a direct field; a repeated child tag becomes an array field;
//     a leaf with no children/attributes becomes its text as a string.
func elementToValue(el *xmlElement) value.Value {
	if (el.Name == "EventData" || el.Name == "UserData") && isDataCollapsible(el) {
		var fields []value.Field
		for _, c := range el.Children {
			name := attrValue(c.Attrs, "Name")
			if name == "" {
				name = c.Name
			}
			fields = append(fields, value.Field{Key: name, Val: scalarValue(c.Text)})
		}
		return value.Object(fields)
	}

	var fields []value.Field
	for _, a := range el.Attrs {
		fields = append(fields, value.Field{Key: "@" + a.Name, Val: value.String(a.Value)})
	}

	groups := map[string][]*xmlElement{}
	var order []string
	for _, c := range el.Children {
		if _, ok := groups[c.Name]; !ok {
			order = append(order, c.Name)
		}
		groups[c.Name] = append(groups[c.Name], c)
	}
	for _, name := range order {
		kids := groups[name]
		if len(kids) == 1 {
			fields = append(fields, value.Field{Key: name, Val: elementToValue(kids[0])})
			continue
		}
		arr := make([]value.Value, len(kids))
		for i, k := range kids {
			arr[i] = elementToValue(k)
		}
		fields = append(fields, value.Field{Key: name, Val: value.Array(arr)})
	}

	if len(fields) == 0 {
		return scalarValue(el.Text)
	}
	if el.Text != "" {
		fields = append(fields, value.Field{Key: "#text", Val: value.String(el.Text)})
	}
	return value.Object(fields)
}

func isDataCollapsible(el *xmlElement) bool {
	if len(el.Children) == 0 {
		return false
	}
	for _, c := range el.Children {
		if c.Name != "Data" {
			return false
		}
	}
	return true
}

func attrValue(attrs []xmlAttr, name string) string {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

// scalarValue renders leaf text as a string; numeric coercion is left to
// the tau engine's text-predicate fallback ("Text predicates
// convert non-string scalars via their canonical string form") so document
// field types stay a simple, predictable string for XML-origin leaves.
func scalarValue(text string) value.Value {
	return value.String(text)
}
