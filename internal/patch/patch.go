// Package patch defines the DOM commands produced by page actions. Patches are
// serializable so the same list can be applied to the server-side page mirror and
// sent to the browser client.
package patch

import "fmt"

// Op is the type of patch operation.
type Op uint8

const (
	OpSetValue    Op = iota + 1 // Set input value or textarea contents
	OpSetAttr                   // Set/update attribute
	OpShow                      // Make element visible
	OpHide                      // Hide element
	OpInsertAfter               // Move element to follow the anchor
	OpCopyText                  // Set input value to the trimmed text of the source
)

var opNames = map[Op]string{
	OpSetValue:    "set_value",
	OpSetAttr:     "set_attr",
	OpShow:        "show",
	OpHide:        "hide",
	OpInsertAfter: "insert_after",
	OpCopyText:    "copy_text",
}

// String returns the wire name of the op.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// MarshalText encodes the op by its wire name.
func (op Op) MarshalText() ([]byte, error) {
	name, ok := opNames[op]
	if !ok {
		return nil, fmt.Errorf("unknown patch op %d", uint8(op))
	}
	return []byte(name), nil
}

// UnmarshalText decodes an op from its wire name.
func (op *Op) UnmarshalText(b []byte) error {
	for k, v := range opNames {
		if v == string(b) {
			*op = k
			return nil
		}
	}
	return fmt.Errorf("unknown patch op %q", b)
}

// Patch is a single DOM command. Target, Anchor and Source are element ids.
type Patch struct {
	Op     Op     `json:"op"`
	Target string `json:"target"`
	Anchor string `json:"anchor,omitempty"`
	Source string `json:"source,omitempty"`
	Attr   string `json:"attr,omitempty"`
	Value  string `json:"value,omitempty"`
}

func (p Patch) String() string {
	switch p.Op {
	case OpSetValue:
		return fmt.Sprintf("%s #%s = %q", p.Op, p.Target, p.Value)
	case OpSetAttr:
		return fmt.Sprintf("%s #%s[%s] = %q", p.Op, p.Target, p.Attr, p.Value)
	case OpInsertAfter:
		return fmt.Sprintf("%s #%s after #%s", p.Op, p.Target, p.Anchor)
	case OpCopyText:
		return fmt.Sprintf("%s #%s from #%s", p.Op, p.Target, p.Source)
	default:
		return fmt.Sprintf("%s #%s", p.Op, p.Target)
	}
}

func SetValue(target, value string) Patch {
	return Patch{Op: OpSetValue, Target: target, Value: value}
}

func SetAttr(target, attr, value string) Patch {
	return Patch{Op: OpSetAttr, Target: target, Attr: attr, Value: value}
}

func Show(target string) Patch {
	return Patch{Op: OpShow, Target: target}
}

func Hide(target string) Patch {
	return Patch{Op: OpHide, Target: target}
}

// InsertAfter moves target so that it immediately follows anchor.
func InsertAfter(target, anchor string) Patch {
	return Patch{Op: OpInsertAfter, Target: target, Anchor: anchor}
}

// CopyText fills target with the whitespace-trimmed text of source.
func CopyText(target, source string) Patch {
	return Patch{Op: OpCopyText, Target: target, Source: source}
}
