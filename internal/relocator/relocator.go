// Package relocator decides where the page's shared reply and edit forms go.
//
// Each form is a singleton with an explicit state. Transitions are pure; the patches
// that realise a transition are computed separately so the decision logic can be
// tested without a document.
package relocator

import (
	"regexp"

	"github.com/livefir/blogpage/internal/patch"
	"github.com/livefir/blogpage/internal/query"
)

// ReplyState is the reply form's state. The zero value is hidden.
type ReplyState struct {
	Target CommentID `json:"target,omitempty"`
}

// Active reports whether the reply form is shown under a comment.
func (s ReplyState) Active() bool {
	return s.Target != ""
}

// Open targets the reply form at id. Only one comment can hold it.
func (s ReplyState) Open(id CommentID) ReplyState {
	return ReplyState{Target: id}
}

// RenderReply returns the patches that put the reply form into state s.
func RenderReply(s ReplyState) []patch.Patch {
	if !s.Active() {
		return []patch.Patch{patch.Hide(ReplyFormID)}
	}
	return []patch.Patch{
		patch.SetValue(ReplyParentFieldID, string(s.Target)),
		patch.InsertAfter(ReplyFormID, CommentElementID(s.Target)),
		patch.Show(ReplyFormID),
	}
}

// EditState is the edit form's state. The zero value is closed.
//
// A state with a target and Hidden set comes from a page rendered with the form
// hidden but still carrying a comment's action: nothing is being edited, but that
// comment's text is revealed when the editor moves.
type EditState struct {
	Target CommentID `json:"target,omitempty"`
	Hidden bool      `json:"hidden,omitempty"`
}

// Closed is the state with no comment being edited.
func Closed() EditState {
	return EditState{}
}

// Editing is the state with id being edited.
func Editing(id CommentID) EditState {
	return EditState{Target: id}
}

// Parked is the state of a hidden form left with id's action.
func Parked(id CommentID) EditState {
	return EditState{Target: id, Hidden: true}
}

// Open reports whether a comment is being edited.
func (s EditState) Open() bool {
	return s.Target != "" && !s.Hidden
}

// Toggle handles an edit click on id. Clicking the comment already being edited
// closes the editor; any other click moves it to id.
func (s EditState) Toggle(id CommentID) EditState {
	if s.Open() && s.Target == id {
		return Closed()
	}
	return Editing(id)
}

// RenderEdit returns the patches for moving the edit form from prev to next. The
// previous target's text is revealed before anything else happens.
func RenderEdit(prev, next EditState, basePath string) []patch.Patch {
	var patches []patch.Patch
	if prev.Target != "" {
		patches = append(patches, patch.Show(ParagraphID(prev.Target)))
	}

	if !next.Open() {
		return append(patches,
			patch.SetAttr(EditFormID, "action", ""),
			patch.Hide(EditFormID),
		)
	}

	id := next.Target
	return append(patches,
		patch.Show(EditFormID),
		patch.SetAttr(EditFormID, "action", EditAction(basePath, id)),
		patch.Hide(ParagraphID(id)),
		patch.CopyText(EditFormContentsID, ParagraphID(id)),
		patch.InsertAfter(EditFormID, ContentsID(id)),
	)
}

var editActionPattern = regexp.MustCompile(`comments/(.*)/edit`)

// EditFromAction recovers the edit state from a rendered form. An empty or
// malformed action means no previous target; a hidden form keeps the target parked.
func EditFromAction(action string, visible bool) EditState {
	if action == "" {
		return Closed()
	}
	m := editActionPattern.FindStringSubmatch(action)
	if m == nil || m[1] == "" {
		return Closed()
	}
	if !visible {
		return Parked(CommentID(m[1]))
	}
	return Editing(CommentID(m[1]))
}

// EditAction is the edit form's submit target for id.
func EditAction(basePath string, id CommentID) string {
	return basePath + "/comments/" + string(id) + "/edit"
}

// DeleteURL is the navigation target for deleting id from the page at loc.
func DeleteURL(loc query.Location, id CommentID) string {
	return loc.Origin + loc.BasePath() + "/comments/" + string(id) + "/delete"
}

// Forms holds both singletons for one page.
type Forms struct {
	Reply ReplyState `json:"reply"`
	Edit  EditState  `json:"edit"`
}

// OnReplyClicked handles a click on a reply-comment-<id> trigger. It reports false,
// with no patches, when the element id is not a reply trigger.
func (f *Forms) OnReplyClicked(elementID string) ([]patch.Patch, bool) {
	id, ok := ParseTrigger(elementID, ReplyPrefix)
	if !ok {
		return nil, false
	}
	f.Reply = f.Reply.Open(id)
	return RenderReply(f.Reply), true
}

// OnEditClicked handles a click on an edit-comment-<id> trigger.
func (f *Forms) OnEditClicked(elementID, basePath string) ([]patch.Patch, bool) {
	id, ok := ParseTrigger(elementID, EditPrefix)
	if !ok {
		return nil, false
	}
	prev := f.Edit
	f.Edit = prev.Toggle(id)
	return RenderEdit(prev, f.Edit, basePath), true
}

// OnDeleteClicked returns the delete navigation target for a delete-comment-<id>
// trigger.
func OnDeleteClicked(elementID string, loc query.Location) (string, bool) {
	id, ok := ParseTrigger(elementID, DeletePrefix)
	if !ok {
		return "", false
	}
	return DeleteURL(loc, id), true
}

// Restore returns the patches that bring a freshly rendered page, with both forms
// hidden, into the state held by f.
func (f Forms) Restore(basePath string) []patch.Patch {
	var patches []patch.Patch
	if f.Reply.Active() {
		patches = append(patches, RenderReply(f.Reply)...)
	}
	if f.Edit.Open() {
		patches = append(patches, RenderEdit(Closed(), f.Edit, basePath)...)
	}
	return patches
}
