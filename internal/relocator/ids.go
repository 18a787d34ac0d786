package relocator

import "strings"

// Trigger element id prefixes.
const (
	ReplyPrefix  = "reply-comment-"
	EditPrefix   = "edit-comment-"
	DeletePrefix = "delete-comment-"
)

// Singleton form element ids.
const (
	ReplyFormID         = "comment-reply-form"
	ReplyParentFieldID  = "comment-reply-form-id"
	EditFormID          = "edit-comment-form"
	EditFormContentsID  = "edit-comment-form-contents"
	commentPrefix       = "comment-"
	contentsPrefix      = "comment-contents-"
	contentsParagraphID = "comment-contents-paragraph-"
)

// CommentID identifies a rendered comment.
type CommentID string

// ParseTrigger strips prefix from a trigger element id. It reports false when the
// prefix is absent or nothing follows it.
func ParseTrigger(elementID, prefix string) (CommentID, bool) {
	id, ok := strings.CutPrefix(elementID, prefix)
	if !ok || id == "" {
		return "", false
	}
	return CommentID(id), true
}

// CommentElementID is the id of the comment's outer element.
func CommentElementID(id CommentID) string {
	return commentPrefix + string(id)
}

// ContentsID is the id of the element wrapping the comment's contents.
func ContentsID(id CommentID) string {
	return contentsPrefix + string(id)
}

// ParagraphID is the id of the paragraph holding the comment's rendered text.
func ParagraphID(id CommentID) string {
	return contentsParagraphID + string(id)
}
