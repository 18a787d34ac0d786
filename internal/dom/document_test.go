package dom

import (
	"strings"
	"testing"

	"github.com/livefir/blogpage/internal/patch"
)

const testPage = `<!DOCTYPE html>
<html><body>
<div id="comments">
  <div id="comment-1">
    <div id="comment-contents-1"><p id="comment-contents-paragraph-1">
      First comment
    </p></div>
  </div>
  <div id="comment-2">
    <div id="comment-contents-2"><p id="comment-contents-paragraph-2">Second</p></div>
  </div>
</div>
<form id="comment-reply-form" hidden>
  <input type="hidden" id="comment-reply-form-id" name="parent_comment_id">
</form>
<form id="edit-comment-form" action="" hidden>
  <textarea id="edit-comment-form-contents" name="contents">old</textarea>
</form>
<input id="it's" value="quoted">
</body></html>`

func mustParse(t *testing.T) *Document {
	t.Helper()
	doc, err := ParseString(testPage)
	if err != nil {
		t.Fatalf("ParseString failed: %v", err)
	}
	return doc
}

func TestByID(t *testing.T) {
	doc := mustParse(t)

	tests := []struct {
		id   string
		want bool
	}{
		{"comment-1", true},
		{"comment-contents-paragraph-2", true},
		{"comment-99", false},
		{"", false},
		{"it's", true},
		{`both'"quotes`, false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := doc.Exists(tt.id); got != tt.want {
				t.Errorf("Exists(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestShowHide(t *testing.T) {
	doc := mustParse(t)

	if doc.Visible("comment-reply-form") {
		t.Fatal("reply form should start hidden")
	}
	if !doc.Show("comment-reply-form") {
		t.Fatal("Show returned false for existing element")
	}
	if !doc.Visible("comment-reply-form") {
		t.Error("reply form should be visible after Show")
	}
	doc.Hide("comment-reply-form")
	if doc.Visible("comment-reply-form") {
		t.Error("reply form should be hidden after Hide")
	}
	if doc.Show("nope") || doc.Hide("nope") {
		t.Error("Show/Hide on missing element should report false")
	}
}

func TestTextIsTrimmed(t *testing.T) {
	doc := mustParse(t)

	if got := doc.Text("comment-contents-paragraph-1"); got != "First comment" {
		t.Errorf("Text = %q, want %q", got, "First comment")
	}
	if got := doc.Text("missing"); got != "" {
		t.Errorf("Text on missing element = %q, want empty", got)
	}
}

func TestSetValue(t *testing.T) {
	doc := mustParse(t)

	doc.SetValue("comment-reply-form-id", "7")
	if got := doc.Value("comment-reply-form-id"); got != "7" {
		t.Errorf("input value = %q, want 7", got)
	}

	doc.SetValue("edit-comment-form-contents", "a <b> & c")
	if got := doc.Value("edit-comment-form-contents"); got != "a <b> & c" {
		t.Errorf("textarea value = %q", got)
	}
	if !strings.Contains(doc.String(), "a &lt;b&gt; &amp; c") {
		t.Error("textarea contents should be escaped on render")
	}
}

func TestInsertAfter(t *testing.T) {
	doc := mustParse(t)

	if !doc.InsertAfter("comment-reply-form", "comment-2") {
		t.Fatal("InsertAfter failed")
	}
	if got := doc.NextElementID("comment-2"); got != "comment-reply-form" {
		t.Errorf("after comment-2 = %q, want comment-reply-form", got)
	}

	// Moving again detaches from the previous position.
	doc.InsertAfter("comment-reply-form", "comment-1")
	if got := doc.NextElementID("comment-1"); got != "comment-reply-form" {
		t.Errorf("after comment-1 = %q, want comment-reply-form", got)
	}
	if got := doc.NextElementID("comment-2"); got == "comment-reply-form" {
		t.Error("form still follows comment-2")
	}
	if n := strings.Count(doc.String(), `id="comment-reply-form"`); n != 1 {
		t.Errorf("reply form rendered %d times, want 1", n)
	}
}

func TestInsertAfterNoOps(t *testing.T) {
	doc := mustParse(t)
	before := doc.String()

	if doc.InsertAfter("comment-reply-form", "comment-404") {
		t.Error("missing anchor should be a no-op")
	}
	if doc.InsertAfter("missing-form", "comment-1") {
		t.Error("missing target should be a no-op")
	}
	if doc.InsertAfter("comment-1", "comment-contents-1") {
		t.Error("anchor inside target should be a no-op")
	}
	if doc.String() != before {
		t.Error("document changed after no-op inserts")
	}
}

func TestApplyReportsMisses(t *testing.T) {
	doc := mustParse(t)

	missed := doc.Apply([]patch.Patch{
		patch.SetValue("comment-reply-form-id", "2"),
		patch.InsertAfter("comment-reply-form", "comment-2"),
		patch.Show("comment-reply-form"),
		patch.Hide("comment-contents-paragraph-9"),
		patch.CopyText("edit-comment-form-contents", "comment-contents-paragraph-1"),
	})

	if len(missed) != 1 || missed[0].Target != "comment-contents-paragraph-9" {
		t.Errorf("missed = %v, want only the hide of paragraph 9", missed)
	}
	if !doc.Visible("comment-reply-form") {
		t.Error("reply form not visible")
	}
	if got := doc.Value("edit-comment-form-contents"); got != "First comment" {
		t.Errorf("textarea = %q, want trimmed paragraph text", got)
	}
}

func TestCopyTextFromMissingSource(t *testing.T) {
	doc := mustParse(t)

	missed := doc.Apply([]patch.Patch{patch.CopyText("edit-comment-form-contents", "comment-contents-paragraph-404")})
	if len(missed) != 0 {
		t.Errorf("missed = %v, want none", missed)
	}
	if got := doc.Value("edit-comment-form-contents"); got != "" {
		t.Errorf("textarea = %q, want empty", got)
	}
}
