package blogpage

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/livefir/blogpage/internal/dom"
	"github.com/livefir/blogpage/internal/patch"
	"github.com/livefir/blogpage/internal/query"
	"github.com/livefir/blogpage/internal/relocator"
)

// Action kinds, the values of data-lvt-action
const (
	actionReply          = "reply"
	actionEdit           = "edit"
	actionDelete         = "delete"
	actionPaginate       = "paginate"
	actionTogglePassword = "toggle_password"
)

const (
	inputTypePassword = "password"
	inputTypeText     = "text"
)

// Navigator leaves the current page
type Navigator interface {
	Navigate(url string)
}

// Update is the result of one action: patches for the client, or a navigation.
type Update struct {
	Patches  []patch.Patch
	Redirect string

	// Missed counts patches whose target was not on the page
	Missed int
}

// Navigate records url as the update's redirect.
func (u *Update) Navigate(url string) {
	u.Redirect = url
}

// PageState is the per-session state of one page. It is what gets persisted.
type PageState struct {
	Forms relocator.Forms `json:"forms"`

	// Revealed holds password inputs toggled by the user, by input id
	Revealed map[string]bool `json:"revealed,omitempty"`

	// Pending marks state left by a form post for the next page load to restore
	Pending bool `json:"pending,omitempty"`
}

// Page is one rendered page with its interaction state. The document mirrors
// what the browser shows after every update.
type Page struct {
	mu       sync.Mutex
	loc      query.Location
	doc      *dom.Document
	state    PageState
	validate *validator.Validate
	logger   zerolog.Logger
}

type triggerPayload struct {
	ID string `json:"id" validate:"required,max=200"`
}

// Size arrives as a JSON number or as a data-size string
type paginatePayload struct {
	Size json.Number `json:"size" validate:"required,oneof=10 20 40"`
}

type passwordPayload struct {
	Input string `json:"input" validate:"required,max=200"`
}

type actionFunc func(p *Page, ctx *ActionContext, u *Update) error

// actions is the dispatch table keyed by action kind
var actions = map[string]actionFunc{
	actionReply:          (*Page).reply,
	actionEdit:           (*Page).edit,
	actionDelete:         (*Page).delete,
	actionPaginate:       (*Page).paginate,
	actionTogglePassword: (*Page).togglePassword,
}

// NewPage wraps a freshly rendered document. With a saved state the document is
// brought into that state; otherwise the edit state is adopted from the markup.
func NewPage(loc query.Location, doc *dom.Document, saved *PageState, validate *validator.Validate, logger zerolog.Logger) *Page {
	p := &Page{
		loc:      loc,
		doc:      doc,
		validate: validate,
		logger:   logger.With().Str("page", loc.Key()).Logger(),
	}

	if saved == nil {
		action, _ := doc.Attr(relocator.EditFormID, "action")
		p.state.Forms.Edit = relocator.EditFromAction(action, doc.Visible(relocator.EditFormID))
		return p
	}

	p.state = *saved
	p.state.Pending = false
	p.apply(p.restorePatches())
	return p
}

func (p *Page) restorePatches() []patch.Patch {
	patches := p.state.Forms.Restore(p.loc.BasePath())

	inputs := make([]string, 0, len(p.state.Revealed))
	for id := range p.state.Revealed {
		inputs = append(inputs, id)
	}
	slices.Sort(inputs)
	for _, id := range inputs {
		patches = append(patches, patch.SetAttr(id, "type", inputType(p.state.Revealed[id])))
	}
	return patches
}

// State returns a copy of the page state.
func (p *Page) State() PageState {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.state
	if p.state.Revealed != nil {
		state.Revealed = make(map[string]bool, len(p.state.Revealed))
		for k, v := range p.state.Revealed {
			state.Revealed[k] = v
		}
	}
	return state
}

// Location returns the page address.
func (p *Page) Location() query.Location {
	return p.loc
}

// Document returns the server-side mirror of the page.
func (p *Page) Document() *dom.Document {
	return p.doc
}

// Dispatch runs one action against the page. Validation failures come back as
// FieldError or MultiError and leave the page unchanged.
func (p *Page) Dispatch(ctx *ActionContext) (Update, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	handler, ok := actions[ctx.Action]
	if !ok {
		return Update{}, fmt.Errorf("%w: %q", ErrUnknownAction, ctx.Action)
	}

	var u Update
	if err := handler(p, ctx, &u); err != nil {
		return Update{}, err
	}
	u.Missed = p.apply(u.Patches)

	return u, nil
}

// apply effects patches on the mirror and reports how many found no target
func (p *Page) apply(patches []patch.Patch) int {
	missed := p.doc.Apply(patches)
	for _, m := range missed {
		p.logger.Debug().Stringer("patch", m).Msg("patch target not found")
	}
	return len(missed)
}

func (p *Page) reply(ctx *ActionContext, u *Update) error {
	var payload triggerPayload
	if err := ctx.BindAndValidate(&payload, p.validate); err != nil {
		return err
	}

	patches, ok := p.state.Forms.OnReplyClicked(payload.ID)
	if !ok {
		p.logger.Debug().Str("trigger", payload.ID).Msg("not a reply trigger")
		return nil
	}
	u.Patches = patches
	return nil
}

func (p *Page) edit(ctx *ActionContext, u *Update) error {
	var payload triggerPayload
	if err := ctx.BindAndValidate(&payload, p.validate); err != nil {
		return err
	}

	patches, ok := p.state.Forms.OnEditClicked(payload.ID, p.loc.BasePath())
	if !ok {
		p.logger.Debug().Str("trigger", payload.ID).Msg("not an edit trigger")
		return nil
	}
	u.Patches = patches
	return nil
}

func (p *Page) delete(ctx *ActionContext, u *Update) error {
	var payload triggerPayload
	if err := ctx.BindAndValidate(&payload, p.validate); err != nil {
		return err
	}

	url, ok := relocator.OnDeleteClicked(payload.ID, p.loc)
	if !ok {
		p.logger.Debug().Str("trigger", payload.ID).Msg("not a delete trigger")
		return nil
	}
	u.Navigate(url)
	return nil
}

func (p *Page) paginate(ctx *ActionContext, u *Update) error {
	var payload paginatePayload
	if err := ctx.BindAndValidate(&payload, p.validate); err != nil {
		return err
	}

	size, err := strconv.Atoi(payload.Size.String())
	if err != nil {
		return NewFieldError("size", err)
	}
	url, err := query.PaginateURL(p.loc, size)
	if err != nil {
		return NewFieldError("size", err)
	}
	u.Navigate(url)
	return nil
}

func (p *Page) togglePassword(ctx *ActionContext, u *Update) error {
	var payload passwordPayload
	if err := ctx.BindAndValidate(&payload, p.validate); err != nil {
		return err
	}

	revealed := !p.revealed(payload.Input)
	if p.state.Revealed == nil {
		p.state.Revealed = make(map[string]bool)
	}
	p.state.Revealed[payload.Input] = revealed

	u.Patches = []patch.Patch{patch.SetAttr(payload.Input, "type", inputType(revealed))}
	return nil
}

// revealed reports whether input currently shows its text. Inputs not yet
// toggled take their type from the document.
func (p *Page) revealed(input string) bool {
	if v, ok := p.state.Revealed[input]; ok {
		return v
	}
	t, _ := p.doc.Attr(input, "type")
	return t == inputTypeText
}

func inputType(revealed bool) string {
	if revealed {
		return inputTypeText
	}
	return inputTypePassword
}
