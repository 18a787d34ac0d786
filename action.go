package blogpage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// ErrUnknownAction is returned for an action kind with no handler
var ErrUnknownAction = errors.New("unknown action")

// formActionField is the form field carrying "kind:arg" on no-script posts
const formActionField = "lvt"

// message represents an action message from the client (internal protocol)
type message struct {
	Action string                 `json:"action"` // Action kind, the trigger's data-lvt-action value
	Data   map[string]interface{} `json:"data"`   // Trigger id, data-* attributes and the page href
}

// ActionData wraps action data with utilities for binding and validation
type ActionData struct {
	raw   map[string]interface{}
	bytes []byte // Cached JSON for efficient binding
}

// newActionData creates ActionData from a map (internal use only)
func newActionData(data map[string]interface{}) *ActionData {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &ActionData{raw: data}
}

// Bind unmarshals the data into a struct
func (a *ActionData) Bind(v interface{}) error {
	// Lazy marshal to JSON
	if a.bytes == nil {
		var err error
		a.bytes, err = json.Marshal(a.raw)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}

	return json.Unmarshal(a.bytes, v)
}

// BindAndValidate binds data to struct and validates it in one step
func (a *ActionData) BindAndValidate(v interface{}, validate *validator.Validate) error {
	if err := a.Bind(v); err != nil {
		return err
	}

	if err := validate.Struct(v); err != nil {
		return ValidationToMultiError(err)
	}

	return nil
}

// GetString extracts a string value
func (a *ActionData) GetString(key string) string {
	if v, ok := a.raw[key].(string); ok {
		return v
	}
	return ""
}

// ActionContext provides context for one dispatched action
type ActionContext struct {
	Action string
	Data   *ActionData
}

// BindAndValidate is a convenience method
func (c *ActionContext) BindAndValidate(v interface{}, validate *validator.Validate) error {
	return c.Data.BindAndValidate(v, validate)
}

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewFieldError creates a field-specific error
func NewFieldError(field string, err error) FieldError {
	return FieldError{Field: field, Message: err.Error()}
}

// MultiError is a collection of field errors (implements error interface)
type MultiError []FieldError

func (m MultiError) Error() string {
	if len(m) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range m {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidationToMultiError converts go-playground/validator errors to MultiError
func ValidationToMultiError(err error) MultiError {
	var fieldErrors MultiError

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fieldErrors
	}

	for _, e := range validationErrs {
		fieldName := strings.ToLower(e.Field())

		var message string
		switch e.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", e.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of %s", e.Field(), e.Param())
		default:
			message = fmt.Sprintf("%s is invalid", e.Field())
		}

		fieldErrors = append(fieldErrors, FieldError{
			Field:   fieldName,
			Message: message,
		})
	}

	return fieldErrors
}

// errorFields maps a dispatch error onto response metadata fields
func errorFields(err error) map[string]string {
	fields := make(map[string]string)

	var fieldErr FieldError
	var multiErr MultiError
	switch {
	case errors.As(err, &multiErr):
		for _, e := range multiErr {
			fields[e.Field] = e.Message
		}
	case errors.As(err, &fieldErr):
		fields[fieldErr.Field] = fieldErr.Message
	default:
		fields["_general"] = err.Error()
	}

	return fields
}

// formArgField names the payload field a no-script "kind:arg" value fills
var formArgField = map[string]string{
	actionReply:          "id",
	actionEdit:           "id",
	actionDelete:         "id",
	actionPaginate:       "size",
	actionTogglePassword: "input",
}

// parseActionFromHTTP parses an action message from HTTP POST request body (internal protocol)
func parseActionFromHTTP(r *http.Request) (message, error) {
	var msg message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		return message{}, fmt.Errorf("failed to parse action: %w", err)
	}

	// Ensure data map is initialized
	if msg.Data == nil {
		msg.Data = make(map[string]interface{})
	}

	return msg, nil
}

// parseActionFromForm parses a no-script form post whose lvt field holds "kind:arg"
func parseActionFromForm(r *http.Request) (message, error) {
	if err := r.ParseForm(); err != nil {
		return message{}, fmt.Errorf("failed to parse form: %w", err)
	}

	return parseActionValue(r.PostForm.Get(formActionField))
}

func parseActionValue(value string) (message, error) {
	kind, arg, _ := strings.Cut(value, ":")
	if kind == "" {
		return message{}, fmt.Errorf("failed to parse action: missing %s field", formActionField)
	}

	msg := message{Action: kind, Data: make(map[string]interface{})}
	if field, ok := formArgField[kind]; ok && arg != "" {
		msg.Data[field] = arg
	}

	return msg, nil
}

// ParseActionValue builds an action from the "kind:arg" form used by no-script
// posts, e.g. "edit:edit-comment-5" or "paginate:20"
func ParseActionValue(value string) (*ActionContext, error) {
	msg, err := parseActionValue(value)
	if err != nil {
		return nil, err
	}
	return &ActionContext{Action: msg.Action, Data: newActionData(msg.Data)}, nil
}

// parseActionFromWebSocket parses an action message from WebSocket message bytes (internal protocol)
func parseActionFromWebSocket(data []byte) (message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return message{}, fmt.Errorf("failed to parse action: %w", err)
	}

	// Ensure data map is initialized
	if msg.Data == nil {
		msg.Data = make(map[string]interface{})
	}

	return msg, nil
}

// writeUpdateWebSocket writes an encoded update to WebSocket connection (internal protocol)
func writeUpdateWebSocket(conn *websocket.Conn, update []byte) error {
	return conn.WriteMessage(websocket.TextMessage, update)
}
