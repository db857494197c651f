package hub

import (
	"github.com/valyala/fastjson"
)

// Envelope is the client-submitted description of a message before it is
// classified and persisted.
type Envelope struct {
	ReceiverID  *int64
	GroupID     *int64
	ContentType string
	Content     string
}

// ValidationError reports a malformed send_message payload. Such payloads are
// acknowledged with an error to the sender and never crash the connection.
type ValidationError struct {
	reason string
}

func (e *ValidationError) Error() string { return e.reason }

func validationErrorf(reason string) error {
	return &ValidationError{reason: reason}
}

var contentTypes = map[string]struct{}{
	"text":  {},
	"image": {},
	"video": {},
	"file":  {},
}

// parseEnvelope validates the "data" object of a send_message event.
// receiver_id and group_id may be absent or null; content_type is a strict
// tagged variant, unknown variants are rejected rather than passed through.
func parseEnvelope(v *fastjson.Value) (Envelope, error) {
	if v == nil || v.Type() != fastjson.TypeObject {
		return Envelope{}, validationErrorf(`Missing field "data"`)
	}

	var env Envelope

	receiverID, err := optionalID(v, "receiver_id")
	if err != nil {
		return Envelope{}, err
	}
	env.ReceiverID = receiverID

	groupID, err := optionalID(v, "group_id")
	if err != nil {
		return Envelope{}, err
	}
	env.GroupID = groupID

	contentTypeValue := v.Get("content_type")
	if contentTypeValue == nil || contentTypeValue.Type() != fastjson.TypeString {
		return Envelope{}, validationErrorf(`Field "content_type" must be a string`)
	}
	env.ContentType = string(contentTypeValue.GetStringBytes())
	if _, ok := contentTypes[env.ContentType]; !ok {
		return Envelope{}, validationErrorf(`Field "content_type" must be one of "text", "image", "video", "file"`)
	}

	contentValue := v.Get("content")
	if contentValue == nil || contentValue.Type() != fastjson.TypeString {
		return Envelope{}, validationErrorf(`Field "content" must be a string`)
	}
	env.Content = string(contentValue.GetStringBytes())
	if len(env.Content) == 0 {
		return Envelope{}, validationErrorf(`Field "content" must have non-zero length`)
	}

	return env, nil
}

// optionalID reads a nullable positive integer field
func optionalID(v *fastjson.Value, field string) (*int64, error) {
	value := v.Get(field)
	if value == nil || value.Type() == fastjson.TypeNull {
		return nil, nil
	}

	id, err := value.Int64()
	if err != nil {
		return nil, validationErrorf(`Field "` + field + `" must be a 64-bit integer value`)
	}
	if id < 1 {
		return nil, validationErrorf(`Field "` + field + `" must be a valid id greater than zero`)
	}

	return &id, nil
}
