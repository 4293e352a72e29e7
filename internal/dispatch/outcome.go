package dispatch

// Outcome is the tagged result of one dispatch: exactly one of Payload or
// Err is set.
type Outcome struct {
	Method Method
	Key    string
	// Payload is the executor's record list.
	Payload any
	Err     *Error
}

func succeeded(method Method, key string, payload any) Outcome {
	return Outcome{Method: method, Key: key, Payload: payload}
}

func failed(method Method, err *Error) Outcome {
	return Outcome{Method: method, Err: err}
}

// OK reports whether the dispatch succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Label is the metrics outcome label: "success" or the error kind.
func (o Outcome) Label() string {
	if o.OK() {
		return "success"
	}
	return string(o.Err.Kind)
}

// Envelope is the caller-facing response body.
type Envelope struct {
	Data      map[string]any `json:"data"`
	ErrorText *string        `json:"errorText"`
}

// Normalize packages an outcome as an Envelope. Success carries the payload
// under the method's key; failure carries only the error text.
func Normalize(o Outcome) Envelope {
	if !o.OK() {
		text := o.Err.PublicMessage()
		return Envelope{ErrorText: &text}
	}

	return Envelope{
		Data: map[string]any{o.Key: o.Payload},
	}
}
