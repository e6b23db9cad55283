package connection

// The driver speaks one JSON object per frame:
//
//	Request:  {id, guid, method, params}
//	Response: {id, result} or {id, error}
//	Event:    {guid, method, params}
//
// An event with method "__create__" announces a new remote object; its params
// carry the object's type, guid and initializer. Any value shaped {"guid": s}
// inside params, result or initializer is a reference to another object.
type message struct {
	ID     int            `json:"id,omitempty"`
	Guid   string         `json:"guid,omitempty"`
	Method string         `json:"method,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  *errorPayload  `json:"error,omitempty"`
}

type errorPayload struct {
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

const createMethod = "__create__"
