/*
Package server implements msgpack IPC between a search input and the
completion engine.

The host sends one msgpack map per event over stdin and reads responses from
stdout. Each request names an op and carries an ID echoed in the response:

	{"id": "7", "op": "text", "t": "env:pr"}

The response is the engine state after the event:

	{"id": "7", "t": "env:pr", "c": 6, "p": "value", "fd": "env", "ld": true, "o": true, "s": []}

When a vocabulary arrives in the background the server pushes an unsolicited
state with "ev": "update" and no ID, so the host can re-render:

	{"ev": "update", "t": "env:pr", "c": 6, "s": [{"l": "prod", "k": "value", "h": 12}], "o": true}

# Ops

	text    {"t"}            replace the text, cursor follows the end
	cursor  {"c"}            move the cursor
	edit    {"t", "c"}       replace both
	select  {"v"}            apply a suggestion, the response holds new text and cursor
	submit  {}               close suggestions, answers {"q": text}
	fields  {"f"}            start a new search context with a new field list
	range   {"s", "e"}       set the time range in unix millis, 0 is open
	state   {}               current state
	health  {}               counters

Malformed requests get {"id", "e": message, "c": 400}. Writes are serialised,
so pushed updates never interleave with a response.

Every state carries "ver", which grows with each engine state change. A
response can still reach the host after a newer pushed update; hosts render a
frame only if its "ver" is above the last one rendered. Pushed updates older
than a frame already written are not sent at all.
*/
package server

// Request is one host event.
type Request struct {
	ID        string   `msgpack:"id"`
	Op        string   `msgpack:"op"`
	Text      string   `msgpack:"t,omitempty"`
	Cursor    *int     `msgpack:"c,omitempty"`
	Candidate string   `msgpack:"v,omitempty"`
	Fields    []string `msgpack:"f,omitempty"`
	Start     int64    `msgpack:"s,omitempty"`
	End       int64    `msgpack:"e,omitempty"`
}

// SuggestionItem - minimal suggestion
type SuggestionItem struct {
	Label string `msgpack:"l"`
	Kind  string `msgpack:"k"`
	Hits  int    `msgpack:"h,omitempty"`
}

// StateResponse carries the engine state. Event is "update" for pushed frames.
type StateResponse struct {
	ID           string           `msgpack:"id,omitempty"`
	Event        string           `msgpack:"ev,omitempty"`
	Text         string           `msgpack:"t"`
	Cursor       int              `msgpack:"c"`
	Phase        string           `msgpack:"p"`
	Field        string           `msgpack:"fd,omitempty"`
	Prefix       string           `msgpack:"px"`
	ReplaceStart int              `msgpack:"rs"`
	ReplaceEnd   int              `msgpack:"re"`
	Suggestions  []SuggestionItem `msgpack:"s"`
	Open         bool             `msgpack:"o"`
	Loading      bool             `msgpack:"ld"`
	NoMatch      bool             `msgpack:"nm"`
	Version      uint64           `msgpack:"ver"`
	// TimeTaken is in microseconds.
	TimeTaken int64 `msgpack:"tt,omitempty"`
}

// SubmitResponse returns the submitted query verbatim.
type SubmitResponse struct {
	ID    string `msgpack:"id"`
	Query string `msgpack:"q"`
}

// StatusResponse answers health checks and announces readiness.
type StatusResponse struct {
	ID     string         `msgpack:"id,omitempty"`
	Status string         `msgpack:"st"`
	Stats  map[string]int `msgpack:"stats,omitempty"`
}

// ErrorResponse holds basic error information
type ErrorResponse struct {
	ID    string `msgpack:"id"`
	Error string `msgpack:"e"`
	Code  int    `msgpack:"c"`
}
