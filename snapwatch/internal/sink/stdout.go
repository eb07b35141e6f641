// CLAUDE:SUMMARY Writes snapwatch events as {type,data} JSON lines to an io.Writer (stdout by default).
package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/snaptrail/snapwatch/event"
)

// Stdout writes one JSON envelope per line.
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. A nil w means os.Stdout.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) write(typ string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(envelope{Type: typ, Data: data})
}

func (s *Stdout) Send(_ context.Context, d event.Dispatch) error {
	return s.write(TypeDispatch, d)
}

func (s *Stdout) SendCompletion(_ context.Context, c event.Completion) error {
	return s.write(TypeCompletion, c)
}

func (s *Stdout) SendRecord(_ context.Context, r event.Record) error {
	return s.write(TypeRecord, r)
}

func (s *Stdout) Close() error { return nil }
