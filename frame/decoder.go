package frame

import (
	"bytes"
	"context"
	"errors"
	"io"
	"iter"
)

const (
	// DefaultMaxLineBytes bounds a single held-back line.
	DefaultMaxLineBytes = 10 * 1024 * 1024

	readChunkSize = 32 * 1024
)

// Decoder reassembles newline-delimited JSON from arbitrary chunks.
// The zero value is ready to use. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	maxLine int
	// dropping is set while discarding the tail of an overlong line.
	dropping bool
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxLineBytes caps the size of a line. Longer lines are emitted as a
// truncated raw-unparsed message and the rest of the line is discarded.
func WithMaxLineBytes(n int) DecoderOption {
	return func(d *Decoder) { d.maxLine = n }
}

// NewDecoder returns a Decoder.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{maxLine: DefaultMaxLineBytes}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) limit() int {
	if d.maxLine <= 0 {
		return DefaultMaxLineBytes
	}
	return d.maxLine
}

// Feed consumes one chunk and returns every message completed by it.
// An incomplete trailing line is held until the next Feed or Flush.
func (d *Decoder) Feed(chunk []byte) []Message {
	var out []Message
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.hold(chunk, &out)
			break
		}

		if d.dropping {
			d.dropping = false
		} else {
			d.buf = append(d.buf, chunk[:i]...)
			if msg, ok := d.line(d.buf); ok {
				out = append(out, msg)
			}
		}
		d.buf = d.buf[:0]
		chunk = chunk[i+1:]
	}
	return out
}

// hold buffers a partial line, enforcing the line cap.
func (d *Decoder) hold(part []byte, out *[]Message) {
	if d.dropping {
		return
	}
	d.buf = append(d.buf, part...)
	if len(d.buf) > d.limit() {
		*out = append(*out, Message{Kind: KindRawUnparsed, Text: string(d.buf[:d.limit()])})
		d.buf = d.buf[:0]
		d.dropping = true
	}
}

// Flush decodes a held-back partial line at end of stream.
func (d *Decoder) Flush() []Message {
	defer func() {
		d.buf = d.buf[:0]
		d.dropping = false
	}()
	if d.dropping {
		return nil
	}
	if msg, ok := d.line(d.buf); ok {
		return []Message{msg}
	}
	return nil
}

// Pending returns the number of held-back bytes.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

func (d *Decoder) line(b []byte) (Message, bool) {
	b = bytes.TrimSuffix(b, []byte{'\r'})
	if len(bytes.TrimSpace(b)) == 0 {
		return Message{}, false
	}
	if len(b) > d.limit() {
		return Message{Kind: KindRawUnparsed, Text: string(b[:d.limit()])}, true
	}
	return Classify(b), true
}

// All returns a lazy sequence of messages read from r. Iteration stops at
// EOF; any other read error is yielded once as the final element.
func All(r io.Reader, opts ...DecoderOption) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		d := NewDecoder(opts...)
		chunk := make([]byte, readChunkSize)
		for {
			n, err := r.Read(chunk)
			for _, msg := range d.Feed(chunk[:n]) {
				if !yield(msg, nil) {
					return
				}
			}
			if err != nil {
				for _, msg := range d.Flush() {
					if !yield(msg, nil) {
						return
					}
				}
				if !errors.Is(err, io.EOF) {
					yield(Message{}, err)
				}
				return
			}
		}
	}
}

// Pump decodes r into out until EOF, a read error or ctx cancellation.
// It does not close out. io.EOF is reported as nil.
func Pump(ctx context.Context, r io.Reader, out chan<- Message, opts ...DecoderOption) error {
	for msg, err := range All(r, opts...) {
		if err != nil {
			return err
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
