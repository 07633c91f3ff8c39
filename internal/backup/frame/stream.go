package frame

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxFrameSize bounds a single frame on read.
const MaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame: too large")

// Writer accepts frames one at a time, in order.
type Writer interface {
	WriteFrame(item Item) error
}

// StreamWriter writes a length-delimited frame stream to an io.Writer.
type StreamWriter struct {
	w      io.Writer
	header bool
	frames int
}

func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// WriteHeader writes the BackupInfo header. It must be called exactly once,
// before any frame.
func (s *StreamWriter) WriteHeader(info *BackupInfo) error {
	if s.header {
		return errors.New("frame: header already written")
	}
	if err := s.writeMessage(marshalInfo(info)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	s.header = true
	return nil
}

func (s *StreamWriter) WriteFrame(item Item) error {
	if !s.header {
		return errors.New("frame: header not written")
	}
	body, err := MarshalItem(item)
	if err != nil {
		return err
	}
	if err := s.writeMessage(body); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.frames++
	return nil
}

// Frames returns how many frames were written after the header.
func (s *StreamWriter) Frames() int { return s.frames }

func (s *StreamWriter) writeMessage(body []byte) error {
	buf := protowire.AppendVarint(make([]byte, 0, len(body)+binary.MaxVarintLen64), uint64(len(body)))
	buf = append(buf, body...)
	_, err := s.w.Write(buf)
	return err
}

// StreamReader reads a stream produced by StreamWriter.
type StreamReader struct {
	r *bufio.Reader
}

func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: bufio.NewReader(r)}
}

// ReadHeader reads the BackupInfo header. An empty stream yields
// io.ErrUnexpectedEOF.
func (s *StreamReader) ReadHeader() (*BackupInfo, error) {
	body, err := s.readMessage()
	if err == io.EOF {
		return nil, io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, err
	}
	return unmarshalInfo(body)
}

// ReadFrame returns the next item, or io.EOF after the last one. A frame
// this version does not understand yields ErrUnknownFrame and the stream
// stays positioned at the following frame.
func (s *StreamReader) ReadFrame() (Item, error) {
	body, err := s.readMessage()
	if err != nil {
		return nil, err
	}
	return UnmarshalItem(body)
}

func (s *StreamReader) readMessage() ([]byte, error) {
	size, err := binary.ReadUvarint(s.r)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, err
		}
		return nil, fmt.Errorf("%w: length prefix: %v", ErrMalformed, err)
	}
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(s.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}
