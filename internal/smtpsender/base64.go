package smtpsender

import "encoding/base64"

// base64LineEncoder wraps base64-encoded attachment content at 76 characters
// per line, matching the teacher's wrapper.
type base64LineEncoder struct {
	w       interface{ Write([]byte) (int, error) }
	lineLen int
}

func (e *base64LineEncoder) write(content []byte) error {
	enc := base64.NewEncoder(base64.StdEncoding, e)
	if _, err := enc.Write(content); err != nil {
		return err
	}
	return enc.Close()
}

func (e *base64LineEncoder) Write(p []byte) (int, error) {
	n := 0
	for len(p) > 0 {
		remaining := 76 - e.lineLen
		if remaining <= 0 {
			if _, err := e.w.Write([]byte("\r\n")); err != nil {
				return n, err
			}
			e.lineLen = 0
			remaining = 76
		}
		toWrite := len(p)
		if toWrite > remaining {
			toWrite = remaining
		}
		written, err := e.w.Write(p[:toWrite])
		n += written
		e.lineLen += written
		if err != nil {
			return n, err
		}
		p = p[toWrite:]
	}
	return n, nil
}
