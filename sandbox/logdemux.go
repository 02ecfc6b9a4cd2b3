package sandbox

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Stream identifiers in the daemon's multiplexed log framing.
const (
	streamStdout byte = 1
	streamStderr byte = 2
)

// logHeaderLen is the fixed frame header size: one stream-type byte, three
// reserved bytes, then a big-endian uint32 payload length.
const logHeaderLen = 8

// demuxLogs splits a multiplexed log stream into its stdout and stderr
// accumulators. A trailing frame with insufficient header or payload bytes
// is silently discarded: the daemon truncates mid-frame when a container is
// killed, and that is not an error. Frames with unknown stream types are
// skipped.
func demuxLogs(r io.Reader) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	header := make([]byte, logHeaderLen)

	for {
		if _, rerr := io.ReadFull(r, header); rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				return outBuf.String(), errBuf.String(), nil
			}
			return outBuf.String(), errBuf.String(), rerr
		}

		size := binary.BigEndian.Uint32(header[4:8])
		payload := make([]byte, size)
		if _, rerr := io.ReadFull(r, payload); rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				return outBuf.String(), errBuf.String(), nil
			}
			return outBuf.String(), errBuf.String(), rerr
		}

		switch header[0] {
		case streamStdout:
			outBuf.Write(payload)
		case streamStderr:
			errBuf.Write(payload)
		}
	}
}
