package receiver

import (
	"bytes"
	"fmt"
	"io"

	"github.com/oferchen/gorsync/internal/rsynccompress"
)

// recvToken reads one element of the delta token stream rsync/match.c
// produces: token == 0 signals end of file, token > 0 introduces a literal
// data run (returned in data), and token < 0 references local basis-file
// block -(token+1) (see receiveData in receiver.go, which resolves negative
// tokens against localFile). When compression is negotiated (Opts carries
// the same --compress-choice the sender used), the wire token is the
// compressed length of the run rather than its literal length, and data is
// decompressed before being returned; len(data) is the only literal length
// callers should rely on.
func (rt *Transfer) recvToken() (token int32, data []byte, err error) {
	token, err = rt.Conn.ReadInt32()
	if err != nil {
		return 0, nil, err
	}
	if token <= 0 {
		return token, nil, nil
	}
	raw := make([]byte, token)
	if _, err := io.ReadFull(rt.Conn.Reader, raw); err != nil {
		return 0, nil, err
	}
	if !rt.Opts.CompressEnabled {
		return token, raw, nil
	}

	codec, err := rsynccompress.ByName(rt.Opts.CompressChoice, rt.Opts.CompressLevel)
	if err != nil {
		return 0, nil, err
	}
	cr, err := codec.NewReader(bytes.NewReader(raw))
	if err != nil {
		return 0, nil, fmt.Errorf("decompress: %w", err)
	}
	defer cr.Close()
	data, err = io.ReadAll(cr)
	if err != nil {
		return 0, nil, fmt.Errorf("decompress: %w", err)
	}
	return token, data, nil
}
