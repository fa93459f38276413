package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const sessionFormatVersion = 1

// ErrCorruptSession is returned when a stored record cannot be decoded.
var ErrCorruptSession = errors.New("session record corrupt")

// Encode serializes s without its token, which is the storage key:
//
//	version(1) | uidLen(1) | uid | created(8) | lastActivity(8) | expires(8)
//	| ipLen(1) | ip | uaLen(2) | ua
//
// Timestamps are big-endian Unix milliseconds.
func Encode(s *Session) ([]byte, error) {
	if len(s.UserID) == 0 || len(s.UserID) > 255 {
		return nil, errors.New("userID length out of range")
	}
	if len(s.IPAddress) > 255 {
		return nil, errors.New("ip address too long")
	}
	if len(s.UserAgent) > 65535 {
		return nil, errors.New("user agent too long")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 1 + len(s.UserID) + 24 + 1 + len(s.IPAddress) + 2 + len(s.UserAgent))

	buf.WriteByte(sessionFormatVersion)
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	for _, ts := range []time.Time{s.CreatedAt, s.LastActivity, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts.UnixMilli()); err != nil {
			return nil, err
		}
	}

	buf.WriteByte(byte(len(s.IPAddress)))
	buf.WriteString(s.IPAddress)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.UserAgent))); err != nil {
		return nil, err
	}
	buf.WriteString(s.UserAgent)

	return buf.Bytes(), nil
}

// Decode parses a record produced by [Encode].
func Decode(data []byte) (*Session, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, ErrCorruptSession
	}
	if version != sessionFormatVersion {
		return nil, errors.New("invalid session version")
	}

	uid, err := readShort(r)
	if err != nil || uid == "" {
		return nil, ErrCorruptSession
	}

	var stamps [3]int64
	for i := range stamps {
		if err := binary.Read(r, binary.BigEndian, &stamps[i]); err != nil {
			return nil, ErrCorruptSession
		}
	}

	ip, err := readShort(r)
	if err != nil {
		return nil, ErrCorruptSession
	}

	var uaLen uint16
	if err := binary.Read(r, binary.BigEndian, &uaLen); err != nil {
		return nil, ErrCorruptSession
	}
	ua := make([]byte, uaLen)
	if _, err := io.ReadFull(r, ua); err != nil {
		return nil, ErrCorruptSession
	}

	return &Session{
		UserID:       uid,
		CreatedAt:    time.UnixMilli(stamps[0]),
		LastActivity: time.UnixMilli(stamps[1]),
		ExpiresAt:    time.UnixMilli(stamps[2]),
		IPAddress:    ip,
		UserAgent:    string(ua),
	}, nil
}

func readShort(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
