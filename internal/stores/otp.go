package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const otpRecordVersion1 = 1

var (
	ErrOTPNotFound = errors.New("otp entry not found")
	ErrOTPBackend  = errors.New("otp backend unavailable")
	ErrOTPCorrupt  = errors.New("otp entry corrupt")
)

// OTPEntry is the pending second factor for one email.
type OTPEntry struct {
	CodeHash  string
	Attempts  int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the entry is past its deadline at now.
func (e OTPEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// OTPStore is implemented by [MemoryOTPStore] and [RedisOTPStore].
type OTPStore interface {
	Put(ctx context.Context, email string, e OTPEntry) error
	Get(ctx context.Context, email string) (OTPEntry, bool, error)
	Delete(ctx context.Context, email string) (bool, error)
	// RecordFailure increments the entry's attempt counter. When the counter
	// reaches maxAttempts the entry is deleted and exceeded is true.
	RecordFailure(ctx context.Context, email string, maxAttempts int) (attempts int, exceeded bool, err error)
	Cleanup(ctx context.Context) (int, error)
}

func encodeOTPEntry(e OTPEntry) ([]byte, error) {
	if len(e.CodeHash) > 255 {
		return nil, errors.New("otp code hash too long")
	}
	if e.Attempts < 0 || e.Attempts > 65535 {
		return nil, errors.New("otp attempts out of range")
	}

	var buf bytes.Buffer
	buf.WriteByte(otpRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, uint16(e.Attempts)); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, e.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(len(e.CodeHash)))
	buf.WriteString(e.CodeHash)
	return buf.Bytes(), nil
}

func decodeOTPEntry(data []byte) (OTPEntry, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil || version != otpRecordVersion1 {
		return OTPEntry{}, ErrOTPCorrupt
	}

	var (
		attempts           uint16
		created, expiresAt int64
	)
	if err := binary.Read(r, binary.BigEndian, &attempts); err != nil {
		return OTPEntry{}, ErrOTPCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &created); err != nil {
		return OTPEntry{}, ErrOTPCorrupt
	}
	if err := binary.Read(r, binary.BigEndian, &expiresAt); err != nil {
		return OTPEntry{}, ErrOTPCorrupt
	}

	n, err := r.ReadByte()
	if err != nil {
		return OTPEntry{}, ErrOTPCorrupt
	}
	hash := make([]byte, n)
	if _, err := io.ReadFull(r, hash); err != nil {
		return OTPEntry{}, ErrOTPCorrupt
	}

	return OTPEntry{
		CodeHash:  string(hash),
		Attempts:  int(attempts),
		CreatedAt: time.UnixMilli(created),
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}

var (
	_ OTPStore = (*MemoryOTPStore)(nil)
	_ OTPStore = (*RedisOTPStore)(nil)
)
