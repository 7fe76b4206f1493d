package sqlite

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// LastKey is the entry holding the most recently opened model.
const LastKey = "last"

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		panic("sqlite: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		panic("sqlite: zstd decoder initialization failed: " + err.Error())
	}
}

// Record is a stored fragments payload.
type Record struct {
	Key            string
	ModelID        string
	FragmentsCount int
	// Source is where the payload came from: an API id or a file path.
	Source   string
	Data     []byte
	StoredAt time.Time
}

// Entry describes a stored payload without loading it.
type Entry struct {
	Key            string
	ModelID        string
	FragmentsCount int
	Source         string
	Size           int64
	StoredSize     int64
	Digest         string
	StoredAt       time.Time
}

// FragmentsModel is the database row of the fragments table. Times are
// Unix milliseconds.
type FragmentsModel struct {
	Key            string
	ModelID        string
	FragmentsCount int
	Source         string
	Size           int64
	StoredSize     int64
	Digest         []byte
	Payload        []byte
	StoredAt       int64
}

// toFragmentsModel compresses and digests r.
func toFragmentsModel(r *Record) *FragmentsModel {
	sum := blake3.Sum256(r.Data)
	payload := zstdEncoder.EncodeAll(r.Data, nil)
	return &FragmentsModel{
		Key:            r.Key,
		ModelID:        r.ModelID,
		FragmentsCount: r.FragmentsCount,
		Source:         r.Source,
		Size:           int64(len(r.Data)),
		StoredSize:     int64(len(payload)),
		Digest:         sum[:],
		Payload:        payload,
		StoredAt:       r.StoredAt.UnixMilli(),
	}
}

// toRecord decompresses the payload and checks it against the digest.
func (m *FragmentsModel) toRecord() (*Record, error) {
	data, err := zstdDecoder.DecodeAll(m.Payload, make([]byte, 0, m.Size))
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", m.Key, err)
	}
	sum := blake3.Sum256(data)
	if int64(len(data)) != m.Size || !bytes.Equal(sum[:], m.Digest) {
		return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, m.Key)
	}
	return &Record{
		Key:            m.Key,
		ModelID:        m.ModelID,
		FragmentsCount: m.FragmentsCount,
		Source:         m.Source,
		Data:           data,
		StoredAt:       time.UnixMilli(m.StoredAt),
	}, nil
}

func (m *FragmentsModel) toEntry() Entry {
	return Entry{
		Key:            m.Key,
		ModelID:        m.ModelID,
		FragmentsCount: m.FragmentsCount,
		Source:         m.Source,
		Size:           m.Size,
		StoredSize:     m.StoredSize,
		Digest:         hex.EncodeToString(m.Digest),
		StoredAt:       time.UnixMilli(m.StoredAt),
	}
}
