package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/custodia-labs/deltasync/internal/core/domain"
)

// Envelope constants.
const (
	Magic       = "DSCK"
	Version     = 1
	Compression = "zstd"

	// maxPayload bounds the decompressed payload.
	maxPayload = 1 << 30
)

// envelope is the outer, self-describing record of a checkpoint file.
// It is decoded leniently so that a newer version is reported as such
// rather than as corruption.
type envelope struct {
	Magic       string    `cbor:"magic"`
	Version     int       `cbor:"version"`
	BatchID     string    `cbor:"batch_id"`
	CreatedAt   time.Time `cbor:"created_at"`
	Compression string    `cbor:"compression"`
	Digest      []byte    `cbor:"digest"`
	Payload     []byte    `cbor:"payload"`
}

// Version 1 payload schema. Decoded strictly: unknown fields are rejected.
type batchV1 struct {
	ID          string        `cbor:"id"`
	Spreadsheet *attachmentV1 `cbor:"spreadsheet,omitempty"`
	Documents   []documentV1  `cbor:"documents"`
	Metadata    metadataV1    `cbor:"metadata"`
}

type attachmentV1 struct {
	Filename    string `cbor:"filename"`
	ContentType string `cbor:"content_type,omitempty"`
	Content     []byte `cbor:"content"`
}

type documentV1 struct {
	Name       string `cbor:"name"`
	Owner      string `cbor:"owner"`
	DocumentID string `cbor:"document_id"`
	Content    []byte `cbor:"content"`
	Delta      bool   `cbor:"delta"`
}

type metadataV1 struct {
	BatchID        string    `cbor:"batch_id"`
	Timestamp      time.Time `cbor:"timestamp"`
	Owners         []ownerV1 `cbor:"owners"`
	TotalOwners    int       `cbor:"total_owners"`
	SuccessCount   int       `cbor:"success_count"`
	Documents      int       `cbor:"documents"`
	DeltaDocuments int       `cbor:"delta_documents"`
}

type ownerV1 struct {
	Key  string `cbor:"key"`
	Name string `cbor:"name"`
}

var errBadMagic = errors.New("bad magic")

var (
	encMode     cbor.EncMode
	envelopeDec cbor.DecMode
	payloadDec  cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("checkpoint: CBOR encoder initialization failed: " + err.Error())
	}

	envelopeDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("checkpoint: CBOR decoder initialization failed: " + err.Error())
	}

	payloadDec, err = cbor.DecOptions{
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("checkpoint: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("checkpoint: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayload))
	if err != nil {
		panic("checkpoint: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode serialises a batch into a version 1 checkpoint.
func Encode(batch domain.Batch, createdAt time.Time) ([]byte, error) {
	raw, err := encMode.Marshal(toV1(batch))
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	payload := zstdEncoder.EncodeAll(raw, nil)
	digest := blake3.Sum256(payload)

	data, err := encMode.Marshal(envelope{
		Magic:       Magic,
		Version:     Version,
		BatchID:     batch.ID,
		CreatedAt:   createdAt.UTC(),
		Compression: Compression,
		Digest:      digest[:],
		Payload:     payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a checkpoint, verifying magic, version and digest.
func Decode(data []byte) (*domain.Batch, time.Time, error) {
	var env envelope
	if err := envelopeDec.Unmarshal(data, &env); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", domain.ErrCheckpointCorrupt, err)
	}
	if env.Magic != Magic {
		return nil, time.Time{}, fmt.Errorf("%w: %v", domain.ErrCheckpointCorrupt, errBadMagic)
	}
	if env.Version != Version {
		return nil, time.Time{}, fmt.Errorf("version %d: %w", env.Version, domain.ErrCheckpointVersion)
	}
	if env.Compression != Compression {
		return nil, time.Time{}, fmt.Errorf("%w: compression %q", domain.ErrCheckpointCorrupt, env.Compression)
	}
	digest := blake3.Sum256(env.Payload)
	if !bytes.Equal(digest[:], env.Digest) {
		return nil, time.Time{}, fmt.Errorf("%w: digest mismatch", domain.ErrCheckpointCorrupt)
	}

	raw, err := zstdDecoder.DecodeAll(env.Payload, nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", domain.ErrCheckpointCorrupt, err)
	}
	var v1 batchV1
	if err := payloadDec.Unmarshal(raw, &v1); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", domain.ErrCheckpointCorrupt, err)
	}
	if v1.ID != env.BatchID {
		return nil, time.Time{}, fmt.Errorf("%w: batch id %q does not match envelope %q",
			domain.ErrCheckpointCorrupt, v1.ID, env.BatchID)
	}

	batch := fromV1(v1)
	return &batch, env.CreatedAt, nil
}

func toV1(b domain.Batch) batchV1 {
	v := batchV1{
		ID:        b.ID,
		Documents: make([]documentV1, 0, len(b.Documents)),
		Metadata: metadataV1{
			BatchID:        b.Metadata.BatchID,
			Timestamp:      b.Metadata.Timestamp.UTC(),
			Owners:         make([]ownerV1, 0, len(b.Metadata.Owners)),
			TotalOwners:    b.Metadata.Stats.TotalOwners,
			SuccessCount:   b.Metadata.Stats.SuccessCount,
			Documents:      b.Metadata.Stats.Documents,
			DeltaDocuments: b.Metadata.Stats.DeltaDocuments,
		},
	}
	if b.Spreadsheet != nil {
		v.Spreadsheet = &attachmentV1{
			Filename:    b.Spreadsheet.Filename,
			ContentType: b.Spreadsheet.ContentType,
			Content:     b.Spreadsheet.Content,
		}
	}
	for _, d := range b.Documents {
		v.Documents = append(v.Documents, documentV1{
			Name:       d.Name,
			Owner:      d.Owner,
			DocumentID: d.DocumentID,
			Content:    d.Content,
			Delta:      d.Delta,
		})
	}
	for _, o := range b.Metadata.Owners {
		v.Metadata.Owners = append(v.Metadata.Owners, ownerV1{Key: o.Key, Name: o.Name})
	}
	return v
}

func fromV1(v batchV1) domain.Batch {
	b := domain.Batch{
		ID:        v.ID,
		Documents: make([]domain.BatchDocument, 0, len(v.Documents)),
		Metadata: domain.BatchMetadata{
			BatchID:   v.Metadata.BatchID,
			Timestamp: v.Metadata.Timestamp,
			Owners:    make([]domain.OwnerSummary, 0, len(v.Metadata.Owners)),
			Stats: domain.BatchStats{
				TotalOwners:    v.Metadata.TotalOwners,
				SuccessCount:   v.Metadata.SuccessCount,
				Documents:      v.Metadata.Documents,
				DeltaDocuments: v.Metadata.DeltaDocuments,
			},
		},
	}
	if v.Spreadsheet != nil {
		b.Spreadsheet = &domain.Attachment{
			Filename:    v.Spreadsheet.Filename,
			ContentType: v.Spreadsheet.ContentType,
			Content:     v.Spreadsheet.Content,
		}
	}
	for _, d := range v.Documents {
		b.Documents = append(b.Documents, domain.BatchDocument{
			Name:       d.Name,
			Owner:      d.Owner,
			DocumentID: d.DocumentID,
			Content:    d.Content,
			Delta:      d.Delta,
		})
	}
	for _, o := range v.Metadata.Owners {
		b.Metadata.Owners = append(b.Metadata.Owners, domain.OwnerSummary{Key: o.Key, Name: o.Name})
	}
	return b
}
