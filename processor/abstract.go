package processor

import (
	"context"

	"github.com/jupark12/go-transcription-queue/models"
)

// Segmenter cuts a source file into ordered chunks.
//
//go:generate mockgen -source=abstract.go -destination=abstract_mock.go -package=processor
type Segmenter interface {
	Split(ctx context.Context, sourcePath string, maxSegmentSeconds int) ([]models.Chunk, error)
}

// Transcriber turns one chunk into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, fileName, language string) (string, error)
}

// ChunkCleaner removes the chunk directory derived from an original file path. It never fails.
type ChunkCleaner interface {
	DeleteChunkDirectory(originalFilePath string)
}
