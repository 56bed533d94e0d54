package model

import "time"

// ChunkRow is one persisted chunk of a stored file.
// A file is a chain of rows sharing FileID; the head row has ID == FileID
// and each row points at its successor through NextID.
type ChunkRow struct {
	ID               string    // UUID; equals FileID on the head row
	FileID           string    // UUID shared by every chunk of the file
	Name             string    // File name, repeated on every chunk
	MimeType         string    // Content type, repeated on every chunk
	TimeStamp        time.Time // When the chain was written
	NextID           string    // ID of the next chunk; empty at the end of the chain
	Start            int64     // Byte offset of this chunk within the file
	ChunkBytesLength int       // Number of bytes in Data
	TotalBytesLength int64     // Length of the whole file
	Data             []byte
	Hash             string // Optional digest of Data
}

// NewChunkRow returns an empty row. It is the row factory for the default chunk table.
func NewChunkRow() *ChunkRow {
	return &ChunkRow{}
}

// Row returns the chunk fields. Types that embed ChunkRow inherit it.
func (c *ChunkRow) Row() *ChunkRow {
	return c
}

// IsHead reports whether this row starts its chain.
func (c *ChunkRow) IsHead() bool {
	return c.ID != "" && c.ID == c.FileID
}

// HasNext reports whether another chunk follows this one.
func (c *ChunkRow) HasNext() bool {
	return c.NextID != ""
}

// Payload returns the bytes this chunk contributes to the file.
// Data longer than ChunkBytesLength is truncated to the recorded length.
func (c *ChunkRow) Payload() []byte {
	if c.ChunkBytesLength < len(c.Data) {
		return c.Data[:c.ChunkBytesLength]
	}
	return c.Data
}
