package chunk

import "chunkdb/internal/model"

// Entity is the capability set every chunk row type must provide.
// Any struct that embeds model.ChunkRow satisfies it through the promoted Row method,
// so tables can carry extra columns while the chain protocol only sees the chunk fields.
type Entity interface {
	Row() *model.ChunkRow
}
