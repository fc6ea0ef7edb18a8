package ingest

import "strings"

// DefaultChunkWords is the word count per chunk used for embedding upserts.
const DefaultChunkWords = 500

// ChunkWords splits text into word-based chunks of at most size words.
func ChunkWords(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkWords
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	chunks := make([]string, 0, (len(words)+size-1)/size)
	for i := 0; i < len(words); i += size {
		end := i + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
	}
	return chunks
}
