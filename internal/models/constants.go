package models

const (
	ManifestSchemaVersion = 1
	ContextSeparator      = "\n\n"
	ThinkTag              = `(?s)<think>.*?</think>`

	// chunk metadata keys stored next to each vector
	MetaSource     = "source"
	MetaPageNumber = "page_number"
	MetaChunkIndex = "chunk_index"
)

var (
	DefaultPromptTemplate = `Use the following pieces of information to answer the user's question.
If you don't know the answer, just say that you don't know, don't try to make up an answer.

Context: {context}
Question: {question}

Only return the helpful answer below and nothing else.
Helpful answer:
`
)
