package prompt

// NoOutput is the compression reply for a passage with nothing relevant.
const NoOutput = "NO_OUTPUT"

// DefaultExpansionSystem asks for search rephrasings of a question.
const DefaultExpansionSystem = "You help a search engine over a document collection. " +
	"Rewrite questions into alternative search queries that use synonyms and related terms " +
	"(for example revenue and income, operating profit and EBITDA, investment and CapEx). " +
	"Keep the language of the question."

// DefaultExpansionUser sees .Question; .Context is empty.
const DefaultExpansionUser = `Question:
{{.Question}}

Write 4 to 6 different rephrasings of the question for document search.
Return one rephrasing per line, without numbering or comments.`

// DefaultCompressionSystem asks the model to extract, never to rewrite.
const DefaultCompressionSystem = "You extract text from a passage. " +
	"Copy the parts of the passage that help answer the question word for word and add nothing."

// DefaultCompressionUser sees .Question and the passage as .Context.
const DefaultCompressionUser = `Given the following question and passage, extract any part of the passage that is relevant to answering the question.
If none of the passage is relevant, return ` + NoOutput + `.

Question: {{.Question}}

Passage:
>>>
{{.Context}}
>>>

Extracted relevant parts:`

// Expansion returns the Builder for query rephrasing.
func Expansion() *Builder {
	b, err := New(DefaultExpansionSystem, DefaultExpansionUser)
	if err != nil {
		panic(err)
	}
	return b
}

// Compression returns the Builder for passage extraction.
func Compression() *Builder {
	b, err := New(DefaultCompressionSystem, DefaultCompressionUser)
	if err != nil {
		panic(err)
	}
	return b
}
