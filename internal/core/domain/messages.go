package domain

const (
	// NotFoundAnswer is what the answer generator is instructed to say when the context lacks the answer.
	NotFoundAnswer = "Maaf, informasi mengenai hal tersebut tidak ditemukan dalam " +
		"dokumen hukum yang menjadi rujukan saya."

	NoRelevantChunksAnswer = "Maaf, saya tidak menemukan informasi yang relevan dalam " +
		"dokumen hukum lalu lintas untuk menjawab pertanyaan Anda. " +
		"Silakan coba dengan pertanyaan yang berbeda atau lebih spesifik."

	DegradedRetrievalWarning = "query expansion unavailable; results are based on the original question only"
)
